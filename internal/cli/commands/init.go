// Copyright 2026 PhotoFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"photofs/internal/daemon"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a default config.yaml to the photofs configuration directory.

The file documents every setting with its default value; edit it and
re-run 'photofs mount', or override individual settings with flags.
An existing config.yaml is never overwritten.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := daemon.SettingsPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("%s already exists (not modified)\n", path)
		return nil
	}

	settings := &daemon.Settings{}
	settings.ApplyDefaults()
	if err := daemon.SaveSettings(settings); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	fmt.Printf("created %s\n", path)
	return nil
}
