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

// Package daemon holds the long-running pieces around the filesystem
// core: configuration, the database sync loop, and the NFS transport.
package daemon

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// getConfigDir returns the config directory path.
// Uses PHOTOFS_CONFIG_DIR env var if set, otherwise defaults to
// ~/.photofs. Computed dynamically to support test isolation.
func getConfigDir() string {
	if dir := os.Getenv("PHOTOFS_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".photofs")
}

// ConfigDir returns the configuration directory path.
func ConfigDir() string {
	return getConfigDir()
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// LogPath returns the log file path.
// Uses PHOTOFS_LOG env var if set, otherwise config_dir/photofs.log.
func LogPath() string {
	if envPath := os.Getenv("PHOTOFS_LOG"); envPath != "" {
		return envPath
	}
	return filepath.Join(getConfigDir(), "photofs.log")
}

// SyncDir returns the directory holding synced database snapshots.
func SyncDir() string {
	return filepath.Join(getConfigDir(), "sync")
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	return os.MkdirAll(getConfigDir(), 0700)
}

// Settings is the mount configuration from ~/.photofs/config.yaml.
// Command-line flags override individual fields.
type Settings struct {
	Database    string   `yaml:"database"`     // metadata database path; empty resolves the default location
	MountPoint  string   `yaml:"mountpoint"`   // where to mount
	Flat        bool     `yaml:"flat"`         // list items directly under kind roots, no tag level
	TimeFormat  string   `yaml:"time_format"`  // strftime pattern for untitled items
	PhotosDir   string   `yaml:"photos_dir"`   // photo root directory name (default: Photos)
	VideosDir   string   `yaml:"videos_dir"`   // video root directory name (default: Videos)
	ExcludeTags []string `yaml:"exclude_tags"` // gitignore-style tag patterns to hide
	LogLevel    string   `yaml:"log_level"`    // trace, debug, info, warn, error (default: warn)
	SyncDB      bool     `yaml:"sync_db"`      // serve from a synced snapshot instead of the live database
	Transport   string   `yaml:"transport"`    // fuse or nfs (default: fuse)
	NFSAddr     string   `yaml:"nfs_addr"`     // listen address for transport=nfs
	AllowOther  bool     `yaml:"allow_other"`  // FUSE allow_other
}

// ApplyDefaults fills zero-value fields with their defaults.
func (s *Settings) ApplyDefaults() {
	if s.Database == "" {
		s.Database = DefaultDatabase()
	}
	if s.LogLevel == "" {
		s.LogLevel = "warn"
	}
	if s.Transport == "" {
		s.Transport = "fuse"
	}
	if s.NFSAddr == "" {
		s.NFSAddr = "127.0.0.1:20590"
	}
}

// LoadSettings loads settings from the config file. A missing file
// yields pure defaults; a malformed one is an error.
func LoadSettings() (*Settings, error) {
	var settings Settings
	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			settings.ApplyDefaults()
			return &settings, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	settings.ApplyDefaults()
	return &settings, nil
}

// SaveSettings writes settings to the config file.
func SaveSettings(settings *Settings) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	header := []byte("# photofs settings\n# See: photofs mount --help\n\n")
	return os.WriteFile(SettingsPath(), append(header, data...), 0600)
}

// DefaultDatabase returns the Shotwell database path in the XDG data
// directory.
func DefaultDatabase() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "shotwell", "data", "photo.db")
}
