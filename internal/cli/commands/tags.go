package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"photofs/internal/daemon"
	"photofs/internal/index"
	"photofs/internal/namespace"
	"photofs/internal/source"
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List the namespace a mount would expose",
	Long: `Prints every directory the mount would contain, with the number of
items in each, without mounting anything.`,
	Args: cobra.NoArgs,
	RunE: runTags,
}

var (
	tagsDatabase    string
	tagsFlat        bool
	tagsExcludeTags []string
)

func init() {
	rootCmd.AddCommand(tagsCmd)
	tagsCmd.Flags().StringVarP(&tagsDatabase, "database", "d", "", "Path to the photo manager database (default: Shotwell's)")
	tagsCmd.Flags().BoolVar(&tagsFlat, "flat", false, "Preview the flat layout")
	tagsCmd.Flags().StringSliceVar(&tagsExcludeTags, "exclude-tag", nil, "gitignore-style tag pattern to hide (repeatable)")
}

func runTags(cmd *cobra.Command, args []string) error {
	database := tagsDatabase
	if database == "" {
		database = daemon.DefaultDatabase()
	}
	database, err := filepath.Abs(database)
	if err != nil {
		return fmt.Errorf("failed to resolve database path: %w", err)
	}
	if _, err := os.Stat(database); os.IsNotExist(err) {
		return fmt.Errorf("database not found: %s", database)
	}

	ctx := context.Background()
	reader, err := source.OpenShotwell(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer reader.Close()

	idx, err := index.Build(ctx, reader)
	if err != nil {
		return fmt.Errorf("failed to read database: %w", err)
	}

	tree := namespace.Build(idx, namespace.Options{
		Flat:        tagsFlat,
		ExcludeTags: tagsExcludeTags,
	})

	tree.Root.Walk(func(path string, node *namespace.Node) {
		if !node.IsDir() {
			return
		}
		items := 0
		for _, c := range node.Children() {
			if !c.IsDir() {
				items++
			}
		}
		if items > 0 {
			fmt.Printf("%s/ (%d)\n", path, items)
		} else {
			fmt.Printf("%s/\n", path)
		}
	})
	return nil
}
