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
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"photofs/internal/daemon"
	"photofs/internal/fuse"
	"photofs/internal/source"
	"photofs/internal/vfs"
)

var mountCmd = &cobra.Command{
	Use:   "mount <mount-point>",
	Short: "Mount the tag namespace",
	Long: `Mounts the photo manager's tag taxonomy at the given mount point
and serves it in the foreground until unmounted or interrupted.

Examples:
  photofs mount ~/photos-by-tag
  photofs mount --flat -d ~/.local/share/shotwell/data/photo.db /mnt/photos
  photofs mount --transport nfs --nfs-addr 127.0.0.1:20590 ~/photos-by-tag`,
	Args: cobra.ExactArgs(1),
	RunE: runMount,
}

var (
	mountDatabase    string
	mountFlat        bool
	mountTimeFormat  string
	mountPhotosDir   string
	mountVideosDir   string
	mountExcludeTags []string
	mountSyncDB      bool
	mountTransport   string
	mountNFSAddr     string
	mountAllowOther  bool
	mountFUSEDebug   bool
)

func init() {
	rootCmd.AddCommand(mountCmd)
	mountCmd.Flags().StringVarP(&mountDatabase, "database", "d", "", "Path to the photo manager database (default: Shotwell's)")
	mountCmd.Flags().BoolVar(&mountFlat, "flat", false, "List items directly under Photos/ and Videos/, no tag level")
	mountCmd.Flags().StringVar(&mountTimeFormat, "time-format", "", "strftime pattern for untitled items (default \"%Y-%m-%d, %H.%M\")")
	mountCmd.Flags().StringVar(&mountPhotosDir, "photos-dir", "", "Name of the photo root directory (default \"Photos\")")
	mountCmd.Flags().StringVar(&mountVideosDir, "videos-dir", "", "Name of the video root directory (default \"Videos\")")
	mountCmd.Flags().StringSliceVar(&mountExcludeTags, "exclude-tag", nil, "gitignore-style tag pattern to hide (repeatable)")
	mountCmd.Flags().BoolVar(&mountSyncDB, "sync-db", false, "Serve from a private database copy, re-synced when the source changes")
	mountCmd.Flags().StringVar(&mountTransport, "transport", "", "Transport: fuse or nfs (default: fuse)")
	mountCmd.Flags().StringVar(&mountNFSAddr, "nfs-addr", "", "Listen address for --transport nfs")
	mountCmd.Flags().BoolVar(&mountAllowOther, "allow-other", false, "Allow other users to access the FUSE mount")
	mountCmd.Flags().BoolVar(&mountFUSEDebug, "fuse-debug", false, "Enable FUSE request tracing")
}

// mountConfig merges settings with the flags the user actually set.
func mountConfig(cmd *cobra.Command) (*daemon.Settings, error) {
	settings, err := daemon.LoadSettings()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("database") {
		settings.Database = mountDatabase
	}
	if cmd.Flags().Changed("flat") {
		settings.Flat = mountFlat
	}
	if cmd.Flags().Changed("time-format") {
		settings.TimeFormat = mountTimeFormat
	}
	if cmd.Flags().Changed("photos-dir") {
		settings.PhotosDir = mountPhotosDir
	}
	if cmd.Flags().Changed("videos-dir") {
		settings.VideosDir = mountVideosDir
	}
	if cmd.Flags().Changed("exclude-tag") {
		settings.ExcludeTags = mountExcludeTags
	}
	if cmd.Flags().Changed("sync-db") {
		settings.SyncDB = mountSyncDB
	}
	if cmd.Flags().Changed("transport") {
		settings.Transport = mountTransport
	}
	if cmd.Flags().Changed("nfs-addr") {
		settings.NFSAddr = mountNFSAddr
	}
	if cmd.Flags().Changed("allow-other") {
		settings.AllowOther = mountAllowOther
	}
	return settings, nil
}

func runMount(cmd *cobra.Command, args []string) error {
	settings, err := mountConfig(cmd)
	if err != nil {
		return err
	}

	mountPoint, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve mount point: %w", err)
	}

	database, err := filepath.Abs(settings.Database)
	if err != nil {
		return fmt.Errorf("failed to resolve database path: %w", err)
	}
	if _, err := os.Stat(database); os.IsNotExist(err) {
		return fmt.Errorf("database not found: %s", database)
	}

	ctx := context.Background()

	dbPath := database
	if settings.SyncDB {
		dbsync, err := daemon.NewDBSync(database)
		if err != nil {
			return fmt.Errorf("failed to sync database: %w", err)
		}
		dbsync.Start()
		defer dbsync.Stop()
		dbPath = dbsync.Path()
	}

	reader, err := source.OpenShotwell(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer reader.Close()

	fsys, err := vfs.New(ctx, reader, vfs.Options{
		Flat:        settings.Flat,
		TimeFormat:  settings.TimeFormat,
		ExcludeTags: settings.ExcludeTags,
		PhotosDir:   settings.PhotosDir,
		VideosDir:   settings.VideosDir,
	})
	if err != nil {
		return fmt.Errorf("failed to build namespace: %w", err)
	}
	defer fsys.Handles().CloseAll()

	switch settings.Transport {
	case "fuse":
		return serveFUSE(fsys, mountPoint, settings)
	case "nfs":
		return serveNFS(fsys, settings)
	default:
		return fmt.Errorf("unknown transport: %q (want fuse or nfs)", settings.Transport)
	}
}

func serveFUSE(fsys *vfs.PhotoFS, mountPoint string, settings *daemon.Settings) error {
	server, err := fuse.Mount(fuse.Options{
		Mountpoint: mountPoint,
		FS:         fsys,
		AllowOther: settings.AllowOther,
		Debug:      mountFUSEDebug,
	})
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received %v, unmounting", sig)
		if err := server.Unmount(); err != nil {
			log.Errorf("unmount failed: %v (try: photofs unmount %s)", err, mountPoint)
		}
	}()

	fmt.Printf("Mounted at %s\n", mountPoint)
	server.Wait()
	return nil
}

func serveNFS(fsys *vfs.PhotoFS, settings *daemon.Settings) error {
	server := daemon.NewNFSServer(fsys)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received %v, shutting down", sig)
		server.Shutdown()
	}()

	fmt.Printf("Serving NFS on %s\n", settings.NFSAddr)
	fmt.Printf("Mount with: mount -o port=%[1]s,mountport=%[1]s,tcp,nolocks,vers=3,soft localhost:/ <dir>\n",
		portOf(settings.NFSAddr))
	return server.Serve(settings.NFSAddr)
}

func portOf(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[i+1:]
		}
	}
	return addr
}
