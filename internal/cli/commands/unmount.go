package commands

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
)

var unmountCmd = &cobra.Command{
	Use:     "unmount <mount-point>",
	Aliases: []string{"umount"},
	Short:   "Unmount a mounted namespace",
	Args:    cobra.ExactArgs(1),
	RunE:    runUnmount,
}

func init() {
	rootCmd.AddCommand(unmountCmd)
}

func runUnmount(cmd *cobra.Command, args []string) error {
	mountPoint, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve mount point: %w", err)
	}

	if err := unmountMountpoint(mountPoint); err != nil {
		return err
	}
	fmt.Printf("Unmounted %s\n", mountPoint)
	return nil
}

// unmountMountpoint detaches a FUSE mount. Linux uses fusermount so
// unprivileged mounts can be undone by the mounting user; elsewhere the
// plain umount command applies.
func unmountMountpoint(path string) error {
	if runtime.GOOS == "linux" {
		if fusermount, err := exec.LookPath("fusermount"); err == nil {
			output, err := exec.Command(fusermount, "-u", path).CombinedOutput()
			if err == nil {
				return nil
			}
			return fmt.Errorf("fusermount -u failed: %w: %s", err, string(output))
		}
	}
	output, err := exec.Command("umount", path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("umount failed: %w: %s", err, string(output))
	}
	return nil
}
