package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PHOTOFS_CONFIG_DIR", dir)

	assert.Equal(t, dir, ConfigDir())
	assert.Equal(t, filepath.Join(dir, "config.yaml"), SettingsPath())
	assert.Equal(t, filepath.Join(dir, "sync"), SyncDir())
	assert.Equal(t, filepath.Join(dir, "photofs.log"), LogPath())
}

func TestLogPathFromEnv(t *testing.T) {
	t.Setenv("PHOTOFS_CONFIG_DIR", t.TempDir())
	t.Setenv("PHOTOFS_LOG", "/tmp/custom.log")
	assert.Equal(t, "/tmp/custom.log", LogPath())
}

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv("PHOTOFS_CONFIG_DIR", t.TempDir())

	settings, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "warn", settings.LogLevel)
	assert.Equal(t, "fuse", settings.Transport)
	assert.Equal(t, "127.0.0.1:20590", settings.NFSAddr)
	assert.Equal(t, DefaultDatabase(), settings.Database)
	assert.False(t, settings.Flat)
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Setenv("PHOTOFS_CONFIG_DIR", t.TempDir())

	in := &Settings{
		Database:    "/data/photo.db",
		MountPoint:  "/mnt/photos",
		Flat:        true,
		TimeFormat:  "%Y%m%d",
		PhotosDir:   "Pictures",
		VideosDir:   "Movies",
		ExcludeTags: []string{"Private", "Drafts/*"},
		LogLevel:    "debug",
		SyncDB:      true,
		Transport:   "nfs",
		NFSAddr:     "127.0.0.1:2049",
	}
	require.NoError(t, SaveSettings(in))

	out, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLoadSettingsMalformed(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PHOTOFS_CONFIG_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{not yaml"), 0600))

	_, err := LoadSettings()
	assert.Error(t, err)
}

func TestDefaultDatabaseXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	assert.Equal(t, "/xdg/data/shotwell/data/photo.db", DefaultDatabase())
}
