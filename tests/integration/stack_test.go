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

package integration

import (
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/require"
	_ "github.com/tursodatabase/go-libsql"

	"photofs/internal/daemon"
	"photofs/internal/source"
	"photofs/internal/vfs"
)

// libraryEnv is one synthetic photo library: a Shotwell-schema database
// plus real backing media files under a temp dir.
type libraryEnv struct {
	t      *testing.T
	Dir    string
	DBPath string
}

func newLibraryEnv(t *testing.T) *libraryEnv {
	t.Helper()
	dir := t.TempDir()
	env := &libraryEnv{t: t, Dir: dir, DBPath: filepath.Join(dir, "photo.db")}
	env.execSQL(
		`CREATE TABLE phototable (id INTEGER PRIMARY KEY, filename TEXT, exposure_time INTEGER, title TEXT)`,
		`CREATE TABLE videotable (id INTEGER PRIMARY KEY, filename TEXT, exposure_time INTEGER, title TEXT)`,
		`CREATE TABLE tagtable (id INTEGER PRIMARY KEY, name TEXT, photo_id_list TEXT)`,
	)
	return env
}

func (e *libraryEnv) execSQL(stmts ...string) {
	e.t.Helper()
	db, err := sql.Open("libsql", "file:"+e.DBPath)
	require.NoError(e.t, err)
	defer db.Close()
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(e.t, err, stmt)
	}
}

// addPhoto writes a backing file and its database row.
func (e *libraryEnv) addPhoto(id int64, title, name, content string) string {
	e.t.Helper()
	path := filepath.Join(e.Dir, name)
	require.NoError(e.t, os.WriteFile(path, []byte(content), 0o644))
	db, err := sql.Open("libsql", "file:"+e.DBPath)
	require.NoError(e.t, err)
	defer db.Close()
	_, err = db.Exec(`INSERT INTO phototable VALUES (?, ?, 1588327200, ?)`, id, path, title)
	require.NoError(e.t, err)
	return path
}

func (e *libraryEnv) setTag(id int64, name, memberList string) {
	e.t.Helper()
	db, err := sql.Open("libsql", "file:"+e.DBPath)
	require.NoError(e.t, err)
	defer db.Close()
	_, err = db.Exec(`INSERT OR REPLACE INTO tagtable VALUES (?, ?, ?)`, id, name, memberList)
	require.NoError(e.t, err)
}

// openStack brings up the full pipeline over the library and returns
// the billy view of it.
func (e *libraryEnv) openStack() (*vfs.PhotoFS, *daemon.BillyAdapter) {
	e.t.Helper()
	reader, err := source.OpenShotwell(context.Background(), e.DBPath)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { reader.Close() })

	fsys, err := vfs.New(context.Background(), reader, vfs.Options{})
	require.NoError(e.t, err)
	e.t.Cleanup(fsys.Handles().CloseAll)
	return fsys, daemon.NewBillyAdapter(fsys)
}

func TestFullStack(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	t.Run("NamespaceListing", func(t *testing.T) {
		g := NewWithT(t)
		env := newLibraryEnv(t)
		env.addPhoto(1, "Dawn", "dawn.jpg", "aaa")
		env.addPhoto(2, "Dusk", "dusk.jpg", "bbb")
		env.setTag(1, "Sky", "thumb0000000000000001,thumb0000000000000002,")

		_, billy := env.openStack()

		roots, err := billy.ReadDir("/")
		g.Expect(err).NotTo(HaveOccurred())
		names := []string{}
		for _, fi := range roots {
			names = append(names, fi.Name())
		}
		g.Expect(names).To(Equal([]string{"Photos", "Videos"}))

		leaves, err := billy.ReadDir("/Photos/Sky")
		g.Expect(err).NotTo(HaveOccurred())
		names = names[:0]
		for _, fi := range leaves {
			names = append(names, fi.Name())
		}
		g.Expect(names).To(Equal([]string{"Dawn.jpg", "Dusk.jpg"}))
	})

	t.Run("ReadContent", func(t *testing.T) {
		g := NewWithT(t)
		env := newLibraryEnv(t)
		env.addPhoto(1, "Dawn", "dawn.jpg", "morning light")
		env.setTag(1, "Sky", "thumb0000000000000001,")

		_, billy := env.openStack()

		f, err := billy.Open("/Photos/Sky/Dawn.jpg")
		g.Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		data, err := io.ReadAll(f)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(string(data)).To(Equal("morning light"))
	})

	t.Run("EverythingIsReadOnly", func(t *testing.T) {
		g := NewWithT(t)
		env := newLibraryEnv(t)
		env.addPhoto(1, "Dawn", "dawn.jpg", "aaa")
		env.setTag(1, "Sky", "thumb0000000000000001,")

		_, billy := env.openStack()

		_, err := billy.Create("/Photos/evil.jpg")
		g.Expect(err).To(Equal(syscall.EROFS))
		g.Expect(billy.Remove("/Photos/Sky/Dawn.jpg")).To(Equal(syscall.EROFS))
		g.Expect(billy.MkdirAll("/Photos/New", 0o755)).To(Equal(syscall.EROFS))

		fi, err := billy.Stat("/Photos/Sky/Dawn.jpg")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(fi.Mode() & 0222).To(BeZero())
	})

	t.Run("RefreshPicksUpNewTag", func(t *testing.T) {
		g := NewWithT(t)
		env := newLibraryEnv(t)
		env.addPhoto(1, "Dawn", "dawn.jpg", "aaa")
		env.setTag(1, "Sky", "thumb0000000000000001,")

		fsys, billy := env.openStack()

		_, err := billy.Stat("/Photos/Weather")
		g.Expect(err).To(Equal(syscall.ENOENT))

		env.setTag(2, "Weather", "thumb0000000000000001,")
		g.Expect(fsys.Refresh(context.Background())).To(Succeed())

		fi, err := billy.Stat("/Photos/Weather")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(fi.IsDir()).To(BeTrue())

		leaves, err := billy.ReadDir("/Photos/Weather")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(leaves).To(HaveLen(1))
		g.Expect(leaves[0].Name()).To(Equal("Dawn.jpg"))
	})

	t.Run("SyncedSnapshotFollowsSource", func(t *testing.T) {
		g := NewWithT(t)
		t.Setenv("PHOTOFS_CONFIG_DIR", t.TempDir())
		env := newLibraryEnv(t)
		env.addPhoto(1, "Dawn", "dawn.jpg", "aaa")
		env.setTag(1, "Sky", "thumb0000000000000001,")

		dbsync, err := daemon.NewDBSync(env.DBPath)
		g.Expect(err).NotTo(HaveOccurred())
		defer dbsync.Stop()

		reader, err := source.OpenShotwell(context.Background(), dbsync.Path())
		g.Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		fsys, err := vfs.New(context.Background(), reader, vfs.Options{})
		g.Expect(err).NotTo(HaveOccurred())
		defer fsys.Handles().CloseAll()

		billy := daemon.NewBillyAdapter(fsys)
		leaves, err := billy.ReadDir("/Photos/Sky")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(leaves).To(HaveLen(1))

		// Grow the library, re-sync the snapshot in place, rebuild.
		env.addPhoto(2, "Dusk", "dusk.jpg", "bbb")
		env.setTag(1, "Sky", "thumb0000000000000001,thumb0000000000000002,")
		g.Expect(dbsync.SyncNow()).To(Succeed())
		g.Expect(fsys.Refresh(context.Background())).To(Succeed())

		leaves, err = billy.ReadDir("/Photos/Sky")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(leaves).To(HaveLen(2))
	})
}
