package daemon

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	nfsfile "github.com/willscott/go-nfs/file"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photofs/internal/source"
	"photofs/internal/vfs"
)

type staticReader struct {
	rows []source.MediaRow
	tags []source.TagRow
	path string
}

func (r *staticReader) ReadAll(ctx context.Context) ([]source.MediaRow, error) { return r.rows, nil }
func (r *staticReader) ReadTags(ctx context.Context) ([]source.TagRow, error)  { return r.tags, nil }
func (r *staticReader) Path() string                                           { return r.path }
func (r *staticReader) Close() error                                           { return nil }

func newBillyFixture(t *testing.T) *BillyAdapter {
	t.Helper()
	dir := t.TempDir()
	backing := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.WriteFile(backing, []byte("0123456789"), 0o644))

	reader := &staticReader{
		path: filepath.Join(dir, "photo.db"),
		rows: []source.MediaRow{
			{SourceID: source.PhotoSourceID(1), Kind: source.KindPhoto, Title: "Shot", BackingPath: backing, TagIDs: []string{"1"}},
		},
		tags: []source.TagRow{{ID: "1", Name: "Trip", HasPhotos: true}},
	}

	fsys, err := vfs.New(context.Background(), reader, vfs.Options{})
	require.NoError(t, err)
	t.Cleanup(fsys.Handles().CloseAll)
	return NewBillyAdapter(fsys)
}

func TestBillyOpenAndRead(t *testing.T) {
	b := newBillyFixture(t)

	f, err := b.Open("/Photos/Trip/Shot.jpg")
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 4)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "0123", string(buf))

	// Read advances the file position.
	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "4567", string(buf[:n]))

	n, err = f.ReadAt(buf[:2], 8)
	require.NoError(t, err)
	assert.Equal(t, "89", string(buf[:n]))
}

func TestBillyReadAtPastEOF(t *testing.T) {
	b := newBillyFixture(t)

	f, err := b.Open("/Photos/Trip/Shot.jpg")
	require.NoError(t, err)
	defer f.Close()

	// A short read must carry io.EOF so io.SectionReader and friends
	// terminate instead of looping on a nil error.
	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 8)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "89", string(buf[:n]))

	n, err = f.ReadAt(buf, 20)
	assert.Equal(t, io.EOF, err)
	assert.Zero(t, n)
}

func TestBillyReadToEOF(t *testing.T) {
	b := newBillyFixture(t)

	f, err := b.Open("/Photos/Trip/Shot.jpg")
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
}

func TestBillySeek(t *testing.T) {
	b := newBillyFixture(t)

	f, err := b.Open("/Photos/Trip/Shot.jpg")
	require.NoError(t, err)
	defer f.Close()

	pos, err := f.Seek(-2, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(8), pos)

	buf := make([]byte, 2)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "89", string(buf[:n]))
}

func TestBillyStat(t *testing.T) {
	b := newBillyFixture(t)

	fi, err := b.Stat("/Photos/Trip")
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
	assert.Equal(t, "Trip", fi.Name())

	fi, err = b.Stat("/Photos/Trip/Shot.jpg")
	require.NoError(t, err)
	assert.False(t, fi.IsDir())
	assert.Equal(t, int64(10), fi.Size())
	assert.Zero(t, fi.Mode()&0222, "no write bits over NFS")

	sys, ok := fi.Sys().(*nfsfile.FileInfo)
	require.True(t, ok, "Sys must be a go-nfs FileInfo for stable fileids")
	assert.NotZero(t, sys.Fileid)

	_, err = b.Stat("/Photos/Nope")
	assert.Equal(t, syscall.ENOENT, err)
}

func TestBillyReadDir(t *testing.T) {
	b := newBillyFixture(t)

	infos, err := b.ReadDir("/")
	require.NoError(t, err)
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		names = append(names, fi.Name())
		assert.True(t, fi.IsDir())
	}
	assert.Equal(t, []string{"Photos", "Videos"}, names)

	infos, err = b.ReadDir("/Photos/Trip")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "Shot.jpg", infos[0].Name())
}

func TestBillyRejectsMutation(t *testing.T) {
	b := newBillyFixture(t)

	_, err := b.OpenFile("/Photos/Trip/Shot.jpg", os.O_RDWR, 0)
	assert.Equal(t, syscall.EROFS, err)
	_, err = b.Create("/Photos/new.jpg")
	assert.Equal(t, syscall.EROFS, err)
	assert.Equal(t, syscall.EROFS, b.Remove("/Photos/Trip/Shot.jpg"))
	assert.Equal(t, syscall.EROFS, b.Rename("/Photos/Trip/Shot.jpg", "/Photos/x.jpg"))
	assert.Equal(t, syscall.EROFS, b.MkdirAll("/Photos/New", 0o755))
	assert.Equal(t, syscall.EROFS, b.Symlink("a", "b"))
	assert.Equal(t, syscall.EROFS, b.Chmod("/Photos", 0o777))

	f, err := b.Open("/Photos/Trip/Shot.jpg")
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Write([]byte("x"))
	assert.Equal(t, syscall.EROFS, err)
	assert.Equal(t, syscall.EROFS, f.Truncate(0))
}
