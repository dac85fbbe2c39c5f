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

// Package vfs is the read-only filesystem core: it owns the inode and
// handle tables and dispatches transport-agnostic operations against an
// immutable namespace snapshot. The FUSE and NFS layers translate their
// protocols into these calls.
package vfs

import (
	"context"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"photofs/internal/common"
	"photofs/internal/index"
	"photofs/internal/namespace"
	"photofs/internal/source"
)

// refreshCheckInterval rate-limits source database mtime checks so that
// bursts of kernel traffic cost at most one Stat per interval.
const refreshCheckInterval = 2 * time.Second

// Options configures the synthesized namespace.
type Options struct {
	// Flat lists every item directly under its kind root instead of
	// grouping by tag.
	Flat bool

	// TimeFormat is the strftime pattern for items without a title.
	TimeFormat string

	// ExcludeTags holds gitignore-style patterns; matching tags are
	// omitted from the namespace.
	ExcludeTags []string

	// PhotosDir and VideosDir override the root directory names.
	PhotosDir string
	VideosDir string
}

func (o Options) namespaceOptions() namespace.Options {
	return namespace.Options{
		Flat:        o.Flat,
		TimeFormat:  o.TimeFormat,
		ExcludeTags: o.ExcludeTags,
		PhotosDir:   o.PhotosDir,
		VideosDir:   o.VideosDir,
	}
}

// snapshot pairs one frozen tree with its inode assignment. A snapshot
// is never mutated after construction; refresh builds a new one and
// swaps the pointer.
type snapshot struct {
	tree   *namespace.Tree
	inodes *InodeTable
}

// PhotoFS dispatches filesystem operations against the current
// namespace snapshot. All read paths are lock-free: they load the
// snapshot pointer once and work against that snapshot for the whole
// operation, so a concurrent refresh never tears a directory listing.
type PhotoFS struct {
	reader  source.Reader
	opts    Options
	handles *HandleTable

	current atomic.Pointer[snapshot]

	// rebuildMu serializes rebuilds and guards sourceMtime. Lookups
	// never take it.
	rebuildMu   sync.Mutex
	sourceMtime time.Time

	checkMu   sync.Mutex
	lastCheck time.Time

	uid uint32
	gid uint32
}

// New builds the initial snapshot from the reader. The build reads the
// whole metadata source once; backing media files are not touched until
// their attributes or contents are first requested.
func New(ctx context.Context, reader source.Reader, opts Options) (*PhotoFS, error) {
	fs := &PhotoFS{
		reader:  reader,
		opts:    opts,
		handles: NewHandleTable(),
		uid:     uint32(os.Getuid()),
		gid:     uint32(os.Getgid()),
	}

	snap, err := fs.buildSnapshot(ctx, RootIno+1)
	if err != nil {
		return nil, err
	}
	fs.current.Store(snap)

	if info, err := os.Stat(reader.Path()); err == nil {
		fs.sourceMtime = info.ModTime()
	}

	log.Infof("[VFS] namespace built: %d nodes from %s", snap.inodes.Len(), reader.Path())
	return fs, nil
}

func (fs *PhotoFS) buildSnapshot(ctx context.Context, nextIno uint64) (*snapshot, error) {
	idx, err := index.Build(ctx, fs.reader)
	if err != nil {
		return nil, err
	}
	tree := namespace.Build(idx, fs.opts.namespaceOptions())
	return &snapshot{
		tree:   tree,
		inodes: AssignInodes(tree, nextIno),
	}, nil
}

// Refresh rebuilds the namespace from the source and atomically swaps
// it in. The new inode table starts where the old one ended, so numbers
// handed out before the swap resolve to ESTALE rather than to a
// different node. On failure the current snapshot stays in service.
func (fs *PhotoFS) Refresh(ctx context.Context) error {
	fs.rebuildMu.Lock()
	defer fs.rebuildMu.Unlock()

	old := fs.current.Load()
	snap, err := fs.buildSnapshot(ctx, old.inodes.NextIno())
	if err != nil {
		log.Errorf("[VFS] refresh failed, keeping current namespace: %v", err)
		return err
	}
	fs.current.Store(snap)
	log.Infof("[VFS] namespace refreshed: %d nodes (was %d)", snap.inodes.Len(), old.inodes.Len())
	return nil
}

// MaybeRefresh rebuilds the namespace when the source database mtime
// has advanced. The mtime check itself is rate-limited; callers may
// invoke this on every lookup.
func (fs *PhotoFS) MaybeRefresh(ctx context.Context) {
	fs.checkMu.Lock()
	if time.Since(fs.lastCheck) < refreshCheckInterval {
		fs.checkMu.Unlock()
		return
	}
	fs.lastCheck = time.Now()
	fs.checkMu.Unlock()

	info, err := os.Stat(fs.reader.Path())
	if err != nil {
		return
	}

	fs.rebuildMu.Lock()
	changed := info.ModTime().After(fs.sourceMtime)
	if changed {
		fs.sourceMtime = info.ModTime()
	}
	fs.rebuildMu.Unlock()

	if changed {
		log.Debugf("[VFS] source changed, rebuilding namespace")
		fs.Refresh(ctx)
	}
}

// Handles exposes the handle table for shutdown cleanup.
func (fs *PhotoFS) Handles() *HandleTable {
	return fs.handles
}

// --- Operations ---
// Every operation resolves against a single snapshot load. Errors are
// the syscall values from errors.go; transports map them 1:1.

// Lookup resolves a name within a parent directory and returns the
// child's attributes.
func (fs *PhotoFS) Lookup(parent uint64, name string) (attr Attr, err error) {
	defer recoverPhotoFSPanic("Lookup", &err)
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() { log.Tracef("[VFS] Lookup %d %q → %v (%v)", parent, name, err, time.Since(start)) }()
	}
	snap := fs.current.Load()
	e, err := snap.inodes.Lookup(parent, name)
	if err != nil {
		return Attr{}, err
	}
	return fs.attr(snap, e)
}

// GetAttr returns the attributes of an inode. Directory attributes come
// from the snapshot; leaf attributes are read from the backing file on
// demand, so a vanished backing file surfaces here as ENOENT while the
// entry itself stays listed.
func (fs *PhotoFS) GetAttr(ino uint64) (attr Attr, err error) {
	defer recoverPhotoFSPanic("GetAttr", &err)
	snap := fs.current.Load()
	e, err := snap.inodes.Entry(ino)
	if err != nil {
		return Attr{}, err
	}
	return fs.attr(snap, e)
}

// ReadDir returns the full listing of a directory in its frozen order.
func (fs *PhotoFS) ReadDir(ino uint64) (entries []DirEntry, err error) {
	defer recoverPhotoFSPanic("ReadDir", &err)
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() {
			log.Tracef("[VFS] ReadDir %d → %d entries, %v (%v)", ino, len(entries), err, time.Since(start))
		}()
	}
	snap := fs.current.Load()
	return snap.inodes.ReadDir(ino)
}

// Readlink returns the target of a symlink leaf, read from the backing
// link itself. Non-symlink nodes return EINVAL.
func (fs *PhotoFS) Readlink(ino uint64) (target string, err error) {
	defer recoverPhotoFSPanic("Readlink", &err)
	snap := fs.current.Load()
	e, err := snap.inodes.Entry(ino)
	if err != nil {
		return "", err
	}
	if e.Node.IsDir() || !e.Node.Item.IsSymlink {
		return "", EINVAL
	}
	target, rlErr := os.Readlink(e.Node.Item.BackingPath)
	if rlErr != nil {
		if os.IsNotExist(rlErr) {
			return "", ENOENT
		}
		return "", EIO
	}
	return target, nil
}

// Open opens a regular leaf for reading and returns a handle.
// Directories return EISDIR, symlinks EINVAL (callers read them with
// Readlink, never Open).
func (fs *PhotoFS) Open(ino uint64) (h HandleID, err error) {
	defer recoverPhotoFSPanic("Open", &err)
	log.Debugf("[VFS] Open: ino=%d", ino)
	snap := fs.current.Load()
	e, err := snap.inodes.Entry(ino)
	if err != nil {
		return 0, err
	}
	if e.Node.IsDir() {
		return 0, EISDIR
	}
	if e.Node.Item.IsSymlink {
		return 0, EINVAL
	}
	return fs.handles.Open(ino, e.Node.Item.BackingPath)
}

// Read reads from an open handle at an absolute offset. A handle stays
// readable across refreshes: it holds its own descriptor and does not
// consult the snapshot.
func (fs *PhotoFS) Read(h HandleID, offset uint64, dest []byte) (n int, err error) {
	defer recoverPhotoFSPanic("Read", &err)
	return fs.handles.Read(h, offset, dest)
}

// Release closes an open handle. Releasing twice returns EBADF.
func (fs *PhotoFS) Release(h HandleID) (err error) {
	defer recoverPhotoFSPanic("Release", &err)
	log.Debugf("[VFS] Release: handle=%d", h)
	return fs.handles.Release(h)
}

// --- Path-based operations ---
// The NFS adapter works in paths rather than inode numbers; these
// resolve a slash path against one snapshot load.

// LookupPath resolves a path from the root and returns its attributes.
func (fs *PhotoFS) LookupPath(path string) (attr Attr, err error) {
	defer recoverPhotoFSPanic("LookupPath", &err)
	snap := fs.current.Load()
	e, err := fs.resolve(snap, path)
	if err != nil {
		return Attr{}, err
	}
	return fs.attr(snap, e)
}

// ReadDirPath lists a directory by path.
func (fs *PhotoFS) ReadDirPath(path string) (entries []DirEntry, err error) {
	defer recoverPhotoFSPanic("ReadDirPath", &err)
	snap := fs.current.Load()
	e, err := fs.resolve(snap, path)
	if err != nil {
		return nil, err
	}
	return snap.inodes.ReadDir(e.Ino)
}

// OpenPath opens a regular leaf by path.
func (fs *PhotoFS) OpenPath(path string) (h HandleID, err error) {
	defer recoverPhotoFSPanic("OpenPath", &err)
	snap := fs.current.Load()
	e, err := fs.resolve(snap, path)
	if err != nil {
		return 0, err
	}
	if e.Node.IsDir() {
		return 0, EISDIR
	}
	if e.Node.Item.IsSymlink {
		return 0, EINVAL
	}
	return fs.handles.Open(e.Ino, e.Node.Item.BackingPath)
}

// ReadlinkPath reads a symlink target by path.
func (fs *PhotoFS) ReadlinkPath(path string) (target string, err error) {
	defer recoverPhotoFSPanic("ReadlinkPath", &err)
	snap := fs.current.Load()
	e, err := fs.resolve(snap, path)
	if err != nil {
		return "", err
	}
	return fs.Readlink(e.Ino)
}

// resolve walks a normalized path component by component within one
// snapshot.
func (fs *PhotoFS) resolve(snap *snapshot, path string) (*InodeEntry, error) {
	path = common.NormalizePath(path)
	e, err := snap.inodes.Entry(RootIno)
	if err != nil {
		return nil, err
	}
	for _, part := range common.SplitPath(path) {
		e, err = snap.inodes.Lookup(e.Ino, part)
		if err != nil {
			return nil, err
		}
	}
	return e, nil
}

// attr builds the attribute set for an entry. Directories are synthetic
// and report the snapshot build time; leaves are lstat'ed lazily so the
// metadata source is never blocked on media storage.
func (fs *PhotoFS) attr(snap *snapshot, e *InodeEntry) (Attr, error) {
	if e.Node.IsDir() {
		built := snap.tree.BuiltAt
		return Attr{
			Ino:   e.Ino,
			Mode:  syscall.S_IFDIR | 0555,
			Nlink: 2,
			Atime: built,
			Mtime: built,
			Ctime: built,
			Uid:   fs.uid,
			Gid:   fs.gid,
		}, nil
	}

	item := e.Node.Item
	info, err := os.Lstat(item.BackingPath)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return Attr{}, ENOENT
		case os.IsPermission(err):
			return Attr{}, EACCES
		default:
			return Attr{}, EIO
		}
	}

	var mode uint32
	if item.IsSymlink {
		mode = syscall.S_IFLNK | 0777
	} else {
		// Write bits are masked off: the namespace is read-only even
		// when the backing file is writable.
		mode = syscall.S_IFREG | (uint32(info.Mode().Perm()) &^ 0222)
	}

	mtime := info.ModTime()
	return Attr{
		Ino:   e.Ino,
		Mode:  mode,
		Nlink: 1,
		Size:  info.Size(),
		Atime: mtime,
		Mtime: mtime,
		Ctime: mtime,
		Uid:   fs.uid,
		Gid:   fs.gid,
	}, nil
}

// recoverPhotoFSPanic converts a panic in an operation into EIO so one
// bad request cannot take down the transport server.
func recoverPhotoFSPanic(operation string, err *error) {
	if r := recover(); r != nil {
		log.Errorf("[VFS] PANIC RECOVERED in %s: %v\nStack:\n%s", operation, r, debug.Stack())
		if err != nil {
			*err = EIO
		}
	}
}
