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

// Package fuse exposes a PhotoFS over the kernel FUSE protocol. The
// adapter is a thin translation layer: every request resolves through
// the vfs dispatcher and every vfs error maps to its FUSE status.
package fuse

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"

	"photofs/internal/vfs"
)

// Attribute and entry timeouts handed to the kernel. One second keeps
// repeated stats of the same tree cheap; refresh correctness does not
// depend on them because retired inode numbers resolve to ESTALE.
const (
	entryTimeout = 1 * time.Second
	attrTimeout  = 1 * time.Second
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string

	// FS is the dispatcher serving the namespace.
	FS *vfs.PhotoFS

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Debug enables go-fuse request tracing.
	Debug bool
}

// Mount mounts the filesystem at the configured mountpoint. The caller
// owns the returned server: Wait blocks until unmount, Unmount detaches.
// The mountpoint directory is created if it does not exist.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.FS == nil {
		return nil, fmt.Errorf("filesystem is required")
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	raw := &rawFS{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		fs:            options.FS,
	}

	server, err := fuse.NewServer(raw, options.Mountpoint, &fuse.MountOptions{
		FsName:     "photofs",
		Name:       "photofs",
		AllowOther: options.AllowOther,
		Debug:      options.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	log.Infof("[FUSE] mounted at %s", options.Mountpoint)
	return server, nil
}

// rawFS adapts the vfs dispatcher to the raw FUSE protocol. The raw API
// is used instead of the node API because the dispatcher already owns
// inode numbering; wrapping it in a second inode layer would break the
// stale-number semantics across refreshes.
type rawFS struct {
	fuse.RawFileSystem
	fs *vfs.PhotoFS
}

func (r *rawFS) String() string {
	return "photofs"
}

func (r *rawFS) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	r.fs.MaybeRefresh(context.Background())
	attr, err := r.fs.Lookup(header.NodeId, name)
	if err != nil {
		return fuse.ToStatus(err)
	}
	fillEntryOut(attr, out)
	return fuse.OK
}

func (r *rawFS) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	attr, err := r.fs.GetAttr(input.NodeId)
	if err != nil {
		return fuse.ToStatus(err)
	}
	fillAttr(attr, &out.Attr)
	out.SetTimeout(attrTimeout)
	return fuse.OK
}

func (r *rawFS) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	r.fs.MaybeRefresh(context.Background())
	// Directory state lives in the snapshot, not in a handle; the
	// listing is re-fetched per ReadDir call.
	if _, err := r.fs.ReadDir(input.NodeId); err != nil {
		return fuse.ToStatus(err)
	}
	return fuse.OK
}

func (r *rawFS) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	entries, err := r.fs.ReadDir(input.NodeId)
	if err != nil {
		return fuse.ToStatus(err)
	}
	if input.Offset > uint64(len(entries)) {
		return fuse.OK
	}
	for _, e := range entries[input.Offset:] {
		ok := out.AddDirEntry(fuse.DirEntry{
			Name: e.Name,
			Ino:  e.Ino,
			Mode: e.Mode,
		})
		if !ok {
			break
		}
	}
	return fuse.OK
}

func (r *rawFS) ReadDirPlus(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	entries, err := r.fs.ReadDir(input.NodeId)
	if err != nil {
		return fuse.ToStatus(err)
	}
	if input.Offset > uint64(len(entries)) {
		return fuse.OK
	}
	for _, e := range entries[input.Offset:] {
		entryOut := out.AddDirLookupEntry(fuse.DirEntry{
			Name: e.Name,
			Ino:  e.Ino,
			Mode: e.Mode,
		})
		if entryOut == nil {
			break
		}
		// A leaf whose backing file is gone stays listed; leaving the
		// entry zeroed makes the kernel refetch attributes on access,
		// where the miss is reported per operation.
		if attr, err := r.fs.Lookup(input.NodeId, e.Name); err == nil {
			fillEntryOut(attr, entryOut)
		}
	}
	return fuse.OK
}

func (r *rawFS) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	if input.Flags&uint32(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return fuse.ToStatus(syscall.EROFS)
	}
	h, err := r.fs.Open(input.NodeId)
	if err != nil {
		return fuse.ToStatus(err)
	}
	out.Fh = uint64(h)
	// Backing media never changes under a snapshot, so the kernel page
	// cache stays valid across opens.
	out.OpenFlags = fuse.FOPEN_KEEP_CACHE
	return fuse.OK
}

func (r *rawFS) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	n, err := r.fs.Read(vfs.HandleID(input.Fh), input.Offset, buf)
	if err != nil {
		return nil, fuse.ToStatus(err)
	}
	return fuse.ReadResultData(buf[:n]), fuse.OK
}

func (r *rawFS) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	if err := r.fs.Release(vfs.HandleID(input.Fh)); err != nil {
		log.Debugf("[FUSE] release handle=%d: %v", input.Fh, err)
	}
}

func (r *rawFS) Readlink(cancel <-chan struct{}, header *fuse.InHeader) ([]byte, fuse.Status) {
	target, err := r.fs.Readlink(header.NodeId)
	if err != nil {
		return nil, fuse.ToStatus(err)
	}
	return []byte(target), fuse.OK
}

func (r *rawFS) StatFs(cancel <-chan struct{}, input *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	out.Bsize = 4096
	out.NameLen = 255
	return fuse.OK
}

// --- Mutating operations ---
// The namespace is read-only; every mutation is refused up front rather
// than left to the default ENOSYS.

func (r *rawFS) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	return fuse.ToStatus(syscall.EROFS)
}

func (r *rawFS) Mknod(cancel <-chan struct{}, input *fuse.MknodIn, name string, out *fuse.EntryOut) fuse.Status {
	return fuse.ToStatus(syscall.EROFS)
}

func (r *rawFS) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	return fuse.ToStatus(syscall.EROFS)
}

func (r *rawFS) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return fuse.ToStatus(syscall.EROFS)
}

func (r *rawFS) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return fuse.ToStatus(syscall.EROFS)
}

func (r *rawFS) Rename(cancel <-chan struct{}, input *fuse.RenameIn, oldName string, newName string) fuse.Status {
	return fuse.ToStatus(syscall.EROFS)
}

func (r *rawFS) Link(cancel <-chan struct{}, input *fuse.LinkIn, name string, out *fuse.EntryOut) fuse.Status {
	return fuse.ToStatus(syscall.EROFS)
}

func (r *rawFS) Symlink(cancel <-chan struct{}, header *fuse.InHeader, pointedTo string, linkName string, out *fuse.EntryOut) fuse.Status {
	return fuse.ToStatus(syscall.EROFS)
}

func (r *rawFS) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	return fuse.ToStatus(syscall.EROFS)
}

func (r *rawFS) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	return 0, fuse.ToStatus(syscall.EROFS)
}

func (r *rawFS) SetXAttr(cancel <-chan struct{}, input *fuse.SetXAttrIn, attr string, data []byte) fuse.Status {
	return fuse.ToStatus(syscall.EROFS)
}

func (r *rawFS) RemoveXAttr(cancel <-chan struct{}, header *fuse.InHeader, attr string) fuse.Status {
	return fuse.ToStatus(syscall.EROFS)
}

func fillEntryOut(attr vfs.Attr, out *fuse.EntryOut) {
	out.NodeId = attr.Ino
	fillAttr(attr, &out.Attr)
	out.SetEntryTimeout(entryTimeout)
	out.SetAttrTimeout(attrTimeout)
}

func fillAttr(a vfs.Attr, out *fuse.Attr) {
	out.Ino = a.Ino
	out.Size = uint64(a.Size)
	out.Blocks = (uint64(a.Size) + 511) / 512
	out.Mode = a.Mode
	out.Nlink = a.Nlink
	out.Owner = fuse.Owner{Uid: a.Uid, Gid: a.Gid}
	out.SetTimes(&a.Atime, &a.Mtime, &a.Ctime)
}
