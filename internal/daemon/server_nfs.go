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

package daemon

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"syscall"
	"time"

	billy "github.com/go-git/go-billy/v5"
	log "github.com/sirupsen/logrus"
	nfs "github.com/willscott/go-nfs"
	nfsfile "github.com/willscott/go-nfs/file"
	nfshelper "github.com/willscott/go-nfs/helpers"

	"photofs/internal/vfs"
)

// NFSServer wraps the go-nfs server around a billy view of the
// namespace. NFS is the transport for hosts without a usable FUSE
// (containers, macOS without macFUSE).
type NFSServer struct {
	listener net.Listener
	server   *nfs.Server
	handler  nfs.Handler
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewNFSServer creates an NFS server serving the given filesystem.
func NewNFSServer(fsys *vfs.PhotoFS) *NFSServer {
	// Match go-nfs log level to the daemon's
	if log.IsLevelEnabled(log.TraceLevel) {
		nfs.Log.SetLevel(nfs.TraceLevel)
	} else if log.IsLevelEnabled(log.DebugLevel) {
		nfs.Log.SetLevel(nfs.DebugLevel)
	}

	billyFS := NewBillyAdapter(fsys)
	handler := nfshelper.NewNullAuthHandler(billyFS)
	cacheHelper := nfshelper.NewCachingHandler(handler, 65536)

	ctx, cancel := context.WithCancel(context.Background())
	server := &nfs.Server{
		Handler: cacheHelper,
		Context: ctx,
	}

	return &NFSServer{
		server:  server,
		handler: cacheHelper,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Serve starts the NFS server on addr and blocks until shutdown.
func (s *NFSServer) Serve(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	log.Infof("[NFS] serving on %s", listener.Addr())
	return s.server.Serve(listener)
}

// Addr returns the bound listener address, or nil before Serve.
func (s *NFSServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops the NFS server gracefully.
func (s *NFSServer) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}

	// Settle time for in-flight NFS operations after the listener
	// closes; clients mount with soft timeouts so nothing blocks.
	time.Sleep(100 * time.Millisecond)

	if s.cancel != nil {
		s.cancel()
	}

	close(s.done)
}

// BillyAdapter exposes the dispatcher as a billy.Filesystem for go-nfs.
// The namespace is read-only, so every mutating method of the interface
// returns EROFS without touching the dispatcher.
type BillyAdapter struct {
	fs  *vfs.PhotoFS
	uid uint32 // cached at construction for BillyFileInfo.Sys()
	gid uint32
}

// NewBillyAdapter creates a billy adapter for the filesystem.
func NewBillyAdapter(fsys *vfs.PhotoFS) *BillyAdapter {
	return &BillyAdapter{
		fs:  fsys,
		uid: uint32(os.Getuid()),
		gid: uint32(os.Getgid()),
	}
}

func (b *BillyAdapter) Open(filename string) (billy.File, error) {
	return b.OpenFile(filename, os.O_RDONLY, 0)
}

func (b *BillyAdapter) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, syscall.EROFS
	}
	b.fs.MaybeRefresh(context.Background())
	attr, err := b.fs.LookupPath(filename)
	if err != nil {
		return nil, err
	}
	handle, err := b.fs.OpenPath(filename)
	if err != nil {
		return nil, err
	}
	return &BillyFile{
		adapter: b,
		handle:  handle,
		name:    filename,
		size:    attr.Size,
	}, nil
}

func (b *BillyAdapter) Create(filename string) (billy.File, error) {
	return nil, syscall.EROFS
}

func (b *BillyAdapter) Stat(filename string) (os.FileInfo, error) {
	b.fs.MaybeRefresh(context.Background())
	attr, err := b.fs.LookupPath(filename)
	if err != nil {
		return nil, err
	}
	return &BillyFileInfo{
		name:    path.Base(filename),
		attr:    attr,
		adapter: b,
	}, nil
}

// Lstat equals Stat: symlink leaves already report link attributes and
// the namespace never follows them server-side.
func (b *BillyAdapter) Lstat(filename string) (os.FileInfo, error) {
	return b.Stat(filename)
}

func (b *BillyAdapter) ReadDir(dirname string) ([]os.FileInfo, error) {
	b.fs.MaybeRefresh(context.Background())
	entries, err := b.fs.ReadDirPath(dirname)
	if err != nil {
		return nil, err
	}

	result := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		// Full attributes when the backing file is reachable; a leaf
		// with a missing backing file stays listed with its type bits
		// so the miss surfaces on access, not in the listing.
		if attr, err := b.fs.LookupPath(path.Join(dirname, e.Name)); err == nil {
			result = append(result, &BillyFileInfo{
				name:    e.Name,
				attr:    attr,
				adapter: b,
			})
			continue
		}
		result = append(result, &BillyFileInfo{
			name:    e.Name,
			attr:    vfs.Attr{Ino: e.Ino, Mode: e.Mode, Nlink: 1},
			adapter: b,
		})
	}
	return result, nil
}

func (b *BillyAdapter) Readlink(link string) (string, error) {
	return b.fs.ReadlinkPath(link)
}

func (b *BillyAdapter) Rename(oldpath, newpath string) error {
	return syscall.EROFS
}

func (b *BillyAdapter) Remove(filename string) error {
	return syscall.EROFS
}

func (b *BillyAdapter) MkdirAll(filename string, perm os.FileMode) error {
	return syscall.EROFS
}

func (b *BillyAdapter) Symlink(target, link string) error {
	return syscall.EROFS
}

func (b *BillyAdapter) TempFile(dir, prefix string) (billy.File, error) {
	return nil, syscall.EROFS
}

func (b *BillyAdapter) Join(elem ...string) string {
	return path.Join(elem...)
}

func (b *BillyAdapter) Chroot(path string) (billy.Filesystem, error) {
	return nil, os.ErrInvalid
}

func (b *BillyAdapter) Root() string {
	return "/"
}

// billy.Change interface. All mutations are refused.
func (b *BillyAdapter) Chmod(name string, mode os.FileMode) error         { return syscall.EROFS }
func (b *BillyAdapter) Lchown(name string, uid, gid int) error            { return syscall.EROFS }
func (b *BillyAdapter) Chown(name string, uid, gid int) error             { return syscall.EROFS }
func (b *BillyAdapter) Chtimes(name string, atime, mtime time.Time) error { return syscall.EROFS }

func (b *BillyAdapter) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.SeekCapability
}

// BillyFile is one open read-only file.
type BillyFile struct {
	adapter *BillyAdapter
	handle  vfs.HandleID
	name    string
	size    int64
	offset  int64
}

func (f *BillyFile) Name() string {
	return f.name
}

func (f *BillyFile) Read(p []byte) (n int, err error) {
	n, err = f.adapter.fs.Read(f.handle, uint64(f.offset), p)
	if err != nil {
		return n, err
	}
	f.offset += int64(n)
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (f *BillyFile) ReadAt(p []byte, off int64) (n int, err error) {
	n, err = f.adapter.fs.Read(f.handle, uint64(off), p)
	// io.ReaderAt requires a non-nil error on short reads.
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

func (f *BillyFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	case io.SeekEnd:
		f.offset = f.size + offset
	}
	return f.offset, nil
}

func (f *BillyFile) Write(p []byte) (int, error) {
	return 0, syscall.EROFS
}

func (f *BillyFile) Truncate(size int64) error {
	return syscall.EROFS
}

func (f *BillyFile) Close() error {
	return f.adapter.fs.Release(f.handle)
}

func (f *BillyFile) Lock() error   { return nil }
func (f *BillyFile) Unlock() error { return nil }

// BillyFileInfo reports one node's attributes to go-nfs.
type BillyFileInfo struct {
	name    string
	attr    vfs.Attr
	adapter *BillyAdapter
}

func (fi *BillyFileInfo) Name() string {
	return fi.name
}

func (fi *BillyFileInfo) Size() int64 {
	return fi.attr.Size
}

func (fi *BillyFileInfo) Mode() os.FileMode {
	mode := os.FileMode(fi.attr.Mode & 0777)
	switch fi.attr.Mode & syscall.S_IFMT {
	case syscall.S_IFDIR:
		mode |= os.ModeDir
	case syscall.S_IFLNK:
		mode |= os.ModeSymlink
	}
	return mode
}

func (fi *BillyFileInfo) ModTime() time.Time {
	return fi.attr.Mtime
}

func (fi *BillyFileInfo) IsDir() bool {
	return fi.attr.Mode&syscall.S_IFMT == syscall.S_IFDIR
}

func (fi *BillyFileInfo) Sys() interface{} {
	// go-nfs's GetInfo() only recognizes file.FileInfo or *file.FileInfo;
	// returning anything else loses stable fileids across requests.
	return &nfsfile.FileInfo{
		Nlink:  1,
		UID:    fi.adapter.uid,
		GID:    fi.adapter.gid,
		Fileid: fi.attr.Ino,
	}
}

var (
	_ billy.Filesystem = (*BillyAdapter)(nil)
	_ billy.Change     = (*BillyAdapter)(nil)
	_ billy.File       = (*BillyFile)(nil)
)
