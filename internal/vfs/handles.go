package vfs

import (
	"io"
	"os"
	"sync"
)

// HandleID is the type for open file handles.
type HandleID uint64

// openHandle is one open instance of a backing file. Its mutable state
// is protected by its own lock, scoped to this handle alone: operations
// on one handle never serialize operations on another, and reads take
// absolute offsets so concurrent reads on the same handle cannot corrupt
// each other's position.
type openHandle struct {
	mu       sync.Mutex
	ino      uint64
	path     string
	file     *os.File
	released bool
}

// HandleTable is the concurrency-safe registry of open handles. The
// table lock guards only insertion and removal of entries, never a
// handle's own I/O.
type HandleTable struct {
	mu      sync.RWMutex
	handles map[HandleID]*openHandle
	next    HandleID
}

// NewHandleTable creates an empty handle table.
func NewHandleTable() *HandleTable {
	return &HandleTable{
		handles: make(map[HandleID]*openHandle),
		next:    1,
	}
}

// Open opens the backing file for reading and registers a new handle.
// Missing files map to ENOENT, permission failures to EACCES.
func (ht *HandleTable) Open(ino uint64, path string) (HandleID, error) {
	f, err := os.Open(path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return 0, ENOENT
		case os.IsPermission(err):
			return 0, EACCES
		default:
			return 0, EIO
		}
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	id := ht.next
	ht.next++
	ht.handles[id] = &openHandle{
		ino:  ino,
		path: path,
		file: f,
	}
	return id, nil
}

func (ht *HandleTable) get(id HandleID) (*openHandle, bool) {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	h, ok := ht.handles[id]
	return h, ok
}

// Read reads up to len(dest) bytes at the given absolute offset. A read
// past the end of the file returns the short count with no error. An
// unknown or released handle returns EBADF.
func (ht *HandleTable) Read(id HandleID, offset uint64, dest []byte) (int, error) {
	h, ok := ht.get(id)
	if !ok {
		return 0, EBADF
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return 0, EBADF
	}
	n, err := h.file.ReadAt(dest, int64(offset))
	if err != nil && err != io.EOF {
		return n, EIO
	}
	return n, nil
}

// Release closes the backing descriptor and removes the handle. A second
// release of the same id returns EBADF rather than touching the (gone)
// state.
func (ht *HandleTable) Release(id HandleID) error {
	ht.mu.Lock()
	h, ok := ht.handles[id]
	delete(ht.handles, id)
	ht.mu.Unlock()
	if !ok {
		return EBADF
	}

	// Taking the handle lock here means an in-flight Read finishes
	// against the still-open descriptor before it is closed.
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = true
	if err := h.file.Close(); err != nil {
		return EIO
	}
	return nil
}

// Len returns the number of open handles.
func (ht *HandleTable) Len() int {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	return len(ht.handles)
}

// CloseAll releases every handle. Used at unmount.
func (ht *HandleTable) CloseAll() {
	ht.mu.Lock()
	handles := ht.handles
	ht.handles = make(map[HandleID]*openHandle)
	ht.mu.Unlock()

	for _, h := range handles {
		h.mu.Lock()
		if !h.released {
			h.released = true
			h.file.Close()
		}
		h.mu.Unlock()
	}
}
