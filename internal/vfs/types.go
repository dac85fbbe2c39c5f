package vfs

import "time"

// Attr is the attribute set reported for one node.
type Attr struct {
	Ino   uint64
	Mode  uint32 // type bits and permissions
	Nlink uint32
	Size  int64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
	Uid   uint32
	Gid   uint32
}

// DirEntry is one row of a directory listing. Mode carries type bits
// only; full attributes are fetched per node on demand.
type DirEntry struct {
	Name string
	Ino  uint64
	Mode uint32
}
