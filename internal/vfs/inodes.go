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

package vfs

import (
	"syscall"

	"photofs/internal/namespace"
)

// RootIno is the inode number of the filesystem root in every snapshot.
const RootIno uint64 = 1

// InodeEntry binds one synthetic inode number to its namespace node.
type InodeEntry struct {
	Ino    uint64
	Parent uint64
	Node   *namespace.Node

	children map[string]uint64 // directories only
}

// InodeTable maps inode numbers to namespace nodes for one snapshot.
// Numbers other than the root are allocated from a monotonically
// advancing base, so a number from a retired snapshot is never reused
// and resolves to ESTALE instead of a different node.
type InodeTable struct {
	entries map[uint64]*InodeEntry
	base    uint64 // first non-root number assigned in this table
	max     uint64 // last number assigned
}

// AssignInodes walks the tree once, depth-first in listing order, giving
// the root inode 1 and every other node sequential numbers starting at
// nextIno. Identical trees with the same nextIno always produce
// identical assignments.
func AssignInodes(tree *namespace.Tree, nextIno uint64) *InodeTable {
	if nextIno <= RootIno {
		nextIno = RootIno + 1
	}
	t := &InodeTable{
		entries: make(map[uint64]*InodeEntry),
		base:    nextIno,
		max:     nextIno - 1,
	}

	root := &InodeEntry{
		Ino:      RootIno,
		Parent:   RootIno,
		Node:     tree.Root,
		children: make(map[string]uint64),
	}
	t.entries[RootIno] = root
	t.assign(root)
	return t
}

func (t *InodeTable) assign(parent *InodeEntry) {
	for _, child := range parent.Node.Children() {
		t.max++
		e := &InodeEntry{
			Ino:    t.max,
			Parent: parent.Ino,
			Node:   child,
		}
		if child.IsDir() {
			e.children = make(map[string]uint64)
		}
		t.entries[e.Ino] = e
		parent.children[child.Name] = e.Ino
		if child.IsDir() {
			t.assign(e)
		}
	}
}

// NextIno returns the base the successor snapshot's table must use so
// that this table's numbers are never reassigned.
func (t *InodeTable) NextIno() uint64 {
	return t.max + 1
}

// Len returns the number of assigned inodes, including the root.
func (t *InodeTable) Len() int {
	return len(t.entries)
}

// Entry resolves an inode number. Numbers below this table's base belong
// to a retired snapshot and come back as ESTALE; numbers never assigned
// come back as ENOENT.
func (t *InodeTable) Entry(ino uint64) (*InodeEntry, error) {
	if e, ok := t.entries[ino]; ok {
		return e, nil
	}
	if ino != RootIno && ino < t.base {
		return nil, ESTALE
	}
	return nil, ENOENT
}

// Lookup resolves a name within a parent directory.
func (t *InodeTable) Lookup(parent uint64, name string) (*InodeEntry, error) {
	p, err := t.Entry(parent)
	if err != nil {
		return nil, err
	}
	if !p.Node.IsDir() {
		return nil, ENOTDIR
	}
	ino, ok := p.children[name]
	if !ok {
		return nil, ENOENT
	}
	return t.entries[ino], nil
}

// ReadDir lists a directory in its frozen order.
func (t *InodeTable) ReadDir(ino uint64) ([]DirEntry, error) {
	e, err := t.Entry(ino)
	if err != nil {
		return nil, err
	}
	if !e.Node.IsDir() {
		return nil, ENOTDIR
	}
	entries := make([]DirEntry, 0, len(e.Node.Children()))
	for _, child := range e.Node.Children() {
		mode := uint32(syscall.S_IFREG)
		switch {
		case child.IsDir():
			mode = syscall.S_IFDIR
		case child.Item != nil && child.Item.IsSymlink:
			mode = syscall.S_IFLNK
		}
		entries = append(entries, DirEntry{
			Name: child.Name,
			Ino:  e.children[child.Name],
			Mode: mode,
		})
	}
	return entries, nil
}

// ResolvePath returns the backing file path of a leaf inode.
func (t *InodeTable) ResolvePath(ino uint64) (string, error) {
	e, err := t.Entry(ino)
	if err != nil {
		return "", err
	}
	if e.Node.IsDir() {
		return "", EISDIR
	}
	return e.Node.Item.BackingPath, nil
}
