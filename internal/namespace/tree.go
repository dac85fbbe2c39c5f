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

// Package namespace turns a metadata index into the directory tree the
// filesystem exposes: two roots (Photos, Videos), one directory per tag,
// and disambiguated leaf names for every tagged item.
package namespace

import (
	"sort"
	"time"

	"photofs/internal/index"
)

// NodeKind distinguishes directories from media leaves.
type NodeKind int

const (
	// Dir is a root, tag, or flat container directory.
	Dir NodeKind = iota
	// Leaf references exactly one media item.
	Leaf
)

// Node is one entry in the synthesized tree. Within a directory all
// child names are unique; uniqueness is enforced at construction time,
// never at lookup time.
type Node struct {
	Name string
	Kind NodeKind

	// Item is set for leaves only.
	Item *index.MediaItem

	children []*Node
	byName   map[string]*Node
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool {
	return n.Kind == Dir
}

// Children returns the node's children in listing order.
func (n *Node) Children() []*Node {
	return n.children
}

// Child returns the named child, if any.
func (n *Node) Child(name string) (*Node, bool) {
	c, ok := n.byName[name]
	return c, ok
}

func newDir(name string) *Node {
	return &Node{
		Name:   name,
		Kind:   Dir,
		byName: make(map[string]*Node),
	}
}

func (n *Node) has(name string) bool {
	_, ok := n.byName[name]
	return ok
}

func (n *Node) add(child *Node) {
	n.byName[child.Name] = child
	n.children = append(n.children, child)
}

// freeze puts every directory's children into their final listing order.
func (n *Node) freeze() {
	sort.Slice(n.children, func(i, j int) bool {
		return n.children[i].Name < n.children[j].Name
	})
	for _, c := range n.children {
		if c.Kind == Dir {
			c.freeze()
		}
	}
}

// Walk visits every node depth-first in listing order, starting with the
// root. fn receives the node and its slash-joined path from the root.
func (n *Node) Walk(fn func(path string, node *Node)) {
	n.walk("", fn)
}

func (n *Node) walk(prefix string, fn func(string, *Node)) {
	for _, c := range n.children {
		path := c.Name
		if prefix != "" {
			path = prefix + "/" + c.Name
		}
		fn(path, c)
		if c.Kind == Dir {
			c.walk(path, fn)
		}
	}
}

// Tree is one frozen namespace. It is immutable until the next rebuild.
type Tree struct {
	Root    *Node
	BuiltAt time.Time
}
