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

package namespace

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
	log "github.com/sirupsen/logrus"

	"photofs/internal/index"
	"photofs/internal/source"
)

// DefaultTimeFormat names items without a title, strftime-style.
const DefaultTimeFormat = "%Y-%m-%d, %H.%M"

const (
	// DefaultPhotosDir is the root directory for photos.
	DefaultPhotosDir = "Photos"
	// DefaultVideosDir is the root directory for videos.
	DefaultVideosDir = "Videos"
)

// Options configures a namespace build.
type Options struct {
	// Flat collapses the tag level: each root lists every item of its
	// kind directly, each item exactly once.
	Flat bool

	// TimeFormat is the strftime pattern for timestamp fallback names.
	// Empty means DefaultTimeFormat.
	TimeFormat string

	// ExcludeTags holds gitignore-style patterns matched against a
	// tag's full hierarchical path; matching tags (and their nested
	// tags) are omitted from the namespace.
	ExcludeTags []string

	// PhotosDir and VideosDir override the root directory names.
	PhotosDir string
	VideosDir string
}

func (o Options) timeFormat() string {
	if o.TimeFormat == "" {
		return DefaultTimeFormat
	}
	return o.TimeFormat
}

func (o Options) photosDir() string {
	if o.PhotosDir == "" {
		return DefaultPhotosDir
	}
	return o.PhotosDir
}

func (o Options) videosDir() string {
	if o.VideosDir == "" {
		return DefaultVideosDir
	}
	return o.VideosDir
}

// Build constructs the namespace tree for one index snapshot. The result
// is fully deterministic given the same index and options: tags are
// placed in source-identifier order, colliding names are suffixed in
// that order, and every directory is frozen into lexicographic listing
// order.
func Build(idx *index.Index, opts Options) *Tree {
	root := newDir("")
	photos := newDir(opts.photosDir())
	videos := newDir(opts.videosDir())
	root.add(photos)
	root.add(videos)

	if opts.Flat {
		buildFlat(photos, idx, source.KindPhoto, opts)
		buildFlat(videos, idx, source.KindVideo, opts)
	} else {
		buildTagged(photos, idx, source.KindPhoto, opts)
		buildTagged(videos, idx, source.KindVideo, opts)
	}

	root.freeze()
	return &Tree{Root: root, BuiltAt: time.Now()}
}

// buildFlat lists every item of the kind directly under the root, each
// exactly once regardless of how many tags it carries.
func buildFlat(root *Node, idx *index.Index, kind source.Kind, opts Options) {
	namer := newLeafNamer(root, opts.timeFormat())
	for _, item := range idx.Items {
		if item.Kind != kind {
			continue
		}
		namer.place(item)
	}
}

// buildTagged creates one directory per tag containing the tag's items
// of the given kind. Tag directories that would be empty for this kind
// are omitted. Sibling tag directories that resolve to the same name are
// disambiguated by appending " (<tag id>)" until the name is unique,
// first tag in id order keeps the plain name; a tag is never silently
// dropped.
func buildTagged(root *Node, idx *index.Index, kind source.Kind, opts Options) {
	filter := newTagFilter(opts.ExcludeTags)

	for _, tag := range idx.Tags {
		if filter.Excluded(tag.FullPath()) {
			log.Debugf("[namespace] tag %q excluded by pattern", tag.FullPath())
			continue
		}

		var members []*index.MediaItem
		for _, item := range idx.MembersOf(tag.ID) {
			if item.Kind == kind {
				members = append(members, item)
			}
		}
		if len(members) == 0 {
			continue
		}

		name := tag.Name
		// The suffixed name can itself collide with an existing tag
		// directory, so suffix until the name is free.
		for root.has(name) {
			name = fmt.Sprintf("%s (%s)", name, tag.ID)
			log.Debugf("[namespace] tag name collision under %q: %q renamed to %q",
				root.Name, tag.Name, name)
		}
		dir := newDir(name)
		root.add(dir)

		namer := newLeafNamer(dir, opts.timeFormat())
		for _, item := range members {
			namer.place(item)
		}
	}
}

// leafNamer assigns unique leaf names within one directory. The base
// name is the item's title, or its exposure time rendered with the
// configured strftime pattern; the backing file's lowercased extension
// is kept. Items are placed in source-identifier order, so when several
// resolve to the same base name the first keeps it and the rest get
// " (1)", " (2)", ... between base and extension.
type leafNamer struct {
	dir        *Node
	timeFormat string
	collisions map[string]int
}

func newLeafNamer(dir *Node, timeFormat string) *leafNamer {
	return &leafNamer{
		dir:        dir,
		timeFormat: timeFormat,
		collisions: make(map[string]int),
	}
}

func (ln *leafNamer) place(item *index.MediaItem) {
	base := item.Title
	if base == "" {
		base = strftime.Format(ln.timeFormat, item.ExposureTime)
	}
	ext := strings.ToLower(filepath.Ext(item.BackingPath))

	name := base + ext
	for ln.dir.has(name) {
		ln.collisions[base+ext]++
		name = fmt.Sprintf("%s (%d)%s", base, ln.collisions[base+ext], ext)
	}

	ln.dir.add(&Node{
		Name: name,
		Kind: Leaf,
		Item: item,
	})
}
