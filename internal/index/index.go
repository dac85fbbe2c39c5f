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

// Package index holds the in-memory snapshot of all tagged media items,
// built once per mount (or refresh) from the metadata source.
package index

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"photofs/internal/source"
)

// MediaItem is one physical photo or video. Immutable after Build.
type MediaItem struct {
	SourceID     string
	Kind         source.Kind
	Title        string
	ExposureTime time.Time
	BackingPath  string
	IsSymlink    bool
	TagIDs       []string
}

// Tag is one named category. Name is the tag's own (final) path segment;
// Path holds the full hierarchical segments, e.g. ["Travel", "Italy"].
type Tag struct {
	ID        string
	Name      string
	Path      []string
	ParentID  string
	HasPhotos bool
	HasVideos bool
}

// FullPath returns the tag's hierarchical path joined with '/'.
func (t *Tag) FullPath() string {
	return strings.Join(t.Path, "/")
}

// Index is an immutable snapshot of the metadata store.
type Index struct {
	Items []*MediaItem // sorted by SourceID
	Tags  []*Tag       // sorted by ID
	byTag map[string][]*MediaItem
}

// Build constructs an Index from the given reader. It fails only when the
// source itself is unreadable; individual bad rows have already been
// dropped by the reader.
func Build(ctx context.Context, r source.Reader) (*Index, error) {
	rows, err := r.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	tagRows, err := r.ReadTags(ctx)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		byTag: make(map[string][]*MediaItem),
	}

	for _, row := range rows {
		item := &MediaItem{
			SourceID:     row.SourceID,
			Kind:         row.Kind,
			Title:        row.Title,
			ExposureTime: row.ExposureTime,
			BackingPath:  row.BackingPath,
			IsSymlink:    row.IsSymlink,
			TagIDs:       append([]string(nil), row.TagIDs...),
		}
		idx.Items = append(idx.Items, item)
		for _, tagID := range item.TagIDs {
			idx.byTag[tagID] = append(idx.byTag[tagID], item)
		}
	}
	sort.Slice(idx.Items, func(i, j int) bool {
		return idx.Items[i].SourceID < idx.Items[j].SourceID
	})
	for _, members := range idx.byTag {
		sort.Slice(members, func(i, j int) bool {
			return members[i].SourceID < members[j].SourceID
		})
	}

	byPath := make(map[string]string) // full path -> tag id, for parent links
	for _, tr := range tagRows {
		t := &Tag{
			ID:        tr.ID,
			Path:      splitTagName(tr.Name),
			HasPhotos: tr.HasPhotos,
			HasVideos: tr.HasVideos,
		}
		if len(t.Path) == 0 {
			continue
		}
		t.Name = t.Path[len(t.Path)-1]
		idx.Tags = append(idx.Tags, t)
		byPath[t.FullPath()] = t.ID
	}
	sort.Slice(idx.Tags, func(i, j int) bool {
		return lessTagID(idx.Tags[i].ID, idx.Tags[j].ID)
	})
	for _, t := range idx.Tags {
		if len(t.Path) > 1 {
			t.ParentID = byPath[strings.Join(t.Path[:len(t.Path)-1], "/")]
		}
	}

	return idx, nil
}

// MembersOf returns the media items carrying the given tag, ordered by
// SourceID.
func (idx *Index) MembersOf(tagID string) []*MediaItem {
	return idx.byTag[tagID]
}

// lessTagID orders tag ids numerically. Ids are decimal strings, so a
// plain string compare would put "10" before "2".
func lessTagID(a, b string) bool {
	an, aerr := strconv.ParseInt(a, 10, 64)
	bn, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return an < bn
	}
	return a < b
}

// splitTagName breaks a stored tag name into hierarchy segments. Nested
// tag names start with '/' ("/Travel/Italy"); plain names are a single
// segment.
func splitTagName(name string) []string {
	if name == "" {
		return nil
	}
	if !strings.HasPrefix(name, "/") {
		return []string{name}
	}
	var segments []string
	for _, s := range strings.Split(name, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
