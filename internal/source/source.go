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

// Package source reads media and tag metadata from a photo manager's
// database snapshot. The snapshot is treated as a pure read-only store;
// nothing here ever writes back.
package source

import (
	"context"
	"time"
)

// Kind classifies a media item.
type Kind int

const (
	// KindPhoto is a still image.
	KindPhoto Kind = iota
	// KindVideo is a video clip.
	KindVideo
)

func (k Kind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "photo"
}

// MediaRow is one tagged media item as stored in the metadata database.
type MediaRow struct {
	SourceID     string // opaque, unique across photos and videos
	Kind         Kind
	Title        string // optional; empty means "use ExposureTime"
	ExposureTime time.Time
	BackingPath  string   // absolute path to the real file
	IsSymlink    bool     // whether BackingPath is itself a symlink
	TagIDs       []string // identifiers of the tags the item carries
}

// TagRow is one tag as stored in the metadata database. Name may be
// hierarchical (a leading '/' marks a nested tag path such as
// "/Travel/Italy"). HasPhotos and HasVideos record which kinds of media
// the tag actually contains.
type TagRow struct {
	ID        string
	Name      string
	HasPhotos bool
	HasVideos bool
}

// Reader is the read-only query layer over one metadata snapshot.
type Reader interface {
	// ReadAll returns every tagged media row. Rows missing required
	// fields are skipped and logged, never fatal.
	ReadAll(ctx context.Context) ([]MediaRow, error)

	// ReadTags returns every tag row that has at least one member.
	ReadTags(ctx context.Context) ([]TagRow, error)

	// Path returns the snapshot file path, used for change detection.
	Path() string

	Close() error
}
