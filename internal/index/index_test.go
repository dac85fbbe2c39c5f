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

package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photofs/internal/source"
)

type fakeReader struct {
	rows []source.MediaRow
	tags []source.TagRow
}

func (f *fakeReader) ReadAll(ctx context.Context) ([]source.MediaRow, error) { return f.rows, nil }
func (f *fakeReader) ReadTags(ctx context.Context) ([]source.TagRow, error)  { return f.tags, nil }
func (f *fakeReader) Path() string                                           { return "fake.db" }
func (f *fakeReader) Close() error                                           { return nil }

func testTime(s string) time.Time {
	tm, _ := time.Parse("2006-01-02 15:04:05", s)
	return tm
}

func TestBuildOrdersItemsBySourceID(t *testing.T) {
	t.Parallel()
	r := &fakeReader{
		rows: []source.MediaRow{
			{SourceID: "thumb0000000000000003", Kind: source.KindPhoto, Title: "c", BackingPath: "/p/c.jpg"},
			{SourceID: "thumb0000000000000001", Kind: source.KindPhoto, Title: "a", BackingPath: "/p/a.jpg"},
			{SourceID: "thumb0000000000000002", Kind: source.KindPhoto, Title: "b", BackingPath: "/p/b.jpg"},
		},
	}

	idx, err := Build(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, idx.Items, 3)
	assert.Equal(t, "a", idx.Items[0].Title)
	assert.Equal(t, "b", idx.Items[1].Title)
	assert.Equal(t, "c", idx.Items[2].Title)
}

func TestBuildOrdersTagsNumerically(t *testing.T) {
	t.Parallel()
	r := &fakeReader{
		tags: []source.TagRow{
			{ID: "10", Name: "Zoo", HasPhotos: true},
			{ID: "2", Name: "Beach", HasPhotos: true},
			{ID: "1", Name: "Alps", HasPhotos: true},
		},
	}

	idx, err := Build(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, idx.Tags, 3)
	assert.Equal(t, []string{"1", "2", "10"}, []string{idx.Tags[0].ID, idx.Tags[1].ID, idx.Tags[2].ID})
}

func TestBuildMembersSortedBySourceID(t *testing.T) {
	t.Parallel()
	r := &fakeReader{
		rows: []source.MediaRow{
			{SourceID: "thumb0000000000000002", Kind: source.KindPhoto, Title: "Sunset", BackingPath: "/p/2.jpg", TagIDs: []string{"1"}},
			{SourceID: "thumb0000000000000001", Kind: source.KindPhoto, Title: "Sunset", BackingPath: "/p/1.jpg", TagIDs: []string{"1"}},
		},
		tags: []source.TagRow{{ID: "1", Name: "Sky", HasPhotos: true}},
	}

	idx, err := Build(context.Background(), r)
	require.NoError(t, err)
	members := idx.MembersOf("1")
	require.Len(t, members, 2)
	assert.Equal(t, "thumb0000000000000001", members[0].SourceID)
	assert.Equal(t, "thumb0000000000000002", members[1].SourceID)
}

func TestBuildHierarchicalTags(t *testing.T) {
	t.Parallel()
	r := &fakeReader{
		tags: []source.TagRow{
			{ID: "1", Name: "Travel", HasPhotos: true},
			{ID: "2", Name: "/Travel/Italy", HasPhotos: true},
			{ID: "3", Name: "/Travel/Italy/Rome", HasVideos: true},
		},
	}

	idx, err := Build(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, idx.Tags, 3)

	italy := idx.Tags[1]
	assert.Equal(t, "Italy", italy.Name)
	assert.Equal(t, "Travel/Italy", italy.FullPath())
	assert.Equal(t, "1", italy.ParentID)

	rome := idx.Tags[2]
	assert.Equal(t, "Rome", rome.Name)
	assert.Equal(t, "2", rome.ParentID)
	assert.True(t, rome.HasVideos)
	assert.False(t, rome.HasPhotos)
}

func TestBuildKeepsExposureTime(t *testing.T) {
	t.Parallel()
	when := testTime("2020-05-01 10:00:00")
	r := &fakeReader{
		rows: []source.MediaRow{
			{SourceID: "thumb0000000000000001", Kind: source.KindPhoto, ExposureTime: when, BackingPath: "/p/1.jpg"},
		},
	}

	idx, err := Build(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, idx.Items, 1)
	assert.True(t, idx.Items[0].ExposureTime.Equal(when))
	assert.Empty(t, idx.Items[0].Title)
}

func TestSplitTagName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"Travel"}, splitTagName("Travel"))
	assert.Equal(t, []string{"Travel", "Italy"}, splitTagName("/Travel/Italy"))
	assert.Nil(t, splitTagName(""))
	assert.Nil(t, splitTagName("/"))
}
