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

package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	_ "github.com/tursodatabase/go-libsql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"photofs/internal/common"
	"photofs/internal/util"
)

// Shotwell source id encodings used in tagtable.photo_id_list. Legacy
// rows store a bare decimal photo id instead.
const (
	photoIDPrefix = "thumb"
	videoIDPrefix = "video-"
)

// photoRow mirrors Shotwell's phototable.
type photoRow struct {
	bun.BaseModel `bun:"table:phototable"`

	ID           int64          `bun:"id,pk"`
	Filename     string         `bun:"filename"`
	ExposureTime int64          `bun:"exposure_time"`
	Title        sql.NullString `bun:"title"`
}

// videoRow mirrors Shotwell's videotable.
type videoRow struct {
	bun.BaseModel `bun:"table:videotable"`

	ID           int64          `bun:"id,pk"`
	Filename     string         `bun:"filename"`
	ExposureTime int64          `bun:"exposure_time"`
	Title        sql.NullString `bun:"title"`
}

// tagRow mirrors Shotwell's tagtable. photo_id_list holds the member
// source ids separated by commas, with a trailing comma.
type tagRow struct {
	bun.BaseModel `bun:"table:tagtable"`

	ID          int64          `bun:"id,pk"`
	Name        string         `bun:"name"`
	PhotoIDList sql.NullString `bun:"photo_id_list"`
}

// ShotwellReader reads media and tags from a Shotwell photo.db snapshot.
type ShotwellReader struct {
	path  string
	db    *sql.DB
	bunDB *bun.DB
}

var _ Reader = (*ShotwellReader)(nil)

// execPragma runs a PRAGMA statement using Query (not Exec) because libsql
// returns rows for PRAGMA statements. The result rows are drained and closed.
func execPragma(db *sql.DB, pragma string) error {
	rows, err := db.Query(pragma)
	if err != nil {
		return err
	}
	return rows.Close()
}

// OpenShotwell opens a Shotwell database snapshot for reading. The
// connection is put into query_only mode; a missing or unopenable
// snapshot is reported as ErrSourceUnavailable.
func OpenShotwell(ctx context.Context, path string) (*ShotwellReader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrSourceUnavailable, path, err)
	}

	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", common.ErrSourceUnavailable, path, err)
	}

	// The photo manager may hold the database briefly during its own
	// writes; retry transient lock errors rather than failing the mount.
	err = util.Retry(ctx, func() error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		// busy_timeout first so query_only waits on locks instead of
		// failing immediately. libsql ignores DSN-based _pragma values,
		// so both must be set explicitly.
		if err := execPragma(db, "PRAGMA busy_timeout = 2000"); err != nil {
			return err
		}
		return execPragma(db, "PRAGMA query_only = ON")
	}, util.DatabaseRetryOptions(ctx)...)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", common.ErrSourceUnavailable, path, err)
	}

	return &ShotwellReader{
		path:  path,
		db:    db,
		bunDB: bun.NewDB(db, sqlitedialect.New()),
	}, nil
}

// Path returns the snapshot file path.
func (r *ShotwellReader) Path() string {
	return r.path
}

// Close releases the database connection.
func (r *ShotwellReader) Close() error {
	return r.db.Close()
}

// ReadAll returns every tagged media row from the snapshot with tag
// memberships attached. A malformed row is skipped and logged; it never
// aborts the read.
func (r *ShotwellReader) ReadAll(ctx context.Context) ([]MediaRow, error) {
	byID := make(map[string]*MediaRow)
	order := make([]string, 0, 256)

	var photos []photoRow
	if err := r.bunDB.NewSelect().Model(&photos).Order("id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("reading phototable: %w", err)
	}
	for _, p := range photos {
		id := PhotoSourceID(p.ID)
		row, ok := mediaRowFrom(id, KindPhoto, p.Filename, p.ExposureTime, p.Title)
		if !ok {
			continue
		}
		byID[id] = row
		order = append(order, id)
	}

	var videos []videoRow
	if err := r.bunDB.NewSelect().Model(&videos).Order("id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("reading videotable: %w", err)
	}
	for _, v := range videos {
		id := VideoSourceID(v.ID)
		row, ok := mediaRowFrom(id, KindVideo, v.Filename, v.ExposureTime, v.Title)
		if !ok {
			continue
		}
		byID[id] = row
		order = append(order, id)
	}

	// Attach tag memberships.
	tags, err := r.readTagRows(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		tagID := strconv.FormatInt(t.ID, 10)
		for _, memberID := range decodeMemberList(t.PhotoIDList.String) {
			row, ok := byID[memberID]
			if !ok {
				// Tags may reference items deleted from the library.
				log.Tracef("[source] tag %q references unknown item %q", t.Name, memberID)
				continue
			}
			row.TagIDs = append(row.TagIDs, tagID)
		}
	}

	rows := make([]MediaRow, 0, len(order))
	for _, id := range order {
		rows = append(rows, *byID[id])
	}
	return rows, nil
}

// ReadTags returns every tag that has at least one member, with flags
// recording which media kinds it contains.
func (r *ShotwellReader) ReadTags(ctx context.Context) ([]TagRow, error) {
	raw, err := r.readTagRows(ctx)
	if err != nil {
		return nil, err
	}

	tags := make([]TagRow, 0, len(raw))
	for _, t := range raw {
		members := decodeMemberList(t.PhotoIDList.String)
		if len(members) == 0 {
			// Unused tags are not exposed.
			continue
		}
		row := TagRow{
			ID:   strconv.FormatInt(t.ID, 10),
			Name: t.Name,
		}
		for _, m := range members {
			if strings.HasPrefix(m, videoIDPrefix) {
				row.HasVideos = true
			} else {
				row.HasPhotos = true
			}
		}
		tags = append(tags, row)
	}
	return tags, nil
}

func (r *ShotwellReader) readTagRows(ctx context.Context) ([]tagRow, error) {
	var tags []tagRow
	if err := r.bunDB.NewSelect().Model(&tags).Order("name").Scan(ctx); err != nil {
		return nil, fmt.Errorf("reading tagtable: %w", err)
	}
	return tags, nil
}

// PhotoSourceID renders a phototable id in Shotwell's canonical form.
func PhotoSourceID(id int64) string {
	return fmt.Sprintf("%s%016x", photoIDPrefix, id)
}

// VideoSourceID renders a videotable id in Shotwell's canonical form.
func VideoSourceID(id int64) string {
	return fmt.Sprintf("%s%016x", videoIDPrefix, id)
}

// mediaRowFrom validates one database row. Rows with no backing path, or
// with neither a title nor an exposure time, cannot be named and are
// skipped; one bad row never aborts the read.
func mediaRowFrom(id string, kind Kind, filename string, exposure int64, title sql.NullString) (*MediaRow, bool) {
	if filename == "" {
		log.Warnf("[source] skipping %s %s: %v: no backing path", kind, id, common.ErrCorruptSource)
		return nil, false
	}
	if !title.Valid || title.String == "" {
		if exposure == 0 {
			log.Warnf("[source] skipping %s %s: %v: no title and no exposure time", kind, id, common.ErrCorruptSource)
			return nil, false
		}
	}

	row := &MediaRow{
		SourceID:     id,
		Kind:         kind,
		Title:        title.String,
		ExposureTime: time.Unix(exposure, 0),
		BackingPath:  filename,
	}
	if fi, err := os.Lstat(filename); err == nil {
		row.IsSymlink = fi.Mode()&os.ModeSymlink != 0
	}
	return row, true
}

// decodeMemberList splits a tagtable photo_id_list into canonical source
// ids. Entries are comma separated with a trailing comma. Three encodings
// occur in the wild: "thumb<hex>" (photo), "video-<hex>" (video), and a
// legacy bare decimal which is a phototable id.
func decodeMemberList(list string) []string {
	if list == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch {
		case strings.HasPrefix(part, photoIDPrefix):
			if n, err := strconv.ParseInt(part[len(photoIDPrefix):], 16, 64); err == nil {
				ids = append(ids, PhotoSourceID(n))
			}
		case strings.HasPrefix(part, videoIDPrefix):
			if n, err := strconv.ParseInt(part[len(videoIDPrefix):], 16, 64); err == nil {
				ids = append(ids, VideoSourceID(n))
			}
		default:
			if n, err := strconv.ParseInt(part, 10, 64); err == nil {
				ids = append(ids, PhotoSourceID(n))
			}
		}
	}
	return ids
}
