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
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// defaultSyncInterval is how often the source database mtime is polled.
const defaultSyncInterval = 5 * time.Second

// DBSync maintains a private copy of the metadata database so the photo
// manager's live database is never held open by the mount. The copy is
// rewritten in place when the source changes: same inode, so the open
// SQLite connection picks up the new contents through its change
// counter instead of serving pages of a deleted file.
type DBSync struct {
	source   string
	dest     string
	lock     *flock.Flock
	interval time.Duration

	mu        sync.Mutex
	lastMtime time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDBSync creates a sync for the given source database and performs
// the initial copy. The snapshot gets a fresh name per mount so
// concurrent mounts of the same database never share a copy.
func NewDBSync(source string) (*DBSync, error) {
	if err := os.MkdirAll(SyncDir(), 0700); err != nil {
		return nil, fmt.Errorf("failed to create sync directory: %w", err)
	}

	dest := SyncDir() + "/" + uuid.New().String() + ".db"
	s := &DBSync{
		source:   source,
		dest:     dest,
		lock:     flock.New(dest + ".lock"),
		interval: defaultSyncInterval,
		stopCh:   make(chan struct{}),
	}

	if err := s.SyncNow(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the snapshot path readers should open.
func (s *DBSync) Path() string {
	return s.dest
}

// SyncNow copies the source database into the snapshot. The flock keeps
// an overlapping copy (another process, or Stop racing the poll loop)
// from interleaving writes.
func (s *DBSync) SyncNow() error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock sync snapshot: %w", err)
	}
	defer s.lock.Unlock()

	src, err := os.Open(s.source)
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(s.dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open sync snapshot: %w", err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		return fmt.Errorf("failed to copy database: %w", err)
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}

	if info, err := src.Stat(); err == nil {
		s.mu.Lock()
		s.lastMtime = info.ModTime()
		s.mu.Unlock()
	}

	log.Debugf("[sync] copied %s → %s (%d bytes)", s.source, s.dest, n)
	return nil
}

// Start launches the poll loop. Each interval the source mtime is
// checked and the snapshot re-copied when it advanced.
func (s *DBSync) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.pollOnce()
			}
		}
	}()
}

func (s *DBSync) pollOnce() {
	info, err := os.Stat(s.source)
	if err != nil {
		// The photo manager may be mid-write or the volume unmounted;
		// keep serving the last good snapshot.
		log.Debugf("[sync] source stat failed: %v", err)
		return
	}

	s.mu.Lock()
	changed := info.ModTime().After(s.lastMtime)
	s.mu.Unlock()
	if !changed {
		return
	}

	log.Infof("[sync] source database changed, re-syncing")
	if err := s.SyncNow(); err != nil {
		log.Errorf("[sync] re-sync failed: %v", err)
	}
}

// Stop ends the poll loop and removes the snapshot.
func (s *DBSync) Stop() {
	close(s.stopCh)
	s.wg.Wait()

	if err := os.Remove(s.dest); err != nil && !os.IsNotExist(err) {
		log.Warnf("[sync] failed to remove snapshot: %v", err)
	}
	if err := os.Remove(s.dest + ".lock"); err != nil && !os.IsNotExist(err) {
		log.Warnf("[sync] failed to remove snapshot lock: %v", err)
	}
}
