// Package store implements the durable JSON-file stores backing the mirror:
// the record cache and the identity link map.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lokatools/marketmirror/internal/market"
)

// snapshot is the on-disk layout of the record cache. The `players` key is
// the wire name the upstream uses for the record collection and is kept for
// compatibility with existing cache files.
type snapshot struct {
	Players            map[string]market.Record `json:"players"`
	LastUpdate         *time.Time               `json:"last_update"`
	HighestPageChecked int                      `json:"highest_page_checked"`
}

// RecordStore is a durable map from record ID to record, plus crawl
// progress metadata. Saves are whole-file overwrites through a temp file
// and rename. A single mutex guards all access; merges are commutative per
// ID so interleaved cycles and lookups stay safe.
type RecordStore struct {
	mu      sync.Mutex
	path    string
	records map[string]market.Record
	last    *time.Time
	highest int
	logger  *zap.Logger
}

// NewRecordStore creates a store backed by path and loads any existing
// snapshot. A missing or corrupt file degrades to an empty cache; it is
// never an error past this boundary.
func NewRecordStore(path string, logger *zap.Logger) (*RecordStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RecordStore{
		path:    path,
		records: map[string]market.Record{},
		logger:  logger,
	}
	s.load()
	return s, nil
}

func (s *RecordStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cache file unreadable, starting empty", zap.String("path", s.path), zap.Error(err))
		}
		return
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("cache file corrupt, starting empty", zap.String("path", s.path), zap.Error(err))
		return
	}
	if snap.Players != nil {
		s.records = snap.Players
	}
	s.last = snap.LastUpdate
	s.highest = snap.HighestPageChecked
	s.logger.Info("cache loaded",
		zap.Int("records", len(s.records)),
		zap.Int("highest_page_checked", s.highest),
	)
}

// Save serializes the full current state, overwriting the prior file. The
// write goes through a temp file and rename so a crash mid-save leaves the
// previous snapshot intact. Failure does not roll back in-memory state.
func (s *RecordStore) Save() error {
	s.mu.Lock()
	snap := snapshot{
		Players:            s.records,
		LastUpdate:         s.last,
		HighestPageChecked: s.highest,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

// Get returns the record for id.
func (s *RecordStore) Get(id string) (market.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Put upserts a record by ID and reports whether it was newly inserted.
// Records without an ID are ignored.
func (s *RecordStore) Put(rec market.Record) bool {
	if rec.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.records[rec.ID]
	s.records[rec.ID] = rec
	return !existed
}

// FindByName scans all records for a case-insensitive exact name match and
// returns the first hit. There is no secondary index; this O(n) scan is an
// accepted scale ceiling for catalogs up to low tens of thousands of rows.
func (s *RecordStore) FindByName(name string) (market.Record, bool) {
	if name == "" {
		return market.Record{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.NameEquals(name) {
			return rec, true
		}
	}
	return market.Record{}, false
}

// Len returns the number of cached records.
func (s *RecordStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// HighestPage returns the crawl high-water mark.
func (s *RecordStore) HighestPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highest
}

// AdvanceHighestPage raises the high-water mark to page if it is higher.
func (s *RecordStore) AdvanceHighestPage(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page > s.highest {
		s.highest = page
	}
}

// SetHighestPage overwrites the high-water mark. The crawler uses this to
// clamp the mark to totalPages after a completed full sweep.
func (s *RecordStore) SetHighestPage(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.highest = page
}

// LastUpdate returns the timestamp of the last completed crawl cycle.
func (s *RecordStore) LastUpdate() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// SetLastUpdate records the completion time of a crawl cycle.
func (s *RecordStore) SetLastUpdate(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &t
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
