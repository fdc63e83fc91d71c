// Package store persists watcher state as JSON documents under a data
// directory: the latest-term pointer, per-term snapshots, the previous-run
// state, the bounded event feed, and the instructor index.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Appile1/FCCU-Advisior/models"
)

const (
	latestTermFile    = "latest_term.json"
	previousStateFile = "previous_state.json"
	feedFile          = "feed_events.json"
	instructorsFile   = "instructors.json"

	snapshotCacheSize = 8
)

// Store reads and writes watcher state under one directory.
type Store struct {
	dir string

	// snapshots are re-read rarely but may be loaded several times when a
	// process walks multiple terms; cache by term code.
	cache *lru.Cache[string, *models.Snapshot]
}

// New builds a store rooted at dir. The directory is created on first write.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store dir cannot be empty")
	}
	cache, err := lru.New[string, *models.Snapshot](snapshotCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init snapshot cache: %w", err)
	}
	return &Store{dir: dir, cache: cache}, nil
}

// LoadLatestTerm returns the last observed term, or a zero ref when no run
// has recorded one yet.
func (s *Store) LoadLatestTerm() (models.TermRef, error) {
	var term models.TermRef
	if err := s.readJSON(latestTermFile, &term); err != nil {
		return models.TermRef{}, err
	}
	return term, nil
}

// SaveLatestTerm records the most recently observed term.
func (s *Store) SaveLatestTerm(term models.TermRef) error {
	return s.writeJSON(latestTermFile, term)
}

// LoadSnapshot returns the stored snapshot for a term, or nil when none has
// been captured.
func (s *Store) LoadSnapshot(termCode string) (*models.Snapshot, error) {
	if snap, ok := s.cache.Get(termCode); ok {
		return snap, nil
	}

	var snap models.Snapshot
	if err := s.readJSON(snapshotFile(termCode), &snap); err != nil {
		return nil, err
	}
	if snap.TermCode == "" && snap.Len() == 0 {
		return nil, nil
	}
	s.cache.Add(termCode, &snap)
	return &snap, nil
}

// SaveSnapshot replaces the stored snapshot for the snapshot's term.
func (s *Store) SaveSnapshot(snap *models.Snapshot) error {
	if snap == nil || snap.TermCode == "" {
		return fmt.Errorf("snapshot must carry a term code")
	}
	if err := s.writeJSON(snapshotFile(snap.TermCode), snap); err != nil {
		return err
	}
	s.cache.Add(snap.TermCode, snap)
	return nil
}

// LoadPreviousState returns the previous run's records, or nil on the first
// run.
func (s *Store) LoadPreviousState() ([]*models.SectionRecord, error) {
	var records []*models.SectionRecord
	if err := s.readJSON(previousStateFile, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// SavePreviousState replaces the previous-run state with this run's records.
// The replacement is unconditional; history never reaches further back than
// one run.
func (s *Store) SavePreviousState(records []*models.SectionRecord) error {
	if records == nil {
		records = []*models.SectionRecord{}
	}
	return s.writeJSON(previousStateFile, records)
}

// LoadFeed returns the persisted event feed, most recent first.
func (s *Store) LoadFeed() ([]models.ChangeEvent, error) {
	var events []models.ChangeEvent
	if err := s.readJSON(feedFile, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// SaveFeed replaces the persisted event feed.
func (s *Store) SaveFeed(events []models.ChangeEvent) error {
	if events == nil {
		events = []models.ChangeEvent{}
	}
	return s.writeJSON(feedFile, events)
}

// SaveInstructors replaces the distinct-instructor index.
func (s *Store) SaveInstructors(names []string) error {
	if names == nil {
		names = []string{}
	}
	return s.writeJSON(instructorsFile, names)
}

func snapshotFile(termCode string) string {
	return termCode + "_courses.json"
}

// readJSON decodes a state file into out. A missing file leaves out at its
// zero value; first runs are expected, not errors.
func (s *Store) readJSON(name string, out any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// writeJSON writes a state file via a temp file and rename, so readers never
// observe a half-written document.
func (s *Store) writeJSON(name string, value any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", s.dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
