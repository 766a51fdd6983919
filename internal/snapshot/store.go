package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"
)

const (
	snapshotsDir = "snapshots"
	indexFile    = "index.json"
)

// Store persists published graph snapshots as JSON files with an index.
// When limit is positive, the oldest snapshots beyond it are pruned on Save.
type Store struct {
	mu      sync.RWMutex
	rootDir string
	limit   int
	index   *SnapshotIndex
}

// NewStore creates or opens a snapshot store at the given directory.
func NewStore(rootDir string, limit int) (*Store, error) {
	s := &Store{rootDir: rootDir, limit: limit}

	dir := filepath.Join(rootDir, snapshotsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory %s: %w", dir, err)
	}

	// Load or create index
	if err := s.loadIndex(); err != nil {
		s.index = &SnapshotIndex{
			Snapshots: []SnapshotSummary{},
			UpdatedAt: time.Now(),
		}
	}

	return s, nil
}

// Save persists a snapshot.
func (s *Store) Save(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(s.snapshotPath(snap.ID), data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	s.index.Snapshots = append(s.index.Snapshots, snap.Summary())
	s.prune()
	s.index.UpdatedAt = time.Now()
	return s.saveIndex()
}

// Load retrieves a snapshot by ID.
func (s *Store) Load(id string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(id)
}

// List returns all snapshot summaries, newest first.
func (s *Store) List() []SnapshotSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]SnapshotSummary, len(s.index.Snapshots))
	copy(result, s.index.Snapshots)

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Generation != result[j].Generation {
			return result[i].Generation > result[j].Generation
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// Latest returns the newest snapshot, or nil when the store is empty.
func (s *Store) Latest() (*Snapshot, error) {
	list := s.List()
	if len(list) == 0 {
		return nil, nil
	}
	return s.Load(list[0].ID)
}

// Delete removes a snapshot.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.snapshotPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot %s: %w", id, err)
	}
	s.index.Snapshots = slices.DeleteFunc(s.index.Snapshots, func(sum SnapshotSummary) bool {
		return sum.ID == id
	})
	s.index.UpdatedAt = time.Now()
	return s.saveIndex()
}

// prune drops the oldest entries beyond the limit. Must hold s.mu.
func (s *Store) prune() {
	if s.limit <= 0 {
		return
	}
	for len(s.index.Snapshots) > s.limit {
		oldest := s.index.Snapshots[0]
		_ = os.Remove(s.snapshotPath(oldest.ID))
		s.index.Snapshots = s.index.Snapshots[1:]
	}
}

func (s *Store) load(id string) (*Snapshot, error) {
	data, err := os.ReadFile(s.snapshotPath(id))
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", id, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", id, err)
	}
	return &snap, nil
}

func (s *Store) snapshotPath(id string) string {
	return filepath.Join(s.rootDir, snapshotsDir, id+".json")
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.rootDir, indexFile))
	if err != nil {
		return err
	}
	s.index = &SnapshotIndex{}
	return json.Unmarshal(data, s.index)
}

func (s *Store) saveIndex() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.rootDir, indexFile), data, 0o644)
}
