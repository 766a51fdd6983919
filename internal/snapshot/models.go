package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
)

// Snapshot is a published discovery result kept for history and diffing.
type Snapshot struct {
	ID          string              `json:"id"`
	ParentID    string              `json:"parent_id,omitempty"`
	Generation  uint64              `json:"generation"`
	CreatedAt   time.Time           `json:"created_at"`
	Algorithm   causal.Algorithm    `json:"algorithm"`
	ContentHash string              `json:"content_hash"`
	Graph       *causal.CausalGraph `json:"graph"`
}

// SnapshotIndex is a lightweight listing of all snapshots for fast lookup.
type SnapshotIndex struct {
	Snapshots []SnapshotSummary `json:"snapshots"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SnapshotSummary is the minimal info for listing snapshots.
type SnapshotSummary struct {
	ID                string           `json:"id"`
	ParentID          string           `json:"parent_id,omitempty"`
	Generation        uint64           `json:"generation"`
	CreatedAt         time.Time        `json:"created_at"`
	Algorithm         causal.Algorithm `json:"algorithm"`
	VariableCount     int              `json:"variable_count"`
	RelationshipCount int              `json:"relationship_count"`
}

// NewSnapshot captures g. The graph is stored by reference and must not be
// mutated afterwards.
func NewSnapshot(g *causal.CausalGraph, generation uint64, parentID string) (*Snapshot, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("marshal graph: %w", err)
	}
	snap := &Snapshot{
		ParentID:    parentID,
		Generation:  generation,
		CreatedAt:   time.Now(),
		ContentHash: ContentHash(data),
		Graph:       g,
	}
	if g != nil {
		snap.Algorithm = g.Algorithm
	}
	snap.ID = generateSnapshotID(snap)
	return snap, nil
}

// ContentHash computes SHA-256 of content.
func ContentHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

func generateSnapshotID(snap *Snapshot) string {
	data, _ := json.Marshal(struct {
		Time    int64  `json:"t"`
		Content string `json:"c"`
	}{
		Time:    snap.CreatedAt.UnixNano(),
		Content: snap.ContentHash,
	})
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:8])
}

// Summary returns a lightweight summary of this snapshot.
func (s *Snapshot) Summary() SnapshotSummary {
	sum := SnapshotSummary{
		ID:         s.ID,
		ParentID:   s.ParentID,
		Generation: s.Generation,
		CreatedAt:  s.CreatedAt,
		Algorithm:  s.Algorithm,
	}
	if s.Graph != nil {
		sum.VariableCount = len(s.Graph.Variables)
		sum.RelationshipCount = len(s.Graph.Relationships)
	}
	return sum
}
