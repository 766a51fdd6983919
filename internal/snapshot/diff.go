package snapshot

import (
	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/graph"
)

// GraphDifferences is the set of edge changes between two graphs after
// threshold filtering.
type GraphDifferences struct {
	Added    []causal.Relationship `json:"added"`
	Removed  []causal.Relationship `json:"removed"`
	Reversed []causal.Relationship `json:"reversed"`
}

// Empty reports whether nothing changed.
func (d *GraphDifferences) Empty() bool {
	return d == nil || len(d.Added)+len(d.Removed)+len(d.Reversed) == 0
}

// FindDifferencesBetweenGraphs compares the active edges of previous and
// current. It returns nil when there is no previous graph. Reversed holds
// the current graph's orientation of each flipped pair.
func FindDifferencesBetweenGraphs(previous, current *causal.CausalGraph, weightThreshold, confidenceThreshold float64) *GraphDifferences {
	if previous == nil {
		return nil
	}
	prev := graph.RelationshipsAboveThresholds(previous, weightThreshold, confidenceThreshold)
	curr := graph.RelationshipsAboveThresholds(current, weightThreshold, confidenceThreshold)

	diff := &GraphDifferences{
		Added:    []causal.Relationship{},
		Removed:  []causal.Relationship{},
		Reversed: []causal.Relationship{},
	}

	for _, r := range curr {
		if !containsPair(prev, r) {
			diff.Added = append(diff.Added, r)
			continue
		}
		if !containsSame(prev, r) {
			diff.Reversed = append(diff.Reversed, r)
		}
	}
	for _, r := range prev {
		if !containsPair(curr, r) {
			diff.Removed = append(diff.Removed, r)
		}
	}
	return diff
}

func containsPair(list []causal.Relationship, r causal.Relationship) bool {
	for _, other := range list {
		if causal.HasSameOrInvertedSourceAndTarget(other, r) {
			return true
		}
	}
	return false
}

func containsSame(list []causal.Relationship, r causal.Relationship) bool {
	for _, other := range list {
		if causal.HasSameSourceAndTarget(other, r) {
			return true
		}
	}
	return false
}
