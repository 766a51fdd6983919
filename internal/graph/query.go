// Package graph answers threshold-based queries over discovered causal
// graphs and defines storage for them.
package graph

import (
	"math"
	"sort"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
)

// IsRelationshipAboveWeightThreshold reports whether |weight| > threshold.
// An unknown weight always passes.
func IsRelationshipAboveWeightThreshold(r causal.Relationship, threshold float64) bool {
	return r.Weight == nil || math.Abs(*r.Weight) > threshold
}

// IsRelationshipAboveConfidenceThreshold reports whether |confidence| >
// threshold. An unknown confidence always passes.
func IsRelationshipAboveConfidenceThreshold(r causal.Relationship, threshold float64) bool {
	return r.Confidence == nil || math.Abs(*r.Confidence) > threshold
}

func IsRelationshipAboveThresholds(r causal.Relationship, weightThreshold, confidenceThreshold float64) bool {
	return IsRelationshipAboveWeightThreshold(r, weightThreshold) &&
		IsRelationshipAboveConfidenceThreshold(r, confidenceThreshold)
}

func RelationshipsAboveWeightThreshold(g *causal.CausalGraph, threshold float64) []causal.Relationship {
	return filter(g, func(r causal.Relationship) bool {
		return IsRelationshipAboveWeightThreshold(r, threshold)
	})
}

func RelationshipsAboveConfidenceThreshold(g *causal.CausalGraph, threshold float64) []causal.Relationship {
	return filter(g, func(r causal.Relationship) bool {
		return IsRelationshipAboveConfidenceThreshold(r, threshold)
	})
}

// RelationshipsAboveThresholds returns the edges passing both thresholds,
// in graph order.
func RelationshipsAboveThresholds(g *causal.CausalGraph, weightThreshold, confidenceThreshold float64) []causal.Relationship {
	return filter(g, func(r causal.Relationship) bool {
		return IsRelationshipAboveThresholds(r, weightThreshold, confidenceThreshold)
	})
}

// NodeHasChildren reports whether v is the source of an active edge.
func NodeHasChildren(g *causal.CausalGraph, v causal.VariableReference, weightThreshold, confidenceThreshold float64) bool {
	for _, r := range RelationshipsAboveThresholds(g, weightThreshold, confidenceThreshold) {
		if causal.IsSameVariable(r.Source, v) {
			return true
		}
	}
	return false
}

// NodeHasParents reports whether v is the target of an active edge.
func NodeHasParents(g *causal.CausalGraph, v causal.VariableReference, weightThreshold, confidenceThreshold float64) bool {
	for _, r := range RelationshipsAboveThresholds(g, weightThreshold, confidenceThreshold) {
		if causal.IsSameVariable(r.Target, v) {
			return true
		}
	}
	return false
}

// RelationshipForColumnNames finds the edge source -> target, ignoring
// thresholds.
func RelationshipForColumnNames(g *causal.CausalGraph, source, target string) (causal.Relationship, bool) {
	if g == nil {
		return causal.Relationship{}, false
	}
	for _, r := range g.Relationships {
		if causal.HasSameSourceAndTargetColumns(r, source, target) {
			return r, true
		}
	}
	return causal.Relationship{}, false
}

// ValidRelationshipsForColumnName returns the active edges touching v,
// strongest first. Unknown weights sort as zero.
func ValidRelationshipsForColumnName(g *causal.CausalGraph, v causal.VariableReference, weightThreshold, confidenceThreshold float64) []causal.Relationship {
	out := filter(g, func(r causal.Relationship) bool {
		return causal.InvolvesVariable(r, v) && IsRelationshipAboveThresholds(r, weightThreshold, confidenceThreshold)
	})
	sort.SliceStable(out, func(i, j int) bool {
		return absWeight(out[i]) > absWeight(out[j])
	})
	return out
}

// IncludesVariable reports whether v is a variable of g.
func IncludesVariable(g *causal.CausalGraph, v causal.VariableReference) bool {
	if g == nil {
		return false
	}
	for _, gv := range g.Variables {
		if gv.ColumnName == v.ColumnName {
			return true
		}
	}
	return false
}

// IncludesVariables reports whether every reference is a variable of g.
func IncludesVariables(g *causal.CausalGraph, refs []causal.VariableReference) bool {
	for _, v := range refs {
		if !IncludesVariable(g, v) {
			return false
		}
	}
	return true
}

func filter(g *causal.CausalGraph, keep func(causal.Relationship) bool) []causal.Relationship {
	out := []causal.Relationship{}
	if g == nil {
		return out
	}
	for _, r := range g.Relationships {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func absWeight(r causal.Relationship) float64 {
	if r.Weight == nil {
		return 0
	}
	return math.Abs(*r.Weight)
}
