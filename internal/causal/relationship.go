package causal

import (
	"encoding/json"
	"fmt"
)

// ManualRelationshipReason records why the user overrode an edge.
type ManualRelationshipReason string

const (
	// ReasonNone marks a constraint without a user reason (derived forbids).
	ReasonNone    ManualRelationshipReason = ""
	ReasonRemoved ManualRelationshipReason = "Removed"
	ReasonFlipped ManualRelationshipReason = "Flipped"
	ReasonSaved   ManualRelationshipReason = "Saved"
	ReasonPinned  ManualRelationshipReason = "Pinned"
)

// UnmarshalJSON rejects reasons outside the known set.
func (r *ManualRelationshipReason) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch ManualRelationshipReason(s) {
	case ReasonNone, ReasonRemoved, ReasonFlipped, ReasonSaved, ReasonPinned:
		*r = ManualRelationshipReason(s)
		return nil
	}
	return fmt.Errorf("unknown manual relationship reason %q", s)
}

// Forces reports whether the reason pins the edge's direction.
func (r ManualRelationshipReason) Forces() bool {
	return r == ReasonFlipped || r == ReasonPinned
}

// Relationship is an edge between two variables. Nil Weight, Confidence and
// SampleSize mean the value is unknown.
type Relationship struct {
	Source     VariableReference        `json:"source"`
	Target     VariableReference        `json:"target"`
	Reason     ManualRelationshipReason `json:"reason,omitempty"`
	Weight     *float64                 `json:"weight,omitempty"`
	SampleSize *int                     `json:"sampleSize,omitempty"`
	Confidence *float64                 `json:"confidence,omitempty"`
	Name       string                   `json:"name"`
	Directed   bool                     `json:"directed"`
	Key        string                   `json:"key"`
}

// RelationshipKey is the stable, orientation-sensitive key for an edge.
func RelationshipKey(source, target string) string {
	return source + "->" + target
}

// NewRelationship builds a directed relationship with its key filled in.
func NewRelationship(source, target VariableReference) Relationship {
	return Relationship{
		Source:   source,
		Target:   target,
		Name:     source.ColumnName + " -> " + target.ColumnName,
		Directed: true,
		Key:      RelationshipKey(source.ColumnName, target.ColumnName),
	}
}

// WithReason returns a copy of r carrying reason.
func (r Relationship) WithReason(reason ManualRelationshipReason) Relationship {
	r.Reason = reason
	return r
}

// WithRecomputedKey returns a copy of r whose key matches its endpoints.
func (r Relationship) WithRecomputedKey() Relationship {
	r.Key = RelationshipKey(r.Source.ColumnName, r.Target.ColumnName)
	return r
}

// InvertRelationship swaps the endpoints of r. The key is kept; callers that
// deduplicate by key must call WithRecomputedKey.
func InvertRelationship(r Relationship) Relationship {
	r.Source, r.Target = r.Target, r.Source
	r.Name = "Inverse of " + r.Name
	return r
}

// HasSameSourceAndTarget reports whether r and other have identical endpoints.
func HasSameSourceAndTarget(r, other Relationship) bool {
	return HasSameSourceAndTargetColumns(r, other.Source.ColumnName, other.Target.ColumnName)
}

func HasSameSourceAndTargetColumns(r Relationship, source, target string) bool {
	return source == r.Source.ColumnName && target == r.Target.ColumnName
}

// HasInvertedSourceAndTarget reports whether other is r with endpoints swapped.
func HasInvertedSourceAndTarget(r, other Relationship) bool {
	return HasInvertedSourceAndTargetColumns(r, other.Source.ColumnName, other.Target.ColumnName)
}

func HasInvertedSourceAndTargetColumns(r Relationship, source, target string) bool {
	return source == r.Target.ColumnName && target == r.Source.ColumnName
}

func HasSameOrInvertedSourceAndTarget(r, other Relationship) bool {
	return HasSameSourceAndTarget(r, other) || HasInvertedSourceAndTarget(r, other)
}

func HasSameOrInvertedSourceAndTargetColumns(r Relationship, source, target string) bool {
	return HasSameSourceAndTargetColumns(r, source, target) ||
		HasInvertedSourceAndTargetColumns(r, source, target)
}

// InvolvesVariable reports whether v is either endpoint of r.
func InvolvesVariable(r Relationship, v VariableReference) bool {
	return IsSameVariable(r.Source, v) || IsSameVariable(r.Target, v)
}

// ArrayIncludesRelationship reports whether list holds an edge with the
// endpoints of r.
func ArrayIncludesRelationship(list []Relationship, r Relationship) bool {
	for _, other := range list {
		if HasSameSourceAndTarget(r, other) {
			return true
		}
	}
	return false
}

// HasSameReason reports whether r is non-nil and carries reason.
func HasSameReason(reason ManualRelationshipReason, r *Relationship) bool {
	return r != nil && r.Reason == reason
}

// IsEquivalentRelationship reports whether r matches constraint, either with
// identical endpoints or, for a Flipped constraint, with swapped endpoints.
func IsEquivalentRelationship(r, constraint Relationship) bool {
	return HasSameSourceAndTarget(r, constraint) ||
		(constraint.Reason == ReasonFlipped && HasInvertedSourceAndTarget(r, constraint))
}

// Float returns a pointer to v, for building optional weights/confidences.
func Float(v float64) *float64 {
	return &v
}
