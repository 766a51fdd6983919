package constraints

import (
	"github.com/efebarandurmaz/causaldiscover/internal/causal"
)

// EdgeOps names the edits that apply to a relationship.
var EdgeOps = map[string]func(causal.Constraints, causal.Relationship) causal.Constraints{
	"flip":   FlipEdge,
	"remove": RemoveBothEdges,
	"pin":    PinEdge,
	"save":   SaveEdge,
	"clear":  RemoveConstraint,
}

// VariableOps names the edits that apply to a single variable.
var VariableOps = map[string]func(causal.Constraints, causal.VariableReference) causal.Constraints{
	"cause":  ToggleCause,
	"effect": ToggleEffect,
}

// RemoveBothEdges records that the user removed r. Any entry with the same
// orientation is replaced; an entry for the opposite orientation is left
// alone.
func RemoveBothEdges(c causal.Constraints, r causal.Relationship) causal.Constraints {
	return replaceWith(c, r, causal.ReasonRemoved)
}

// PinEdge records that r must keep its current direction.
func PinEdge(c causal.Constraints, r causal.Relationship) causal.Constraints {
	return replaceWith(c, r, causal.ReasonPinned)
}

// SaveEdge marks r as important without affecting discovery.
func SaveEdge(c causal.Constraints, r causal.Relationship) causal.Constraints {
	return replaceWith(c, r, causal.ReasonSaved)
}

// FlipEdge toggles a Flipped constraint for r: an existing equivalent
// Flipped entry is removed, otherwise one is appended.
func FlipEdge(c causal.Constraints, r causal.Relationship) causal.Constraints {
	out := c.Clone()
	kept := out.ManualRelationships[:0]
	toggledOff := false
	for _, existing := range out.ManualRelationships {
		if existing.Reason == causal.ReasonFlipped && causal.IsEquivalentRelationship(r, existing) {
			toggledOff = true
			continue
		}
		kept = append(kept, existing)
	}
	if !toggledOff {
		kept = append(kept, r.WithReason(causal.ReasonFlipped))
	}
	out.ManualRelationships = kept
	return out
}

// RemoveConstraint drops every manual relationship with the endpoints of r,
// whatever its reason.
func RemoveConstraint(c causal.Constraints, r causal.Relationship) causal.Constraints {
	out := c.Clone()
	kept := out.ManualRelationships[:0]
	for _, existing := range out.ManualRelationships {
		if !causal.HasSameSourceAndTarget(existing, r) {
			kept = append(kept, existing)
		}
	}
	out.ManualRelationships = kept
	return out
}

// ToggleCause adds v to the cause-only list, or removes it when present.
// A variable is never both a cause-only and an effect-only variable.
func ToggleCause(c causal.Constraints, v causal.VariableReference) causal.Constraints {
	out := c.Clone()
	if causal.ArrayIncludesVariable(out.Causes, v) {
		out.Causes = without(out.Causes, v)
		return out
	}
	out.Causes = append(out.Causes, v)
	out.Effects = without(out.Effects, v)
	return out
}

// ToggleEffect is the effect-only counterpart of ToggleCause.
func ToggleEffect(c causal.Constraints, v causal.VariableReference) causal.Constraints {
	out := c.Clone()
	if causal.ArrayIncludesVariable(out.Effects, v) {
		out.Effects = without(out.Effects, v)
		return out
	}
	out.Effects = append(out.Effects, v)
	out.Causes = without(out.Causes, v)
	return out
}

// ConstraintFor returns the first manual relationship equivalent to r.
func ConstraintFor(c causal.Constraints, r causal.Relationship) (causal.Relationship, bool) {
	for _, existing := range c.ManualRelationships {
		if causal.IsEquivalentRelationship(r, existing) {
			return existing, true
		}
	}
	return causal.Relationship{}, false
}

// HasAnyConstraint reports whether r is touched by a manual relationship or
// has an endpoint restricted to causes or effects.
func HasAnyConstraint(c causal.Constraints, r causal.Relationship) bool {
	if _, ok := ConstraintFor(c, r); ok {
		return true
	}
	return causal.ArrayIncludesVariable(c.Causes, r.Source) ||
		causal.ArrayIncludesVariable(c.Causes, r.Target) ||
		causal.ArrayIncludesVariable(c.Effects, r.Source) ||
		causal.ArrayIncludesVariable(c.Effects, r.Target)
}

// Rejected returns the Removed entries involving v.
func Rejected(c causal.Constraints, v causal.VariableReference) []causal.Relationship {
	var out []causal.Relationship
	for _, r := range c.ManualRelationships {
		if r.Reason == causal.ReasonRemoved && causal.InvolvesVariable(r, v) {
			out = append(out, r)
		}
	}
	return out
}

func replaceWith(c causal.Constraints, r causal.Relationship, reason causal.ManualRelationshipReason) causal.Constraints {
	out := RemoveConstraint(c, r)
	out.ManualRelationships = append(out.ManualRelationships, r.WithReason(reason))
	return out
}

func without(list []causal.VariableReference, v causal.VariableReference) []causal.VariableReference {
	out := list[:0]
	for _, item := range list {
		if !causal.IsSameVariable(item, v) {
			out = append(out, item)
		}
	}
	return out
}
