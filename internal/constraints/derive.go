// Package constraints merges user edits with constraints implied by the
// variable hierarchy, and implements the user-facing constraint edits.
package constraints

import (
	"slices"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
)

// Derive returns the implicit forbidding constraints for the in-model
// variables. Siblings derived from a common column produce one constraint per
// unordered pair, oriented from the earlier variable to the later one.
// A variable listing another in DisallowedRelationships produces a
// constraint in that orientation.
func Derive(inModel []causal.CausalVariable) []causal.Relationship {
	var result []causal.Relationship
	for i, source := range inModel {
		for j, target := range inModel {
			if i == j || source.ColumnName == target.ColumnName {
				continue
			}
			siblings := i < j && sharesSourceColumn(source, target)
			disallowed := slices.Contains(source.DisallowedRelationships, target.ColumnName)
			if siblings || disallowed {
				result = append(result, causal.NewRelationship(source.Ref(), target.Ref()))
			}
		}
	}
	return result
}

func sharesSourceColumn(a, b causal.CausalVariable) bool {
	for _, col := range a.DerivedFrom {
		if slices.Contains(b.DerivedFrom, col) {
			return true
		}
	}
	return false
}

// Effective builds the constraint set sent to discovery: derived
// constraints, then user Flipped/Pinned entries turned into their forced
// orientation, then the remaining manual relationships. Nothing is
// deduplicated here.
func Effective(user causal.Constraints, inModel []causal.CausalVariable) causal.Constraints {
	derived := Derive(inModel)

	var forced, rest []causal.Relationship
	for _, r := range user.ManualRelationships {
		if r.Reason.Forces() {
			forced = append(forced, causal.InvertRelationship(r))
			continue
		}
		rest = append(rest, r)
	}

	manual := make([]causal.Relationship, 0, len(derived)+len(forced)+len(rest))
	manual = append(manual, derived...)
	manual = append(manual, forced...)
	manual = append(manual, rest...)

	out := user.Clone()
	out.ManualRelationships = manual
	return out
}
