package causal

import "slices"

// FilterBoringRelationships drops relationships that only restate how the
// variables were built: pairs where either endpoint is unknown, derived
// from the other, shares a source column with it, forbids the other, or is
// categorical nominal.
func FilterBoringRelationships(vars []CausalVariable, relationships []Relationship) []Relationship {
	byColumn := make(map[string]CausalVariable, len(vars))
	for _, v := range vars {
		byColumn[v.ColumnName] = v
	}
	out := []Relationship{}
	for _, r := range relationships {
		a, okA := byColumn[r.Source.ColumnName]
		b, okB := byColumn[r.Target.ColumnName]
		if okA && okB && !boringPair(a, b) {
			out = append(out, r)
		}
	}
	return out
}

func boringPair(a, b CausalVariable) bool {
	switch {
	case a.Nature == NatureCategoricalNominal || b.Nature == NatureCategoricalNominal:
		return true
	case slices.Contains(a.DerivedFrom, b.ColumnName) || slices.Contains(b.DerivedFrom, a.ColumnName):
		return true
	case slices.Contains(a.DisallowedRelationships, b.ColumnName) || slices.Contains(b.DisallowedRelationships, a.ColumnName):
		return true
	}
	return slices.ContainsFunc(a.DerivedFrom, func(col string) bool {
		return slices.Contains(b.DerivedFrom, col)
	})
}
