// Package causal holds the value types of the causal graph: variables,
// relationships, user constraints and discovered graphs.
package causal

// VariableNature describes how a variable's values should be interpreted.
type VariableNature string

const (
	NatureContinuous         VariableNature = "Continuous"
	NatureDiscrete           VariableNature = "Discrete"
	NatureBinary             VariableNature = "Binary"
	NatureCategoricalNominal VariableNature = "Categorical Nominal"
	NatureCategoricalOrdinal VariableNature = "Categorical Ordinal"
	NatureExcluded           VariableNature = "Excluded"
)

// VariableReference is the minimal identity of a variable.
type VariableReference struct {
	ColumnName string `json:"columnName"`
}

// CausalVariable is a column-backed node of the causal graph.
type CausalVariable struct {
	ColumnName string         `json:"columnName"`
	Name       string         `json:"name"`
	Nature     VariableNature `json:"nature,omitempty"`

	// DerivedFrom lists the source columns this variable was computed from
	// (one-hot encodings, binned columns).
	DerivedFrom []string `json:"derivedFrom,omitempty"`

	// DisallowedRelationships lists columns this variable must never be
	// causally connected to.
	DisallowedRelationships []string `json:"disallowedRelationships,omitempty"`

	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Ref returns the reference identifying v.
func (v CausalVariable) Ref() VariableReference {
	return VariableReference{ColumnName: v.ColumnName}
}

// Refs converts variables to references, preserving order.
func Refs(vars []CausalVariable) []VariableReference {
	refs := make([]VariableReference, len(vars))
	for i, v := range vars {
		refs[i] = v.Ref()
	}
	return refs
}

// IsSameVariable reports whether a and b name the same column.
func IsSameVariable(a, b VariableReference) bool {
	return a.ColumnName == b.ColumnName
}

// ArrayIncludesVariable reports whether list contains v.
func ArrayIncludesVariable(list []VariableReference, v VariableReference) bool {
	for _, item := range list {
		if IsSameVariable(item, v) {
			return true
		}
	}
	return false
}

// IsDerived reports whether v was computed from other columns.
func IsDerived(v CausalVariable) bool {
	return len(v.DerivedFrom) > 0
}

// IsAddable reports whether v may be placed in the model.
func IsAddable(v CausalVariable) bool {
	return v.Nature != NatureExcluded
}

// FindVariable returns the variable with the given column name.
func FindVariable(vars []CausalVariable, columnName string) (CausalVariable, bool) {
	for _, v := range vars {
		if v.ColumnName == columnName {
			return v, true
		}
	}
	return CausalVariable{}, false
}
