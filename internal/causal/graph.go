package causal

import (
	"fmt"
	"slices"
	"strings"
)

// Algorithm names a causal discovery algorithm.
type Algorithm string

const (
	AlgorithmNone         Algorithm = "None"
	AlgorithmNOTEARS      Algorithm = "NOTEARS"
	AlgorithmDirectLiNGAM Algorithm = "DirectLiNGAM"
	AlgorithmPC           Algorithm = "PC"
	AlgorithmDECI         Algorithm = "DECI"
)

// Algorithms lists every supported algorithm.
var Algorithms = []Algorithm{AlgorithmNone, AlgorithmNOTEARS, AlgorithmDirectLiNGAM, AlgorithmPC, AlgorithmDECI}

// ParseAlgorithm resolves a case-insensitive algorithm name.
func ParseAlgorithm(name string) (Algorithm, error) {
	for _, a := range Algorithms {
		if strings.EqualFold(string(a), name) {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown discovery algorithm %q", name)
}

// Constraints is the user-imposed constraint set fed to discovery.
type Constraints struct {
	Causes              []VariableReference `json:"causes"`
	Effects             []VariableReference `json:"effects"`
	ManualRelationships []Relationship      `json:"manualRelationships"`
}

// Clone returns a deep copy of the slices in c.
func (c Constraints) Clone() Constraints {
	return Constraints{
		Causes:              slices.Clone(c.Causes),
		Effects:             slices.Clone(c.Effects),
		ManualRelationships: slices.Clone(c.ManualRelationships),
	}
}

// CausalGraph is the immutable snapshot produced by one discovery run.
type CausalGraph struct {
	Variables           []CausalVariable `json:"variables"`
	Relationships       []Relationship   `json:"relationships"`
	Constraints         Constraints      `json:"constraints"`
	Algorithm           Algorithm        `json:"algorithm"`
	IsDag               *bool            `json:"isDag,omitempty"`
	HasConfidenceValues *bool            `json:"hasConfidenceValues,omitempty"`
}

// EmptyGraph is the graph published when discovery is not run.
func EmptyGraph(vars []CausalVariable, c Constraints, a Algorithm) *CausalGraph {
	return &CausalGraph{
		Variables:     vars,
		Relationships: []Relationship{},
		Constraints:   c,
		Algorithm:     a,
	}
}
