package discovery

import (
	"fmt"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
)

// Edge is one discovered edge as reported by the discovery service.
type Edge struct {
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	Weight     *float64 `json:"weight,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// ConstraintsPayload is the wire form of discovery constraints.
type ConstraintsPayload struct {
	Causes                 []string    `json:"causes"`
	Effects                []string    `json:"effects"`
	ForbiddenRelationships [][2]string `json:"forbiddenRelationships"`
}

// FromEdges builds a causal graph from discovered edges. Every endpoint must
// name one of variables.
func FromEdges(variables []causal.CausalVariable, edges []Edge, constraints causal.Constraints, algorithm causal.Algorithm) (*causal.CausalGraph, error) {
	g := &causal.CausalGraph{
		Variables:     variables,
		Relationships: make([]causal.Relationship, 0, len(edges)),
		Constraints:   constraints,
		Algorithm:     algorithm,
	}
	hasConfidence := false
	for _, e := range edges {
		source, ok := causal.FindVariable(variables, e.Source)
		target, ok2 := causal.FindVariable(variables, e.Target)
		if !ok || !ok2 {
			return nil, fmt.Errorf("causal discovery returned an edge for unknown variables: %s -> %s", e.Source, e.Target)
		}

		effect := "an effect"
		if e.Weight != nil {
			effect = "a decrease"
			if *e.Weight > 0 {
				effect = "an increase"
			}
		}
		if e.Confidence != nil {
			hasConfidence = true
		}
		g.Relationships = append(g.Relationships, causal.Relationship{
			Source:     source.Ref(),
			Target:     target.Ref(),
			Weight:     e.Weight,
			Confidence: e.Confidence,
			Name:       fmt.Sprintf("Increasing %s causes %s in %s", displayName(source), effect, displayName(target)),
			Key:        causal.RelationshipKey(source.ColumnName, target.ColumnName),
			Directed:   true,
		})
	}
	g.HasConfidenceValues = &hasConfidence
	return g, nil
}

func displayName(v causal.CausalVariable) string {
	if v.Name != "" {
		return v.Name
	}
	return v.ColumnName
}

// BuildConstraintsPayload converts effective constraints to their wire form.
// Entries referencing variables outside inModel are dropped. Effective
// constraints carry Flipped and Pinned entries inverted: a Flipped entry
// then names the wanted orientation, so its inverse is forbidden, while a
// Pinned entry names the inverse of the kept edge and is forbidden as is.
// Removed and reason-less entries forbid their own orientation; Saved
// entries forbid nothing.
func BuildConstraintsPayload(inModel []causal.CausalVariable, constraints causal.Constraints) ConstraintsPayload {
	refs := causal.Refs(inModel)
	inModelRef := func(v causal.VariableReference) bool {
		return causal.ArrayIncludesVariable(refs, v)
	}

	payload := ConstraintsPayload{
		Causes:                 []string{},
		Effects:                []string{},
		ForbiddenRelationships: [][2]string{},
	}
	for _, v := range constraints.Causes {
		if inModelRef(v) {
			payload.Causes = append(payload.Causes, v.ColumnName)
		}
	}
	for _, v := range constraints.Effects {
		if inModelRef(v) {
			payload.Effects = append(payload.Effects, v.ColumnName)
		}
	}

	seen := make(map[[2]string]bool)
	forbid := func(source, target causal.VariableReference) {
		if !inModelRef(source) || !inModelRef(target) {
			return
		}
		pair := [2]string{source.ColumnName, target.ColumnName}
		if seen[pair] {
			return
		}
		seen[pair] = true
		payload.ForbiddenRelationships = append(payload.ForbiddenRelationships, pair)
	}
	for _, r := range constraints.ManualRelationships {
		switch r.Reason {
		case causal.ReasonNone, causal.ReasonRemoved, causal.ReasonPinned:
			forbid(r.Source, r.Target)
		case causal.ReasonFlipped:
			forbid(r.Target, r.Source)
		}
	}
	return payload
}
