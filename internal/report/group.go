package report

import "github.com/efebarandurmaz/causaldiscover/internal/causal"

// EffectType classifies an edge relative to one variable.
type EffectType string

const (
	Affects       EffectType = "Affects"
	Increases     EffectType = "Increases"
	IsIncreasedBy EffectType = "Is increased by"
	Decreases     EffectType = "Decreases"
	IsDecreasedBy EffectType = "Is decreased by"
	IsAffectedBy  EffectType = "Is affected by"
)

// GroupByEffectType buckets relationships by how they relate to
// columnName. Edges with a zero weight are always IsAffectedBy.
func GroupByEffectType(relationships []causal.Relationship, columnName string) map[EffectType][]causal.Relationship {
	out := make(map[EffectType][]causal.Relationship)
	for _, r := range relationships {
		isSource := r.Source.ColumnName == columnName
		key := IsAffectedBy
		switch {
		case r.Weight == nil:
			if isSource {
				key = Affects
			}
		case *r.Weight > 0:
			key = IsIncreasedBy
			if isSource {
				key = Increases
			}
		case *r.Weight < 0:
			key = IsDecreasedBy
			if isSource {
				key = Decreases
			}
		}
		out[key] = append(out[key], r)
	}
	return out
}
