package causal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterBoringRelationships(t *testing.T) {
	vars := []CausalVariable{
		{ColumnName: "Age", Nature: NatureContinuous},
		{ColumnName: "Spend", Nature: NatureContinuous},
		{ColumnName: "ColorRed", Nature: NatureBinary, DerivedFrom: []string{"Color"}},
		{ColumnName: "ColorBlue", Nature: NatureBinary, DerivedFrom: []string{"Color"}},
		{ColumnName: "AgeSquared", Nature: NatureContinuous, DerivedFrom: []string{"Age"}},
		{ColumnName: "Region", Nature: NatureCategoricalNominal},
		{ColumnName: "Income", Nature: NatureContinuous, DisallowedRelationships: []string{"Spend"}},
	}
	pair := func(a, b string) Relationship {
		return NewRelationship(VariableReference{ColumnName: a}, VariableReference{ColumnName: b})
	}
	interesting := pair("Age", "Spend")

	got := FilterBoringRelationships(vars, []Relationship{
		interesting,
		pair("ColorRed", "ColorBlue"),
		pair("Age", "AgeSquared"),
		pair("AgeSquared", "Age"),
		pair("Region", "Age"),
		pair("Spend", "Income"),
		pair("Age", "Height"),
		pair("ColorRed", "Spend"),
	})

	assert.Equal(t, []Relationship{interesting, pair("ColorRed", "Spend")}, got)
	assert.Empty(t, FilterBoringRelationships(nil, []Relationship{interesting}))
}
