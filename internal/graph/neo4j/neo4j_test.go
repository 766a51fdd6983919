package neo4j

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
)

func TestRelationshipParamsRoundTrip(t *testing.T) {
	rel := causal.NewRelationship(
		causal.VariableReference{ColumnName: "Age"},
		causal.VariableReference{ColumnName: "Spend"},
	)
	rel.Weight = causal.Float(-0.4)
	rel.Reason = causal.ReasonPinned

	params := relationshipParams("p1", rel)
	assert.Equal(t, "p1", params["project"])
	assert.Equal(t, -0.4, params["weight"])
	assert.Nil(t, params["confidence"])

	got := relationshipFromValues(params)
	assert.Equal(t, rel, got)
}

func TestRelationshipFromValuesToleratesNulls(t *testing.T) {
	got := relationshipFromValues(map[string]any{
		"source": "A", "target": "B", "weight": nil, "confidence": nil, "directed": nil,
	})
	assert.Nil(t, got.Weight)
	assert.Nil(t, got.Confidence)
	assert.False(t, got.Directed)
	assert.Equal(t, "A", got.Source.ColumnName)
}

func TestVariableParams(t *testing.T) {
	params := variableParams("p1", causal.CausalVariable{
		ColumnName:  "ColorRed",
		Name:        "Color: red",
		Nature:      causal.NatureBinary,
		DerivedFrom: []string{"Color"},
	})
	assert.Equal(t, "ColorRed", params["column"])
	assert.Equal(t, []any{"Color"}, params["derivedFrom"])
	assert.Equal(t, "Binary", params["nature"])
}

func TestAppendColumnSkipsBadValues(t *testing.T) {
	names := []string{}
	for _, v := range []any{"Spend", nil, int64(3), "", "Savings"} {
		names = appendColumn(names, v)
	}
	assert.Equal(t, []string{"Spend", "Savings"}, names)
	assert.Equal(t, causal.Algorithm(""), causal.Algorithm(stringValue(int64(1))))
}
