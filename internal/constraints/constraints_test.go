package constraints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
)

func variable(col string, derivedFrom ...string) causal.CausalVariable {
	return causal.CausalVariable{ColumnName: col, Name: col, DerivedFrom: derivedFrom}
}

func ref(col string) causal.VariableReference { return causal.VariableReference{ColumnName: col} }

func edge(src, tgt string) causal.Relationship { return causal.NewRelationship(ref(src), ref(tgt)) }

func endpoints(rs []causal.Relationship) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Source.ColumnName + "->" + r.Target.ColumnName + ":" + string(r.Reason)
	}
	return out
}

func TestDeriveSiblingsAreOneDirectional(t *testing.T) {
	inModel := []causal.CausalVariable{
		variable("ColorRed", "Color"),
		variable("ColorBlue", "Color"),
	}
	derived := Derive(inModel)
	require.Len(t, derived, 1)
	assert.Equal(t, "ColorRed", derived[0].Source.ColumnName)
	assert.Equal(t, "ColorBlue", derived[0].Target.ColumnName)
	assert.Equal(t, causal.ReasonNone, derived[0].Reason)
}

func TestDeriveSiblingsFollowListOrder(t *testing.T) {
	inModel := []causal.CausalVariable{
		variable("ColorBlue", "Color"),
		variable("Age"),
		variable("ColorRed", "Color"),
		variable("ColorGreen", "Color"),
	}
	assert.Equal(t, []string{
		"ColorBlue->ColorRed:",
		"ColorBlue->ColorGreen:",
		"ColorRed->ColorGreen:",
	}, endpoints(Derive(inModel)))
}

func TestDeriveMultipleSharedColumnsEmitOnce(t *testing.T) {
	inModel := []causal.CausalVariable{
		variable("XY1", "X", "Y"),
		variable("XY2", "X", "Y"),
	}
	assert.Len(t, Derive(inModel), 1)
}

func TestDeriveDisallowedRelationships(t *testing.T) {
	age := variable("Age")
	age.DisallowedRelationships = []string{"Spend", "NotInModel"}
	inModel := []causal.CausalVariable{variable("Spend"), age, variable("Income")}

	assert.Equal(t, []string{"Age->Spend:"}, endpoints(Derive(inModel)))
}

func TestDeriveNoVariables(t *testing.T) {
	assert.Empty(t, Derive(nil))
	assert.Empty(t, Derive([]causal.CausalVariable{variable("Solo", "S")}))
}

func TestEffectiveInvertsFlippedEdges(t *testing.T) {
	inModel := []causal.CausalVariable{variable("Age"), variable("Income"), variable("Spend")}
	discovered := edge("Age", "Spend")
	discovered.Weight = causal.Float(0.3)

	user := FlipEdge(causal.Constraints{}, discovered)
	effective := Effective(user, inModel)

	require.Len(t, effective.ManualRelationships, 1)
	got := effective.ManualRelationships[0]
	assert.Equal(t, "Spend", got.Source.ColumnName)
	assert.Equal(t, "Age", got.Target.ColumnName)
	assert.Equal(t, causal.ReasonFlipped, got.Reason)
	assert.False(t, causal.HasSameSourceAndTarget(got, discovered))

	// user constraints keep the recorded orientation
	assert.Equal(t, "Age", user.ManualRelationships[0].Source.ColumnName)
}

func TestEffectiveOrdering(t *testing.T) {
	inModel := []causal.CausalVariable{variable("A", "G"), variable("B", "G"), variable("C")}
	user := causal.Constraints{
		Causes: []causal.VariableReference{ref("C")},
		ManualRelationships: []causal.Relationship{
			edge("A", "C").WithReason(causal.ReasonRemoved),
			edge("B", "C").WithReason(causal.ReasonPinned),
			edge("C", "A").WithReason(causal.ReasonSaved),
			edge("A", "B").WithReason(causal.ReasonFlipped),
		},
	}

	effective := Effective(user, inModel)
	assert.Equal(t, []string{
		"A->B:",
		"C->B:Pinned",
		"B->A:Flipped",
		"A->C:Removed",
		"C->A:Saved",
	}, endpoints(effective.ManualRelationships))
	assert.Equal(t, user.Causes, effective.Causes)
	assert.Len(t, user.ManualRelationships, 4, "input is not mutated")
}

func TestEffectiveDoesNotDeduplicate(t *testing.T) {
	inModel := []causal.CausalVariable{variable("A", "G"), variable("B", "G")}
	user := causal.Constraints{ManualRelationships: []causal.Relationship{edge("A", "B")}}
	assert.Len(t, Effective(user, inModel).ManualRelationships, 2)
}

func TestFlipEdgeIsAToggle(t *testing.T) {
	original := causal.Constraints{
		ManualRelationships: []causal.Relationship{edge("X", "Y").WithReason(causal.ReasonRemoved)},
	}
	r := edge("Age", "Spend")

	once := FlipEdge(original, r)
	require.Len(t, once.ManualRelationships, 2)
	assert.Equal(t, causal.ReasonFlipped, once.ManualRelationships[1].Reason)

	twice := FlipEdge(once, r)
	assert.Equal(t, original.ManualRelationships, twice.ManualRelationships)
	assert.Len(t, once.ManualRelationships, 2, "flip does not mutate its input")
}

func TestFlipEdgeTogglesOffFromFlippedOrientation(t *testing.T) {
	c := FlipEdge(causal.Constraints{}, edge("Age", "Spend"))
	// the rendered post-flip edge points the other way
	c = FlipEdge(c, edge("Spend", "Age"))
	assert.Empty(t, c.ManualRelationships)
}

func TestRemoveBothEdges(t *testing.T) {
	c := causal.Constraints{ManualRelationships: []causal.Relationship{
		edge("B", "A").WithReason(causal.ReasonSaved),
		edge("A", "B").WithReason(causal.ReasonPinned),
	}}
	c = RemoveBothEdges(c, edge("A", "B"))
	assert.Equal(t, []string{"B->A:Saved", "A->B:Removed"}, endpoints(c.ManualRelationships))

	c = RemoveBothEdges(c, edge("A", "B"))
	assert.Len(t, c.ManualRelationships, 2, "re-applying is idempotent")
}

func TestRemoveConstraint(t *testing.T) {
	c := causal.Constraints{ManualRelationships: []causal.Relationship{
		edge("A", "B").WithReason(causal.ReasonRemoved),
		edge("B", "A").WithReason(causal.ReasonFlipped),
		edge("A", "C").WithReason(causal.ReasonSaved),
	}}
	c = RemoveConstraint(c, edge("A", "B"))
	assert.Equal(t, []string{"B->A:Flipped", "A->C:Saved"}, endpoints(c.ManualRelationships))

	c = RemoveConstraint(c, edge("Missing", "Edge"))
	assert.Len(t, c.ManualRelationships, 2)
}

func TestPinAndSaveReplaceExisting(t *testing.T) {
	c := SaveEdge(causal.Constraints{}, edge("A", "B"))
	c = PinEdge(c, edge("A", "B"))
	assert.Equal(t, []string{"A->B:Pinned"}, endpoints(c.ManualRelationships))
}

func TestToggleCauseAndEffect(t *testing.T) {
	c := ToggleCause(causal.Constraints{}, ref("Age"))
	assert.Equal(t, []causal.VariableReference{ref("Age")}, c.Causes)

	c = ToggleEffect(c, ref("Age"))
	assert.Empty(t, c.Causes)
	assert.Equal(t, []causal.VariableReference{ref("Age")}, c.Effects)

	c = ToggleEffect(c, ref("Age"))
	assert.Empty(t, c.Effects)
}

func TestConstraintQueries(t *testing.T) {
	c := causal.Constraints{
		Effects: []causal.VariableReference{ref("Spend")},
		ManualRelationships: []causal.Relationship{
			edge("A", "B").WithReason(causal.ReasonFlipped),
			edge("C", "A").WithReason(causal.ReasonRemoved),
		},
	}

	got, ok := ConstraintFor(c, edge("B", "A"))
	require.True(t, ok)
	assert.Equal(t, causal.ReasonFlipped, got.Reason)

	_, ok = ConstraintFor(c, edge("A", "C"))
	assert.False(t, ok)

	assert.True(t, HasAnyConstraint(c, edge("Income", "Spend")))
	assert.False(t, HasAnyConstraint(c, edge("Income", "Age")))

	assert.Equal(t, []string{"C->A:Removed"}, endpoints(Rejected(c, ref("A"))))
	assert.Empty(t, Rejected(c, ref("B")))
}

func TestNamedOps(t *testing.T) {
	c := EdgeOps["pin"](causal.Constraints{}, edge("A", "B"))
	c = EdgeOps["clear"](c, edge("A", "B"))
	assert.Empty(t, c.ManualRelationships)

	c = VariableOps["effect"](c, ref("B"))
	assert.Equal(t, []causal.VariableReference{ref("B")}, c.Effects)

	_, ok := EdgeOps["cause"]
	assert.False(t, ok)
}
