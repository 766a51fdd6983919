package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
)

func exportGraph() *causal.CausalGraph {
	return &causal.CausalGraph{
		Variables: []causal.CausalVariable{
			{ColumnName: "Age", Name: "Customer age"},
			{ColumnName: "Spend"},
			{ColumnName: "Income level"},
		},
		Relationships: []causal.Relationship{
			rel("Age", "Spend", causal.Float(0.5)),
			rel("Income level", "Spend", causal.Float(-0.05)),
		},
	}
}

func TestExportDOT(t *testing.T) {
	c := causal.Constraints{ManualRelationships: []causal.Relationship{
		rel("Spend", "Age", nil).WithReason(causal.ReasonFlipped),
	}}

	out := ExportDOT(exportGraph(), c, 0.1, 0)
	assert.True(t, strings.HasPrefix(out, "digraph causal {"))
	assert.Contains(t, out, `"Age" [label="Customer age"];`)
	assert.Contains(t, out, `"Age" -> "Spend" [color="#3fb950" label="0.50" style=dashed];`)
	assert.NotContains(t, out, `"Income level" -> "Spend"`, "edges under the threshold are left out")
}

func TestExportMermaid(t *testing.T) {
	out := ExportMermaid(exportGraph(), 0, 0)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "graph LR", lines[0])
	assert.Contains(t, out, "  Income_level[\"Income level\"]\n")
	assert.Contains(t, out, "  Age -->|0.50| Spend\n")
	assert.Contains(t, out, "  Income_level -->|-0.05| Spend\n")
}
