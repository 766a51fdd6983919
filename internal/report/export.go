package report

import (
	"fmt"
	"strings"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/graph"
)

// Export formats.
const (
	FormatCSV     = "csv"
	FormatDOT     = "dot"
	FormatMermaid = "mermaid"
)

// ExportDOT renders the edges above the thresholds as Graphviz DOT.
// Positive effects are drawn green, negative ones red, and constrained
// edges dashed.
func ExportDOT(g *causal.CausalGraph, c causal.Constraints, weightThreshold, confidenceThreshold float64) string {
	var b strings.Builder
	b.WriteString("digraph causal {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [fontname=\"Helvetica\" shape=box style=rounded];\n")
	b.WriteString("  edge [fontname=\"Helvetica\" fontsize=10];\n\n")

	for _, v := range g.Variables {
		b.WriteString(fmt.Sprintf("  %q [label=%q];\n", v.ColumnName, label(v)))
	}
	if len(g.Variables) > 0 {
		b.WriteString("\n")
	}

	for _, r := range graph.RelationshipsAboveThresholds(g, weightThreshold, confidenceThreshold) {
		attrs := []string{"color=\"" + edgeColor(r.Weight) + "\""}
		if r.Weight != nil {
			attrs = append(attrs, fmt.Sprintf("label=\"%.2f\"", *r.Weight))
		}
		if !r.Directed {
			attrs = append(attrs, "dir=none")
		}
		if constrained(c, r) {
			attrs = append(attrs, "style=dashed")
		}
		b.WriteString(fmt.Sprintf("  %q -> %q [%s];\n", r.Source.ColumnName, r.Target.ColumnName, strings.Join(attrs, " ")))
	}

	b.WriteString("}\n")
	return b.String()
}

// ExportMermaid renders the edges above the thresholds as a Mermaid
// flowchart.
func ExportMermaid(g *causal.CausalGraph, weightThreshold, confidenceThreshold float64) string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	for _, v := range g.Variables {
		b.WriteString(fmt.Sprintf("  %s[\"%s\"]\n", mermaidID(v.ColumnName), strings.ReplaceAll(label(v), `"`, "'")))
	}

	for _, r := range graph.RelationshipsAboveThresholds(g, weightThreshold, confidenceThreshold) {
		arrow := "-->"
		if !r.Directed {
			arrow = "---"
		}
		edgeLabel := ""
		if r.Weight != nil {
			edgeLabel = fmt.Sprintf("|%.2f|", *r.Weight)
		}
		b.WriteString(fmt.Sprintf("  %s %s%s %s\n", mermaidID(r.Source.ColumnName), arrow, edgeLabel, mermaidID(r.Target.ColumnName)))
	}
	return b.String()
}

func label(v causal.CausalVariable) string {
	if v.Name != "" {
		return v.Name
	}
	return v.ColumnName
}

func edgeColor(weight *float64) string {
	switch {
	case weight == nil || *weight == 0:
		return "#8b949e"
	case *weight > 0:
		return "#3fb950"
	default:
		return "#f85149"
	}
}

func constrained(c causal.Constraints, r causal.Relationship) bool {
	for _, m := range c.ManualRelationships {
		if causal.HasSameOrInvertedSourceAndTarget(m, r) {
			return true
		}
	}
	return false
}

func mermaidID(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, s)
}
