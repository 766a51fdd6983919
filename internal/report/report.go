// Package report renders discovered edges as a flat table for export.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/constraints"
)

// Row is one line of the edge report.
type Row struct {
	Source        string `json:"source"`
	Target        string `json:"target"`
	IsConstrained int    `json:"is_constrained"`
	Method        string `json:"method"`
	Relationship  string `json:"relationship"`
	Weight        string `json:"weight,omitempty"`
	WeightFormula string `json:"weight_formula,omitempty"`
}

var header = []string{"source", "target", "is_constrained", "method", "relationship", "weight", "weight_formula"}

// Generate lists every edge of g followed by the user-removed edges that
// touch a variable of the report, sorted by source.
func Generate(g *causal.CausalGraph, c causal.Constraints) []Row {
	if g == nil {
		return []Row{}
	}
	rows := make([]Row, 0, len(g.Relationships))
	seen := make(map[string]bool)
	for _, r := range g.Relationships {
		seen[r.Source.ColumnName] = true
		seen[r.Target.ColumnName] = true

		row := Row{
			Source:        r.Source.ColumnName,
			Target:        r.Target.ColumnName,
			Method:        string(g.Algorithm),
			Relationship:  CausalRelationship(r.Weight),
			WeightFormula: WeightFormula(g.Algorithm),
		}
		if g.Algorithm != causal.AlgorithmPC && constraints.HasAnyConstraint(c, r) {
			row.IsConstrained = 1
		}
		if r.Weight != nil {
			row.Weight = strconv.FormatFloat(*r.Weight, 'f', 3, 64)
		}
		rows = append(rows, row)
	}

	var removed []Row
	for _, r := range c.ManualRelationships {
		if r.Reason != causal.ReasonRemoved {
			continue
		}
		if !seen[r.Source.ColumnName] && !seen[r.Target.ColumnName] {
			continue
		}
		removed = append(removed, Row{
			Source:        r.Source.ColumnName,
			Target:        r.Target.ColumnName,
			IsConstrained: 1,
			Method:        string(g.Algorithm),
			Relationship:  "removed",
		})
	}
	slices.SortStableFunc(removed, func(a, b Row) int { return strings.Compare(a.Source, b.Source) })
	return append(rows, removed...)
}

// CausalRelationship describes the sign of a weight. Unknown weights count
// as zero.
func CausalRelationship(weight *float64) string {
	if weight != nil && *weight > 0 {
		return "increases"
	}
	return "decreases"
}

// WeightFormula explains what an algorithm's weights mean.
func WeightFormula(a causal.Algorithm) string {
	switch a {
	case causal.AlgorithmNOTEARS, causal.AlgorithmDirectLiNGAM:
		return "causal effect weight (float)"
	case causal.AlgorithmPC:
		return "edge existence (0 or 1)"
	default:
		return ""
	}
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	for _, r := range rows {
		record := []string{r.Source, r.Target, strconv.Itoa(r.IsConstrained), r.Method, r.Relationship, r.Weight, r.WeightFormula}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write report row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
