// Package metrics summarizes CLI discovery runs for humans and for JSON
// consumers.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/discovery"
	"github.com/efebarandurmaz/causaldiscover/internal/graph"
	"github.com/efebarandurmaz/causaldiscover/internal/snapshot"
)

// RunMetrics collects statistics for one CLI invocation.
type RunMetrics struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
	Duration   time.Duration  `json:"duration_ms,omitempty"`
	Dataset    DatasetMetrics `json:"dataset"`
	Thresholds Thresholds     `json:"thresholds"`
	Runs       []RunResult    `json:"runs"`
	Errors     []string       `json:"errors,omitempty"`
}

type DatasetMetrics struct {
	Name        string `json:"name"`
	RowCount    int    `json:"row_count"`
	ColumnCount int    `json:"column_count"`
	InModel     int    `json:"in_model"`
	Constraints int    `json:"constraints"`
}

type Thresholds struct {
	Weight     float64 `json:"weight"`
	Confidence float64 `json:"confidence"`
}

// RunResult describes one algorithm run. The diff counts compare against
// the baseline run and are nil for the baseline itself.
type RunResult struct {
	Algorithm      causal.Algorithm `json:"algorithm"`
	Duration       time.Duration    `json:"duration_ms"`
	Relationships  int              `json:"relationships"`
	AboveThreshold int              `json:"above_threshold"`
	Added          *int             `json:"added,omitempty"`
	Removed        *int             `json:"removed,omitempty"`
	Reversed       *int             `json:"reversed,omitempty"`
	Error          string           `json:"error,omitempty"`
}

// New starts tracking a run.
func New(weightThreshold, confidenceThreshold float64) *RunMetrics {
	return &RunMetrics{
		StartedAt:  time.Now(),
		Thresholds: Thresholds{Weight: weightThreshold, Confidence: confidenceThreshold},
	}
}

// CollectDataset records the shape of the input.
func (m *RunMetrics) CollectDataset(d discovery.Dataset, inModel []causal.CausalVariable, c causal.Constraints) {
	m.Dataset.Name = d.Name
	if d.Table != nil {
		m.Dataset.RowCount = d.Table.NumRows()
		m.Dataset.ColumnCount = len(d.Table.ColumnNames())
	}
	m.Dataset.InModel = len(inModel)
	m.Dataset.Constraints = len(c.Causes) + len(c.Effects) + len(c.ManualRelationships)
}

// AddRun records one algorithm result. diff may be nil.
func (m *RunMetrics) AddRun(a causal.Algorithm, d time.Duration, g *causal.CausalGraph, diff *snapshot.GraphDifferences, err error) {
	r := RunResult{Algorithm: a, Duration: d}
	if err != nil {
		r.Error = err.Error()
		m.Errors = append(m.Errors, fmt.Sprintf("%s: %v", a, err))
	}
	if g != nil {
		r.Relationships = len(g.Relationships)
		r.AboveThreshold = len(graph.RelationshipsAboveThresholds(g, m.Thresholds.Weight, m.Thresholds.Confidence))
	}
	if diff != nil {
		added, removed, reversed := len(diff.Added), len(diff.Removed), len(diff.Reversed)
		r.Added, r.Removed, r.Reversed = &added, &removed, &reversed
	}
	m.Runs = append(m.Runs, r)
}

// Finish marks the invocation as complete.
func (m *RunMetrics) Finish() {
	m.FinishedAt = time.Now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
}

// PrintSummary writes a human-readable summary.
func (m *RunMetrics) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║       CAUSAL DISCOVERY REPORT        ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", m.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Thresholds:  w>%-6.2f c>%-12.2f║\n", m.Thresholds.Weight, m.Thresholds.Confidence)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ DATASET (%s)\n", m.Dataset.Name)
	fmt.Fprintf(w, "║   Rows:        %d\n", m.Dataset.RowCount)
	fmt.Fprintf(w, "║   Columns:     %d\n", m.Dataset.ColumnCount)
	fmt.Fprintf(w, "║   In model:    %d\n", m.Dataset.InModel)
	fmt.Fprintf(w, "║   Constraints: %d\n", m.Dataset.Constraints)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ RUNS\n")
	for _, r := range m.Runs {
		status := fmt.Sprintf("%d edges (%d shown)", r.Relationships, r.AboveThreshold)
		if r.Error != "" {
			status = "failed"
		}
		fmt.Fprintf(w, "║   %-13s %8s  %s\n", r.Algorithm, r.Duration.Round(time.Millisecond), status)
		if r.Added != nil {
			fmt.Fprintf(w, "║     vs baseline: +%d -%d ~%d\n", *r.Added, *r.Removed, *r.Reversed)
		}
	}
	if len(m.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range m.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the metrics as formatted JSON.
func (m *RunMetrics) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
