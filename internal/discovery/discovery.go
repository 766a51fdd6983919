// Package discovery defines the contracts between the orchestrator and the
// external causal discovery service, and the HTTP client that talks to it.
package discovery

import (
	"context"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
)

// DefaultDatasetName names the placeholder dataset used before any data is
// loaded. Discovery is never run against it.
const DefaultDatasetName = "default"

// Dataset is a named table of observations.
type Dataset struct {
	Name  string
	Table Table
}

// IsPlaceholder reports whether d carries no usable data.
func (d Dataset) IsPlaceholder() bool {
	return d.Name == "" || d.Name == DefaultDatasetName || d.Table == nil
}

// InferenceModel holds the effect matrices returned alongside a graph.
// Rows and columns follow ColumnNames.
type InferenceModel struct {
	ColumnNames                  []string    `json:"columnNames"`
	ConfidenceMatrix             [][]float64 `json:"confidenceMatrix,omitempty"`
	TreatmentEffectMatrix        [][]float64 `json:"treatmentEffectMatrix,omitempty"`
	InterpretBooleanAsContinuous bool        `json:"interpretBooleanAsContinuous"`
}

// Result is the output of one discovery run. Model is nil when the
// algorithm does not produce one.
type Result struct {
	Graph *causal.CausalGraph
	Model *InferenceModel
}

// Discoverer runs a causal discovery algorithm. Implementations must be
// safe for concurrent use.
type Discoverer interface {
	Discover(ctx context.Context, dataset Dataset, inModel []causal.CausalVariable, constraints causal.Constraints, algorithm causal.Algorithm) (*Result, error)
}

// DiscovererFunc adapts a function to Discoverer.
type DiscovererFunc func(ctx context.Context, dataset Dataset, inModel []causal.CausalVariable, constraints causal.Constraints, algorithm causal.Algorithm) (*Result, error)

func (f DiscovererFunc) Discover(ctx context.Context, dataset Dataset, inModel []causal.CausalVariable, constraints causal.Constraints, algorithm causal.Algorithm) (*Result, error) {
	return f(ctx, dataset, inModel, constraints, algorithm)
}

// ProgressFunc receives run progress in percent together with the remote
// task id.
type ProgressFunc func(progress float64, taskID string)
