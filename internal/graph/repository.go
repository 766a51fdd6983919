package graph

import (
	"context"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
)

// Repository provides durable storage for published causal graphs.
type Repository interface {
	// StoreGraph replaces the stored graph of a project.
	StoreGraph(ctx context.Context, projectID string, g *causal.CausalGraph) error
	// LoadGraph retrieves the stored graph of a project.
	LoadGraph(ctx context.Context, projectID string) (*causal.CausalGraph, error)
	// QueryChildren returns the column names directly caused by columnName.
	QueryChildren(ctx context.Context, projectID, columnName string) ([]string, error)
	// Close releases resources.
	Close(ctx context.Context) error
}
