package temporal

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/activity"
	temporalsdk "go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/causaldiscover/internal/discovery"
	"github.com/efebarandurmaz/causaldiscover/internal/task"
)

// errTypeDiscovery marks failures reported by the discovery service. They
// are deterministic for a given input and never retried.
const errTypeDiscovery = "DiscoveryError"

const defaultHeartbeatInterval = 5 * time.Second

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Discoverer        discovery.Discoverer
	HeartbeatInterval time.Duration
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// DiscoverActivity rebuilds the dataset and runs the configured discoverer,
// heartbeating until it returns.
func DiscoverActivity(ctx context.Context, input DiscoveryInput) (*DiscoveryOutput, error) {
	if deps == nil || deps.Discoverer == nil {
		return nil, temporalsdk.NewNonRetryableApplicationError("no discoverer configured", errTypeDiscovery, nil)
	}
	table, err := discovery.NewRecordTable(input.Columns, input.Data)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), errTypeDiscovery, err)
	}

	interval := deps.HeartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	hbCtx, stop := context.WithCancel(ctx)
	defer stop()
	go heartbeat(hbCtx, interval)

	logger := activity.GetLogger(ctx)
	logger.Info("running discovery", "algorithm", input.Algorithm, "variables", len(input.InModel), "rows", table.NumRows())

	dataset := discovery.Dataset{Name: input.DatasetName, Table: table}
	res, err := deps.Discoverer.Discover(ctx, dataset, input.InModel, input.Constraints, input.Algorithm)
	if err != nil {
		if errors.Is(err, task.ErrCanceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, temporalsdk.NewApplicationError(err.Error(), errTypeDiscovery)
	}
	return &DiscoveryOutput{Graph: res.Graph, Model: res.Model}, nil
}

func heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		activity.RecordHeartbeat(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
