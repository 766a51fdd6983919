package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/discovery"
)

const (
	// DefaultTaskQueue is used when no queue is configured.
	DefaultTaskQueue = "causal-discovery"

	activityTimeout  = 30 * time.Minute
	heartbeatTimeout = 30 * time.Second
	maxAttempts      = 2
)

// DiscoveryInput holds the workflow parameters. The dataset travels as
// columns so it survives the payload converter.
type DiscoveryInput struct {
	DatasetName string
	Columns     []string
	Data        map[string][]any
	InModel     []causal.CausalVariable
	Constraints causal.Constraints
	Algorithm   causal.Algorithm
}

// DiscoveryOutput holds the workflow result.
type DiscoveryOutput struct {
	Graph *causal.CausalGraph
	Model *discovery.InferenceModel
}

// DiscoveryWorkflow runs one discovery in a single activity. Cancelling the
// workflow cancels the activity on its next heartbeat.
func DiscoveryWorkflow(ctx workflow.Context, input DiscoveryInput) (*DiscoveryOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: activityTimeout,
		HeartbeatTimeout:    heartbeatTimeout,
		WaitForCancellation: true,
		RetryPolicy: &temporalsdk.RetryPolicy{
			MaximumAttempts:        maxAttempts,
			NonRetryableErrorTypes: []string{errTypeDiscovery},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("discovery workflow started", "algorithm", input.Algorithm, "variables", len(input.InModel))

	var out DiscoveryOutput
	if err := workflow.ExecuteActivity(ctx, DiscoverActivity, input).Get(ctx, &out); err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	return &out, nil
}
