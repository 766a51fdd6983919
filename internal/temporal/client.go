package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	temporalsdk "go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/discovery"
	"github.com/efebarandurmaz/causaldiscover/internal/logging"
	"github.com/efebarandurmaz/causaldiscover/internal/task"
)

const cancelTimeout = 10 * time.Second

// Discoverer runs discovery as a Temporal workflow so a worker pool can
// hold the connection to the discovery service.
type Discoverer struct {
	client    client.Client
	taskQueue string
}

// NewDiscoverer creates a discoverer that starts workflows on taskQueue.
func NewDiscoverer(c client.Client, taskQueue string) *Discoverer {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Discoverer{client: c, taskQueue: taskQueue}
}

// NewDiscoveryInput flattens the in-model columns of dataset into a
// workflow input.
func NewDiscoveryInput(dataset discovery.Dataset, inModel []causal.CausalVariable, constraints causal.Constraints, algorithm causal.Algorithm) (DiscoveryInput, error) {
	in := DiscoveryInput{
		DatasetName: dataset.Name,
		Columns:     make([]string, 0, len(inModel)),
		Data:        make(map[string][]any, len(inModel)),
		InModel:     inModel,
		Constraints: constraints,
		Algorithm:   algorithm,
	}
	if dataset.Table == nil {
		return in, fmt.Errorf("dataset %q has no table", dataset.Name)
	}
	for _, v := range inModel {
		values, ok := dataset.Table.Column(v.ColumnName)
		if !ok {
			return in, fmt.Errorf("dataset %q has no column %q", dataset.Name, v.ColumnName)
		}
		in.Columns = append(in.Columns, v.ColumnName)
		in.Data[v.ColumnName] = values
	}
	return in, nil
}

// Discover implements discovery.Discoverer. When ctx ends first the
// workflow is cancelled.
func (d *Discoverer) Discover(ctx context.Context, dataset discovery.Dataset, inModel []causal.CausalVariable, constraints causal.Constraints, algorithm causal.Algorithm) (*discovery.Result, error) {
	if algorithm == causal.AlgorithmNone || algorithm == "" {
		return &discovery.Result{Graph: causal.EmptyGraph(inModel, constraints, causal.AlgorithmNone)}, nil
	}
	input, err := NewDiscoveryInput(dataset, inModel, constraints, algorithm)
	if err != nil {
		return nil, err
	}

	opts := client.StartWorkflowOptions{
		ID:        "discovery-" + uuid.NewString(),
		TaskQueue: d.taskQueue,
	}
	run, err := d.client.ExecuteWorkflow(ctx, opts, DiscoveryWorkflow, input)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &task.CanceledError{}
		}
		return nil, fmt.Errorf("start discovery workflow: %w", err)
	}

	logger := logging.FromContext(ctx)
	logger.Debug("discovery workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID())

	var out DiscoveryOutput
	err = run.Get(ctx, &out)
	if err == nil {
		return &discovery.Result{Graph: out.Graph, Model: out.Model}, nil
	}

	if ctx.Err() != nil {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
		defer cancel()
		if cerr := d.client.CancelWorkflow(cctx, run.GetID(), run.GetRunID()); cerr != nil {
			logger.Warn("failed to cancel discovery workflow", "workflow_id", run.GetID(), "error", cerr)
		}
		return nil, &task.CanceledError{TaskID: run.GetID()}
	}
	var canceled *temporalsdk.CanceledError
	if errors.As(err, &canceled) {
		return nil, &task.CanceledError{TaskID: run.GetID()}
	}
	var appErr *temporalsdk.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() == errTypeDiscovery {
		return nil, errors.New(appErr.Message())
	}
	return nil, fmt.Errorf("discovery workflow %s: %w", run.GetID(), err)
}

var _ discovery.Discoverer = (*Discoverer)(nil)
