package temporal

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// StartWorker registers the discovery workflow and activity on taskQueue and
// starts polling. maxConcurrentRuns bounds simultaneous discovery
// activities; zero keeps the SDK default.
func StartWorker(c client.Client, taskQueue string, maxConcurrentRuns int) (worker.Worker, error) {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: maxConcurrentRuns,
	})
	w.RegisterWorkflow(DiscoveryWorkflow)
	w.RegisterActivity(DiscoverActivity)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("start worker on %s: %w", taskQueue, err)
	}
	return w, nil
}
