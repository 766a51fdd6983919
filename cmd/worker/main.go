// Command worker runs discovery activities for sessions that use the
// temporal transport.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/causaldiscover/internal/config"
	"github.com/efebarandurmaz/causaldiscover/internal/discovery"
	"github.com/efebarandurmaz/causaldiscover/internal/logging"
	"github.com/efebarandurmaz/causaldiscover/internal/temporal"
)

func main() {
	configPath := config.DefaultPath
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	if err := run(configPath); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)
	for _, w := range cfg.Validate() {
		logger.Warn("config", "warning", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Only the worker talks to the discovery service.
	temporal.SetDependencies(&temporal.Dependencies{
		Discoverer: discovery.NewHTTPClient(cfg.Discovery.BaseURL,
			discovery.WithHTTPClient(&http.Client{Timeout: cfg.Discovery.Timeout}),
			discovery.WithPollInterval(cfg.Discovery.PollInterval),
			discovery.WithStartRetries(cfg.Discovery.StartRetries),
			discovery.WithDeciOptions(cfg.Discovery.DeciOptions),
			discovery.WithProgress(func(progress float64, taskID string) {
				logger.Debug("discovery progress", "task_id", taskID, "progress", progress)
			}),
		),
	})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("dial temporal at %s: %w", cfg.Temporal.Host, err)
	}
	defer c.Close()

	w, err := temporal.StartWorker(c, cfg.Temporal.TaskQueue, cfg.Temporal.MaxConcurrentRuns)
	if err != nil {
		return err
	}
	logger.Info("worker started",
		"task_queue", cfg.Temporal.TaskQueue,
		"max_concurrent_runs", cfg.Temporal.MaxConcurrentRuns,
		"discovery_url", cfg.Discovery.BaseURL)

	<-ctx.Done()
	w.Stop()
	logger.Info("worker stopped")
	return nil
}
