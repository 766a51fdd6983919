package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/config"
	"github.com/efebarandurmaz/causaldiscover/internal/discovery"
	"github.com/efebarandurmaz/causaldiscover/internal/observability"
	"github.com/efebarandurmaz/causaldiscover/internal/orchestrator"
	"github.com/efebarandurmaz/causaldiscover/internal/server"
	"github.com/efebarandurmaz/causaldiscover/internal/snapshot"
	"github.com/efebarandurmaz/causaldiscover/internal/state"
	"github.com/efebarandurmaz/causaldiscover/internal/temporal"
)

func runServe(configPath, dataPath, projectPath, columns string, embeddedWorker bool) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	algorithm, err := resolveAlgorithm(cfg, "")
	if err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)
	ctx := context.Background()

	shutdown := server.NewShutdownHandler(&server.ShutdownConfig{
		Timeout: cfg.Server.ShutdownTimeout,
		Signals: []os.Signal{syscall.SIGTERM, syscall.SIGINT},
		Logger:  logger,
	})

	tracing := observability.TracingOptions{
		Insecure:     cfg.Tracing.Insecure,
		SamplingRate: cfg.Tracing.SamplingRate,
		Version:      version,
	}
	if cfg.Tracing.Enabled {
		tracing.Endpoint = cfg.Tracing.Endpoint
	}
	stopTracing, err := observability.InitTracing(ctx, tracing)
	if err != nil {
		return err
	}
	shutdown.Register(server.TracingShutdownHook(stopTracing))

	audit, err := observability.NewAuditLogger(observability.AuditConfig{
		Enabled:    cfg.Audit.Enabled,
		OutputPath: cfg.Audit.OutputPath,
	})
	if err != nil {
		return err
	}
	shutdown.Register(server.AuditLoggerShutdownHook(audit.Close))

	metrics := observability.NewMetrics()
	health := server.NewHealth(version)

	d, err := serveDiscoverer(cfg, logger, shutdown, health, embeddedWorker)
	if err != nil {
		return err
	}

	snapshots, err := snapshot.NewStore(cfg.Snapshot.Dir, cfg.Snapshot.HistoryLimit)
	if err != nil {
		return err
	}
	opts := orchestrator.Options{
		HistoryLimit: cfg.Snapshot.HistoryLimit,
		Snapshots:    snapshots,
		ProjectID:    cfg.Graph.ProjectID,
		Metrics:      metrics,
		Audit:        audit,
		Logger:       logger,
	}
	repo, err := openRepository(ctx, cfg)
	if err != nil {
		logger.Warn("graph database unavailable, not publishing", "error", err)
	} else if repo != nil {
		opts.Repository = repo
		health.RegisterCheck("neo4j", server.OptionalChecker("Neo4j", repo.Ping))
		shutdown.Register(server.DatabaseShutdownHook(repo.Close))
	}

	orch := orchestrator.New(d, opts)
	store := state.New(algorithm)
	detach := orch.Attach(ctx, store)
	shutdown.Register(server.OrchestratorShutdownHook(func() {
		detach()
		orch.Close()
	}))

	if dataPath != "" {
		if err := loadSession(store, dataPath, projectPath, columns); err != nil {
			return err
		}
	}

	srv := server.New(server.Options{
		Orchestrator:        orch,
		Store:               store,
		Health:              health,
		Metrics:             metrics,
		Audit:               audit,
		Logger:              logger,
		AllowOrigins:        cfg.Server.AllowOrigins,
		WeightThreshold:     cfg.Thresholds.Weight,
		ConfidenceThreshold: cfg.Thresholds.Confidence,

		CorrelationSampleSize: cfg.Discovery.CorrelationSampleSize,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	shutdown.Register(server.HTTPServerShutdownHook("http-server", httpServer.Shutdown))
	// Event streams never end on their own, so they close before the HTTP
	// server drains.
	shutdown.RegisterHook("event-stream", server.PriorityEventStream, func(ctx context.Context) error {
		srv.Close()
		return nil
	})

	shutdown.Start()
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "algorithm", algorithm, "transport", cfg.Discovery.Transport)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			shutdown.Shutdown()
		}
	}()
	health.SetReady(true)

	<-shutdown.ShutdownCh()
	health.SetReady(false)
	shutdown.Wait()
	logger.Info("server stopped")
	return shutdown.Err()
}

// serveDiscoverer builds the transport for a long-running session and
// registers its health check and shutdown hooks.
func serveDiscoverer(cfg *config.Config, logger *slog.Logger, shutdown *server.ShutdownHandler, health *server.Health, embeddedWorker bool) (discovery.Discoverer, error) {
	httpDiscoverer := newHTTPDiscoverer(cfg, logger)
	health.RegisterCheck("discovery", server.DiscoveryChecker(&http.Client{Timeout: cfg.Discovery.Timeout}, cfg.Discovery.BaseURL))

	if cfg.Discovery.Transport != config.TransportTemporal {
		return httpDiscoverer, nil
	}

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("temporal client: %w", err)
	}
	shutdown.RegisterHook("temporal-client", server.PriorityTemporalClient, func(ctx context.Context) error {
		c.Close()
		return nil
	})
	health.RegisterCheck("temporal", server.ConnectivityChecker("Temporal", func(ctx context.Context) error {
		_, err := c.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
		return err
	}))

	if embeddedWorker {
		temporal.SetDependencies(&temporal.Dependencies{Discoverer: httpDiscoverer})
		w, err := temporal.StartWorker(c, cfg.Temporal.TaskQueue, cfg.Temporal.MaxConcurrentRuns)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("worker: %w", err)
		}
		shutdown.Register(server.TemporalWorkerShutdownHook(w.Stop))
		logger.Info("embedded worker started", "task_queue", cfg.Temporal.TaskQueue)
	}
	return temporal.NewDiscoverer(c, cfg.Temporal.TaskQueue), nil
}

// loadSession seeds the store with a dataset and, when present, the columns
// and constraints saved in a project.
func loadSession(store *state.Store, dataPath, projectPath, columns string) error {
	dataset, vars, err := loadDataset(dataPath)
	if err != nil {
		return err
	}
	project, err := readProject(projectPath)
	if err != nil {
		return err
	}
	inModel, err := selectInModel(vars, splitColumns(columns), project)
	if err != nil {
		return err
	}
	var userConstraints causal.Constraints
	if project != nil {
		userConstraints = project.Constraints
	}
	store.Batch(func(d *state.Draft) {
		d.Dataset = dataset
		d.Variables = vars
		d.InModel = inModel
		d.Constraints = userConstraints
	})
	return nil
}
