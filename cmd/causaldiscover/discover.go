package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/constraints"
	"github.com/efebarandurmaz/causaldiscover/internal/discovery"
	"github.com/efebarandurmaz/causaldiscover/internal/metrics"
	"github.com/efebarandurmaz/causaldiscover/internal/orchestrator"
	"github.com/efebarandurmaz/causaldiscover/internal/snapshot"
	"github.com/efebarandurmaz/causaldiscover/internal/state"
)

func runDiscover(configPath, dataPath, projectPath, columns, algorithmName string, jsonReport bool) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	algorithm, err := resolveAlgorithm(cfg, algorithmName)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataset, vars, err := loadDataset(dataPath)
	if err != nil {
		return err
	}
	project, err := readProject(projectPath)
	if err != nil {
		return err
	}
	inModelColumns, err := selectInModel(vars, splitColumns(columns), project)
	if err != nil {
		return err
	}
	var userConstraints causal.Constraints
	if project != nil {
		userConstraints = project.Constraints
	}

	d, closeDiscoverer, err := newDiscoverer(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDiscoverer()

	snapshots, err := snapshot.NewStore(cfg.Snapshot.Dir, cfg.Snapshot.HistoryLimit)
	if err != nil {
		return err
	}
	opts := orchestrator.Options{
		HistoryLimit: cfg.Snapshot.HistoryLimit,
		Snapshots:    snapshots,
		ProjectID:    cfg.Graph.ProjectID,
		Logger:       logger,
	}
	repo, err := openRepository(ctx, cfg)
	if err != nil {
		logger.Warn("graph database unavailable, not publishing", "error", err)
	} else if repo != nil {
		defer repo.Close(context.Background())
		opts.Repository = repo
	}

	orch := orchestrator.New(d, opts)
	go func() {
		<-ctx.Done()
		orch.Close()
	}()

	m := metrics.New(cfg.Thresholds.Weight, cfg.Thresholds.Confidence)
	in := state.Inputs{
		Dataset:     dataset,
		InModel:     inModelVariables(vars, inModelColumns),
		Constraints: userConstraints,
		Algorithm:   algorithm,
	}
	m.CollectDataset(dataset, in.InModel, userConstraints)

	fmt.Fprintf(os.Stderr, "Running %s on %s (%d variables)\n", algorithm, dataset.Name, len(in.InModel))
	start := time.Now()
	orch.Trigger(ctx, in)
	orch.Wait()

	status := orch.Status()
	var runErr error
	switch status.Phase {
	case orchestrator.PhaseFailed:
		runErr = errors.New(status.Error)
	case orchestrator.PhaseCanceled, orchestrator.PhaseSuperseded:
		runErr = errors.New("discovery was interrupted")
	}
	m.AddRun(algorithm, time.Since(start), orch.Current(), nil, runErr)
	m.Finish()

	if runErr == nil {
		err := writeProject(projectPath, &snapshot.Project{
			InModelColumnNames: inModelColumns,
			Constraints:        userConstraints,
			Results:            snapshot.Results{Graph: orch.Current(), Model: orch.Model()},
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Project written to %s\n", projectPath)
	}

	if err := printMetrics(m, jsonReport); err != nil {
		return err
	}
	return runErr
}

type comparison struct {
	algorithm causal.Algorithm
	result    *discovery.Result
	duration  time.Duration
	err       error
}

// runCompare runs every algorithm concurrently on the same inputs. Runs do
// not go through the orchestrator, so none of them is superseded.
func runCompare(configPath, dataPath, projectPath, columns string, algorithmNames []string, jsonReport bool) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if len(algorithmNames) == 0 {
		return errors.New("no algorithms given")
	}
	algorithms := make([]causal.Algorithm, len(algorithmNames))
	for i, name := range algorithmNames {
		if algorithms[i], err = causal.ParseAlgorithm(name); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataset, vars, err := loadDataset(dataPath)
	if err != nil {
		return err
	}
	project, err := readProject(projectPath)
	if err != nil {
		return err
	}
	inModelColumns, err := selectInModel(vars, splitColumns(columns), project)
	if err != nil {
		return err
	}
	inModel := inModelVariables(vars, inModelColumns)
	if len(inModel) < 2 {
		return fmt.Errorf("at least two columns are needed, got %d", len(inModel))
	}
	var userConstraints causal.Constraints
	if project != nil {
		userConstraints = project.Constraints
	}
	effective := constraints.Effective(userConstraints, inModel)

	d, closeDiscoverer, err := newDiscoverer(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDiscoverer()

	m := metrics.New(cfg.Thresholds.Weight, cfg.Thresholds.Confidence)
	m.CollectDataset(dataset, inModel, userConstraints)

	results := make([]comparison, len(algorithms))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range algorithms {
		g.Go(func() error {
			start := time.Now()
			res, err := d.Discover(gctx, dataset, inModel, effective, a)
			if err == nil && (res == nil || res.Graph == nil) {
				err = errors.New("discovery returned no graph")
			}
			results[i] = comparison{algorithm: a, result: res, duration: time.Since(start), err: err}
			logger.Info("algorithm finished", "algorithm", a, "duration", results[i].duration, "error", err)
			// A failed algorithm is reported, the others keep running.
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("compare interrupted: %w", err)
	}

	baseline := results[0]
	for i, r := range results {
		var found *causal.CausalGraph
		if r.err == nil {
			found = r.result.Graph
		}
		var diff *snapshot.GraphDifferences
		if i > 0 && found != nil && baseline.err == nil {
			diff = snapshot.FindDifferencesBetweenGraphs(baseline.result.Graph, found, cfg.Thresholds.Weight, cfg.Thresholds.Confidence)
		}
		m.AddRun(r.algorithm, r.duration, found, diff, r.err)
	}
	m.Finish()
	return printMetrics(m, jsonReport)
}

func printMetrics(m *metrics.RunMetrics, jsonReport bool) error {
	if jsonReport {
		data, err := m.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	m.PrintSummary(os.Stdout)
	return nil
}
