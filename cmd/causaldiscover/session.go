package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/config"
	"github.com/efebarandurmaz/causaldiscover/internal/discovery"
	"github.com/efebarandurmaz/causaldiscover/internal/graph/neo4j"
	"github.com/efebarandurmaz/causaldiscover/internal/logging"
	"github.com/efebarandurmaz/causaldiscover/internal/snapshot"
	"github.com/efebarandurmaz/causaldiscover/internal/temporal"
)

func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// loadDataset reads a CSV file into a dataset named after the file and
// derives one variable per column.
func loadDataset(path string) (discovery.Dataset, []causal.CausalVariable, error) {
	f, err := os.Open(path)
	if err != nil {
		return discovery.Dataset{}, nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	table, err := discovery.ReadCSV(f)
	if err != nil {
		return discovery.Dataset{}, nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return discovery.Dataset{Name: name, Table: table}, variablesFor(table), nil
}

// variablesFor infers a nature for every column from its values.
func variablesFor(t discovery.Table) []causal.CausalVariable {
	columns := t.ColumnNames()
	vars := make([]causal.CausalVariable, 0, len(columns))
	for _, col := range columns {
		values, _ := t.Column(col)
		vars = append(vars, causal.CausalVariable{
			ColumnName: col,
			Name:       col,
			Nature:     natureOf(values),
		})
	}
	return vars
}

func natureOf(values []any) causal.VariableNature {
	nature := causal.VariableNature("")
	for _, v := range values {
		var n causal.VariableNature
		switch x := v.(type) {
		case nil:
			continue
		case bool:
			n = causal.NatureBinary
		case float64:
			n = causal.NatureDiscrete
			if x != math.Trunc(x) {
				n = causal.NatureContinuous
			}
		default:
			return causal.NatureCategoricalNominal
		}
		switch {
		case nature == "" || nature == n:
			nature = n
		case nature == causal.NatureBinary || n == causal.NatureBinary:
			return causal.NatureCategoricalNominal
		default:
			nature = causal.NatureContinuous
		}
	}
	if nature == "" {
		return causal.NatureExcluded
	}
	return nature
}

// selectInModel picks the explicit columns, then the project's saved
// columns, then every numeric or boolean column.
func selectInModel(vars []causal.CausalVariable, explicit []string, project *snapshot.Project) ([]string, error) {
	if len(explicit) > 0 {
		for _, col := range explicit {
			if _, ok := causal.FindVariable(vars, col); !ok {
				return nil, fmt.Errorf("unknown column %q", col)
			}
		}
		return explicit, nil
	}
	if project != nil && len(project.InModelColumnNames) > 0 {
		var cols []string
		for _, col := range project.InModelColumnNames {
			if _, ok := causal.FindVariable(vars, col); ok {
				cols = append(cols, col)
			}
		}
		return cols, nil
	}
	var cols []string
	for _, v := range vars {
		switch v.Nature {
		case causal.NatureContinuous, causal.NatureDiscrete, causal.NatureBinary:
			cols = append(cols, v.ColumnName)
		}
	}
	return cols, nil
}

func inModelVariables(vars []causal.CausalVariable, columns []string) []causal.CausalVariable {
	out := []causal.CausalVariable{}
	for _, v := range vars {
		if slices.Contains(columns, v.ColumnName) {
			out = append(out, v)
		}
	}
	return out
}

func resolveAlgorithm(cfg *config.Config, override string) (causal.Algorithm, error) {
	name := override
	if name == "" {
		name = cfg.Discovery.Algorithm
	}
	return causal.ParseAlgorithm(name)
}

// readProject returns nil without error when path is empty or missing.
func readProject(path string) (*snapshot.Project, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	return snapshot.UnmarshalProject(data)
}

func writeProject(path string, p *snapshot.Project) error {
	data, err := snapshot.MarshalProject(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write project: %w", err)
	}
	return nil
}

// newDiscoverer builds the configured transport. The returned close
// function releases the Temporal client, if any.
func newDiscoverer(cfg *config.Config, logger *slog.Logger) (discovery.Discoverer, func(), error) {
	if cfg.Discovery.Transport == config.TransportTemporal {
		c, err := temporalclient.Dial(temporalclient.Options{
			HostPort:  cfg.Temporal.Host,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("temporal client: %w", err)
		}
		logger.Info("discovery runs through temporal", "host", cfg.Temporal.Host, "task_queue", cfg.Temporal.TaskQueue)
		return temporal.NewDiscoverer(c, cfg.Temporal.TaskQueue), c.Close, nil
	}
	return newHTTPDiscoverer(cfg, logger), func() {}, nil
}

func newHTTPDiscoverer(cfg *config.Config, logger *slog.Logger) *discovery.HTTPClient {
	return discovery.NewHTTPClient(cfg.Discovery.BaseURL,
		discovery.WithHTTPClient(&http.Client{Timeout: cfg.Discovery.Timeout}),
		discovery.WithPollInterval(cfg.Discovery.PollInterval),
		discovery.WithStartRetries(cfg.Discovery.StartRetries),
		discovery.WithDeciOptions(cfg.Discovery.DeciOptions),
		discovery.WithProgress(func(progress float64, taskID string) {
			logger.Debug("discovery progress", "task_id", taskID, "progress", progress)
		}),
	)
}

// openRepository connects to Neo4j when a URI is configured. A nil
// repository disables publishing.
func openRepository(ctx context.Context, cfg *config.Config) (*neo4j.Neo4jRepository, error) {
	if cfg.Graph.URI == "" {
		return nil, nil
	}
	return neo4j.NewNeo4j(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
}
