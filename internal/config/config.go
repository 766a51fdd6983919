package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Discovery transports.
const (
	TransportHTTP     = "http"
	TransportTemporal = "temporal"
)

// Config holds all application configuration.
type Config struct {
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Graph      GraphConfig      `mapstructure:"graph"`
	Temporal   TemporalConfig   `mapstructure:"temporal"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
	Log        LogConfig        `mapstructure:"log"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Server     ServerConfig     `mapstructure:"server"`
	Audit      AuditConfig      `mapstructure:"audit"`
}

type DiscoveryConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Algorithm    string        `mapstructure:"algorithm"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	StartRetries uint          `mapstructure:"start_retries"`
	Timeout      time.Duration `mapstructure:"timeout"`
	// Transport is "http" to call the service directly or "temporal" to go
	// through a worker.
	Transport string `mapstructure:"transport"`
	// DeciOptions is sent as-is with DECI runs, e.g. model_options and
	// ate_options.
	DeciOptions map[string]any `mapstructure:"deci_options"`
	// CorrelationSampleSize caps the rows sampled per column pair.
	CorrelationSampleSize int `mapstructure:"correlation_sample_size"`
}

// ThresholdsConfig sets the default filters for graph queries and diffs.
type ThresholdsConfig struct {
	Weight     float64 `mapstructure:"weight"`
	Confidence float64 `mapstructure:"confidence"`
}

// GraphConfig points at the Neo4j instance graphs are published to. An
// empty URI disables publishing.
type GraphConfig struct {
	URI       string `mapstructure:"uri"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	ProjectID string `mapstructure:"project_id"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
	// MaxConcurrentRuns bounds discovery activities per worker.
	MaxConcurrentRuns int `mapstructure:"max_concurrent_runs"`
}

type SnapshotConfig struct {
	Dir          string `mapstructure:"dir"`
	HistoryLimit int    `mapstructure:"history_limit"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Endpoint     string  `mapstructure:"endpoint"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// Browser origins allowed to call the API. Empty disables CORS.
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	OutputPath string `mapstructure:"output_path"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("discovery.base_url", "http://localhost:8000/")
	v.SetDefault("discovery.algorithm", "NOTEARS")
	v.SetDefault("discovery.poll_interval", time.Second)
	v.SetDefault("discovery.start_retries", 3)
	v.SetDefault("discovery.timeout", 10*time.Second)
	v.SetDefault("discovery.transport", TransportHTTP)
	v.SetDefault("discovery.correlation_sample_size", 10000)
	v.SetDefault("thresholds.weight", 0.0)
	v.SetDefault("thresholds.confidence", 0.0)
	v.SetDefault("graph.project_id", "default")
	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "causal-discovery")
	v.SetDefault("temporal.max_concurrent_runs", 4)
	v.SetDefault("snapshot.dir", ".causaldiscover")
	v.SetDefault("snapshot.history_limit", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tracing.sampling_rate", 1.0)
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	switch c.Discovery.Transport {
	case "", TransportHTTP, TransportTemporal:
	default:
		warnings = append(warnings, fmt.Sprintf("discovery transport '%s' is unknown, using http", c.Discovery.Transport))
	}

	if c.Discovery.Transport == TransportTemporal && c.Temporal.Host == "" {
		warnings = append(warnings, "discovery transport is temporal but temporal.host is empty")
	}

	if c.Thresholds.Weight < 0 {
		warnings = append(warnings, fmt.Sprintf("weight threshold %.2f is negative and filters nothing", c.Thresholds.Weight))
	}
	if c.Thresholds.Confidence < 0 || c.Thresholds.Confidence > 1 {
		warnings = append(warnings, fmt.Sprintf("confidence threshold %.2f is outside [0.0, 1.0]", c.Thresholds.Confidence))
	}

	if c.Graph.URI != "" && c.Graph.Password == "" {
		warnings = append(warnings, fmt.Sprintf("graph uri '%s' is configured but password is empty", c.Graph.URI))
	}

	if c.Snapshot.HistoryLimit < 0 {
		warnings = append(warnings, fmt.Sprintf("snapshot history_limit %d is negative", c.Snapshot.HistoryLimit))
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sampling_rate %.2f is outside [0.0, 1.0]", c.Tracing.SamplingRate))
	}

	return warnings
}

// Load reads configuration from file and environment. An empty path, or a
// missing file at the default path, leaves defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("CAUSALDISCOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
			if path != DefaultPath {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

// DefaultPath is the config file used when none is given.
const DefaultPath = "configs/causaldiscover.yaml"
