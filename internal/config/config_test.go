package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidate_Empty(t *testing.T) {
	cfg := &Config{}
	warnings := cfg.Validate()
	if len(warnings) != 0 {
		t.Errorf("empty config should have no warnings, got %v", warnings)
	}
}

func TestValidate_Transport(t *testing.T) {
	tests := []struct {
		name      string
		transport string
		host      string
		want      string
	}{
		{"http", TransportHTTP, "", ""},
		{"temporal", TransportTemporal, "localhost:7233", ""},
		{"temporal_without_host", TransportTemporal, "", "temporal.host"},
		{"unknown", "grpc", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Discovery: DiscoveryConfig{Transport: tt.transport},
				Temporal:  TemporalConfig{Host: tt.host},
			}
			warnings := cfg.Validate()
			if tt.want == "" {
				if len(warnings) != 0 {
					t.Errorf("unexpected warnings %v", warnings)
				}
				return
			}
			if !containsWarning(warnings, tt.want) {
				t.Errorf("expected warning containing %q, got %v", tt.want, warnings)
			}
		})
	}
}

func TestValidate_Thresholds(t *testing.T) {
	tests := []struct {
		name       string
		weight     float64
		confidence float64
		want       bool // true = should warn
	}{
		{"zero", 0, 0, false},
		{"normal", 0.3, 0.8, false},
		{"negative_weight", -0.1, 0, true},
		{"confidence_above_one", 0, 1.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Thresholds: ThresholdsConfig{Weight: tt.weight, Confidence: tt.confidence}}
			hasWarn := containsWarning(cfg.Validate(), "threshold")
			if hasWarn != tt.want {
				t.Errorf("weight=%.1f confidence=%.1f: hasWarn=%v, want=%v", tt.weight, tt.confidence, hasWarn, tt.want)
			}
		})
	}
}

func TestValidate_GraphPassword(t *testing.T) {
	cfg := &Config{Graph: GraphConfig{URI: "bolt://localhost:7687"}}
	if !containsWarning(cfg.Validate(), "password") {
		t.Error("expected warning about missing password")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discovery.PollInterval != time.Second {
		t.Errorf("poll_interval = %v, want 1s", cfg.Discovery.PollInterval)
	}
	if cfg.Discovery.StartRetries != 3 {
		t.Errorf("start_retries = %d, want 3", cfg.Discovery.StartRetries)
	}
	if cfg.Discovery.Transport != TransportHTTP {
		t.Errorf("transport = %q, want http", cfg.Discovery.Transport)
	}
	if cfg.Snapshot.HistoryLimit != 10 {
		t.Errorf("history_limit = %d, want 10", cfg.Snapshot.HistoryLimit)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
	if cfg.Temporal.MaxConcurrentRuns != 4 {
		t.Errorf("max_concurrent_runs = %d, want 4", cfg.Temporal.MaxConcurrentRuns)
	}
	if cfg.Discovery.CorrelationSampleSize != 10000 {
		t.Errorf("correlation_sample_size = %d, want 10000", cfg.Discovery.CorrelationSampleSize)
	}
	if len(cfg.Server.AllowOrigins) != 0 {
		t.Errorf("allow_origins = %v, want none", cfg.Server.AllowOrigins)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "causaldiscover.yaml")
	content := []byte(`discovery:
  base_url: http://discovery:8000/
  poll_interval: 250ms
  algorithm: PC
  deci_options:
    model_options:
      max_epochs: 50
thresholds:
  weight: 0.2
snapshot:
  history_limit: 3
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CAUSALDISCOVER_THRESHOLDS_CONFIDENCE", "0.7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discovery.BaseURL != "http://discovery:8000/" {
		t.Errorf("base_url = %q", cfg.Discovery.BaseURL)
	}
	if cfg.Discovery.PollInterval != 250*time.Millisecond {
		t.Errorf("poll_interval = %v", cfg.Discovery.PollInterval)
	}
	if cfg.Discovery.Algorithm != "PC" {
		t.Errorf("algorithm = %q", cfg.Discovery.Algorithm)
	}
	model, ok := cfg.Discovery.DeciOptions["model_options"].(map[string]any)
	if !ok || model["max_epochs"] != 50 {
		t.Errorf("deci_options = %v", cfg.Discovery.DeciOptions)
	}
	if cfg.Thresholds.Weight != 0.2 || cfg.Thresholds.Confidence != 0.7 {
		t.Errorf("thresholds = %+v", cfg.Thresholds)
	}
	if cfg.Snapshot.HistoryLimit != 3 {
		t.Errorf("history_limit = %d", cfg.Snapshot.HistoryLimit)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}
