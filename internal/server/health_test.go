package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func healthRouter(h *Health) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.Register(r)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(rr, req)
	return rr
}

func TestHealth_NoChecks(t *testing.T) {
	rr := get(healthRouter(NewHealth("1.0.0")), "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != HealthStatusHealthy || resp.Version != "1.0.0" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestHealth_StatusFolding(t *testing.T) {
	failing := func(context.Context) error { return errors.New("refused") }
	passing := func(context.Context) error { return nil }

	tests := []struct {
		name   string
		checks map[string]HealthChecker
		want   HealthStatus
		code   int
	}{
		{"healthy", map[string]HealthChecker{"a": ConnectivityChecker("A", passing)}, HealthStatusHealthy, http.StatusOK},
		{"degraded", map[string]HealthChecker{"a": ConnectivityChecker("A", passing), "b": OptionalChecker("B", failing)}, HealthStatusDegraded, http.StatusOK},
		{"unhealthy", map[string]HealthChecker{"a": ConnectivityChecker("A", failing), "b": OptionalChecker("B", failing)}, HealthStatusUnhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealth("")
			for name, c := range tt.checks {
				h.RegisterCheck(name, c)
			}
			rr := get(healthRouter(h), "/healthz")
			if rr.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rr.Code)
			}
			var resp HealthResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.want {
				t.Fatalf("status = %s, want %s", resp.Status, tt.want)
			}
			if len(resp.Checks) != len(tt.checks) {
				t.Fatalf("got %d checks, want %d", len(resp.Checks), len(tt.checks))
			}
		})
	}
}

func TestHealth_Readiness(t *testing.T) {
	h := NewHealth("")
	r := healthRouter(h)
	if rr := get(r, "/readyz"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", rr.Code)
	}
	h.SetReady(true)
	if rr := get(r, "/readyz"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 when ready, got %d", rr.Code)
	}
	if rr := get(r, "/livez"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from livez, got %d", rr.Code)
	}
}

func TestDiscoveryChecker(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	if got := DiscoveryChecker(up.Client(), up.URL)(context.Background()); got.Status != HealthStatusHealthy {
		t.Fatalf("expected healthy, got %+v", got)
	}
	if got := DiscoveryChecker(down.Client(), down.URL)(context.Background()); got.Status != HealthStatusUnhealthy {
		t.Fatalf("expected unhealthy, got %+v", got)
	}
}
