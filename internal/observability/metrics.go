package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes used as metric labels and span attributes.
const (
	OutcomePublished    = "published"
	OutcomeShortCircuit = "short_circuit"
	OutcomeSuperseded   = "superseded"
	OutcomeCanceled     = "canceled"
	OutcomeFailed       = "failed"
)

// Metrics holds the Prometheus collectors for discovery.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	runsInFlight    prometheus.Gauge
	relationships   prometheus.Gauge
	constraintEdits *prometheus.CounterVec
	publishErrors   *prometheus.CounterVec
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "causaldiscover_runs_total",
			Help: "Discovery runs by algorithm and outcome",
		}, []string{"algorithm", "outcome"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "causaldiscover_run_duration_seconds",
			Help:    "Discovery run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"algorithm"}),
		runsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "causaldiscover_runs_in_flight",
			Help: "Discovery runs awaiting a result",
		}),
		relationships: factory.NewGauge(prometheus.GaugeOpts{
			Name: "causaldiscover_published_relationships",
			Help: "Relationships in the current published graph",
		}),
		constraintEdits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "causaldiscover_constraint_edits_total",
			Help: "User constraint edits by operation",
		}, []string{"operation"}),
		publishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "causaldiscover_publish_errors_total",
			Help: "Failures writing published graphs to a sink",
		}, []string{"sink"}),
	}
}

// Registry exposes the underlying registry for scraping and tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RunStarted() {
	m.runsInFlight.Inc()
}

// RunFinished records a run that was started with RunStarted.
func (m *Metrics) RunFinished(algorithm, outcome string, d time.Duration) {
	m.runsInFlight.Dec()
	m.runsTotal.WithLabelValues(algorithm, outcome).Inc()
	m.runDuration.WithLabelValues(algorithm).Observe(d.Seconds())
}

// RunShortCircuited records a trigger that published without running.
func (m *Metrics) RunShortCircuited(algorithm string) {
	m.runsTotal.WithLabelValues(algorithm, OutcomeShortCircuit).Inc()
}

func (m *Metrics) SetRelationships(n int) {
	m.relationships.Set(float64(n))
}

func (m *Metrics) ConstraintEdited(op string) {
	m.constraintEdits.WithLabelValues(op).Inc()
}

func (m *Metrics) PublishFailed(sink string) {
	m.publishErrors.WithLabelValues(sink).Inc()
}
