package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracingNoEndpoint(t *testing.T) {
	stop, err := InitTracing(context.Background(), TracingOptions{SamplingRate: 1})
	require.NoError(t, err)
	assert.NoError(t, stop(context.Background()))
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1).Description(), "root:AlwaysOnSampler")
	assert.Contains(t, samplerFor(0).Description(), "root:AlwaysOffSampler")
	assert.Contains(t, samplerFor(0.25).Description(), "root:TraceIDRatioBased{0.25}")
	assert.True(t, strings.HasPrefix(samplerFor(0.25).Description(), "ParentBased"))
}

func TestDiscoverySpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartDiscoverySpan(context.Background(), 7, "PC", 3)
	RecordDiscoveryResult(span, OutcomePublished, 2)
	RecordError(span, errors.New("boom"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "discovery.PC", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, int64(7), attrs["discovery.generation"].AsInt64())
	assert.Equal(t, "published", attrs["discovery.outcome"].AsString())
	assert.Equal(t, int64(2), attrs["discovery.relationship_count"].AsInt64())
}

func TestRecordErrorNil(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	_, span := provider.Tracer(TracerName).Start(context.Background(), "x")
	RecordError(span, nil)
	span.End()
	assert.Equal(t, codes.Unset, recorder.Ended()[0].Status().Code)
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.RunStarted()
	m.RunStarted()
	m.RunFinished("PC", OutcomePublished, 2*time.Second)
	m.RunShortCircuited("None")
	m.ConstraintEdited("flip")
	m.ConstraintEdited("flip")
	m.SetRelationships(4)
	m.PublishFailed("neo4j")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("PC", OutcomePublished)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("None", OutcomeShortCircuit)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.constraintEdits.WithLabelValues("flip")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.relationships))
	assert.Equal(t, 1, testutil.CollectAndCount(m.runDuration))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "causaldiscover_publish_errors_total{sink=\"neo4j\"} 1")
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newAuditLogger(&buf, "s1", true)

	l.LogConstraintEdit("flip", "Age", "Spend")
	l.LogRunStart(3, "task-1", "PC", 3)
	l.LogRunEnd(3, "task-1", "PC", OutcomeFailed, time.Second, errors.New("boom"))
	l.LogRunEnd(4, "task-2", "PC", OutcomeSuperseded, time.Second, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)

	var events []AuditEvent
	for _, line := range lines {
		var e AuditEvent
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		events = append(events, e)
	}
	assert.Equal(t, AuditEventConstraintEdit, events[0].EventType)
	assert.Equal(t, "s1", events[0].SessionID)
	assert.Equal(t, AuditEventRunStart, events[1].EventType)
	assert.Equal(t, AuditEventRunFailed, events[2].EventType)
	assert.Equal(t, "boom", events[2].ErrorDetail)
	assert.Equal(t, AuditEventRunDiscarded, events[3].EventType)
}

func TestAuditLoggerDisabledAndNil(t *testing.T) {
	var buf bytes.Buffer
	newAuditLogger(&buf, "", false).LogConstraintEdit("pin", "A", "B")
	assert.Empty(t, buf.String())

	var l *AuditLogger
	assert.NoError(t, l.Log(&AuditEvent{}))
	assert.NoError(t, l.Close())
}
