// Package observability provides tracing, metrics and the audit trail for
// discovery runs and constraint edits.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of every span emitted here.
const TracerName = "github.com/efebarandurmaz/causaldiscover"

const serviceName = "causaldiscover"

// TracingOptions selects where spans are exported. An empty Endpoint leaves
// the global no-op provider in place.
type TracingOptions struct {
	Endpoint     string
	Insecure     bool
	SamplingRate float64
	Version      string
}

// InitTracing installs a global OTLP/gRPC tracer provider and returns the
// function that flushes and stops it.
func InitTracing(ctx context.Context, opts TracingOptions) (func(context.Context) error, error) {
	if opts.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(opts.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(opts.SamplingRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return provider.Shutdown, nil
}

// samplerFor honours the parent's decision and samples root spans at rate.
func samplerFor(rate float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case rate >= 1:
		root = sdktrace.AlwaysSample()
	case rate <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}

func tracer() trace.Tracer { return otel.Tracer(TracerName) }

// Span kinds.
const (
	SpanKindDiscovery      = "discovery"
	SpanKindConstraintEdit = "constraint_edit"
	SpanKindPublish        = "publish"
)

// StartDiscoverySpan starts a span for one discovery run.
func StartDiscoverySpan(ctx context.Context, generation uint64, algorithm string, variableCount int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "discovery."+algorithm,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("causaldiscover.span.kind", SpanKindDiscovery),
			attribute.Int64("discovery.generation", int64(generation)),
			attribute.String("discovery.algorithm", algorithm),
			attribute.Int("discovery.variable_count", variableCount),
		),
	)
}

// RecordDiscoveryResult records the outcome of a run on its span.
func RecordDiscoveryResult(span trace.Span, outcome string, relationshipCount int) {
	span.SetAttributes(
		attribute.String("discovery.outcome", outcome),
		attribute.Int("discovery.relationship_count", relationshipCount),
	)
}

// StartConstraintEditSpan starts a span for a user constraint edit.
func StartConstraintEditSpan(ctx context.Context, op, source, target string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "constraints."+op,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("causaldiscover.span.kind", SpanKindConstraintEdit),
			attribute.String("constraint.source", source),
			attribute.String("constraint.target", target),
		),
	)
}

// StartPublishSpan starts a span for writing a published graph to a sink.
func StartPublishSpan(ctx context.Context, sink string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "publish."+sink,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("causaldiscover.span.kind", SpanKindPublish)),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
