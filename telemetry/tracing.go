// Package telemetry wires the orchestration core's optional observability
// layer: distributed tracing via OpenTelemetry and metrics exposition via
// Prometheus. Both are reached through core.Telemetry/core.MetricsRegistry
// so the library packages never import this package (only
// cmd/orchestratord does), avoiding
// the import cycle the teacher's own telemetry/core split guards against.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/agentcore/orchestrator/core"
)

// Provider implements core.Telemetry: distributed tracing spans backed by
// an OpenTelemetry TracerProvider, metrics backed by a Prometheus
// registry.
type Provider struct {
	tracer   oteltrace.Tracer
	tp       *sdktrace.TracerProvider
	registry *PrometheusRegistry
}

// Init builds a Provider from cfg. The exporter is selected by
// cfg.Exporter: "stdout" (the default, useful for local development)
// prints spans to standard output; "otlp" sends them via OTLP/gRPC to
// cfg.OTLPEndpoint. Any other value is a configuration error.
func Init(cfg core.TelemetryConfig) (*Provider, error) {
	ctx := context.Background()

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.ServiceName),
	))
	if err != nil {
		return nil, core.NewFrameworkError("telemetry.Init", "Internal", err)
	}

	exporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(clampSamplingRate(cfg.SamplingRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	registry := NewPrometheusRegistry()
	core.SetMetricsRegistry(registry)

	return &Provider{
		tracer:   tp.Tracer("agentcore-orchestrator"),
		tp:       tp,
		registry: registry,
	}, nil
}

func clampSamplingRate(rate float64) float64 {
	if rate <= 0 {
		return 0
	}
	if rate >= 1 {
		return 1
	}
	return rate
}

func newSpanExporter(ctx context.Context, cfg core.TelemetryConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "", "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, core.NewFrameworkError("telemetry.Init", "Internal", err)
		}
		return exporter, nil
	case "otlp":
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, core.NewFrameworkError("telemetry.Init", "Internal",
				fmt.Errorf("creating OTLP/gRPC exporter for %s: %w", endpoint, err))
		}
		return exporter, nil
	default:
		return nil, core.NewFrameworkError("telemetry.Init", "ValidationError",
			fmt.Errorf("%w: unknown telemetry exporter %q", core.ErrInvalidConfiguration, cfg.Exporter))
	}
}

// Registry returns the underlying Prometheus registry, for wiring the
// /metrics HTTP handler.
func (p *Provider) Registry() *PrometheusRegistry {
	return p.registry
}

// StartSpan implements core.Telemetry.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric implements core.Telemetry by delegating to the Prometheus
// registry as a gauge, matching the teacher's practice of exposing a
// single RecordMetric entry point over several instrument kinds.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	pairs := make([]string, 0, len(labels)*2)
	for k, v := range labels {
		pairs = append(pairs, k, v)
	}
	p.registry.Gauge(name, value, pairs...)
}

// Shutdown flushes pending spans and releases exporter resources. Callers
// should invoke it once during graceful shutdown with a bounded context.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

type otelSpan struct {
	span oteltrace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	case time.Duration:
		s.span.SetAttributes(attribute.String(key, v.String()))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
}
