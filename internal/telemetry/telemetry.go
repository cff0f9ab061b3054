// Package telemetry wires OpenTelemetry spans around PipelineLayout
// alloc/free. No spans are opened around Filter chains or demux/mux stream
// lifecycles.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowmesh/relay/internal/config"
)

// TracerName identifies this module's spans in exported traces.
const TracerName = "github.com/flowmesh/relay"

// Provider owns the process's TracerProvider and its shutdown hook. A
// Provider built from a disabled config still satisfies every call site —
// Tracer() returns otel's no-op tracer — so callers never need to branch on
// whether tracing is enabled.
type Provider struct {
	tp       trace.TracerProvider
	shutdown func(context.Context) error
}

// New builds a Provider from cfg.Tracing. An empty Endpoint disables
// export: the returned Provider wraps otel's default no-op TracerProvider
// rather than standing up an exporter nothing will ever flush.
func New(ctx context.Context, cfg config.TracingConfig) (*Provider, error) {
	if cfg.Endpoint == "" {
		return &Provider{tp: otel.GetTracerProvider(), shutdown: func(context.Context) error { return nil }}, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building OTLP exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "relay"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return &Provider{tp: tp, shutdown: tp.Shutdown}, nil
}

// Tracer returns the named tracer that LayoutSpanHook uses to open
// pipeline lifetime spans.
func (p *Provider) Tracer() trace.Tracer {
	return p.tp.Tracer(TracerName)
}

// Shutdown flushes any pending spans and releases the exporter. Safe to
// call on a no-op Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}

// SpanAttributes builds the common attribute set attached to pipeline
// lifecycle spans.
func SpanAttributes(layout string, extra ...attribute.KeyValue) []attribute.KeyValue {
	return append([]attribute.KeyValue{attribute.String("relay.layout", layout)}, extra...)
}
