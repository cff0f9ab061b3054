package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/flowmesh/relay/pkg/pipeline"
)

// LayoutSpanHook adapts a Provider to pipeline.SpanHook, so a
// PipelineLayout's Alloc/Free pairs show up as spans without pkg/pipeline
// importing OpenTelemetry.
type LayoutSpanHook struct {
	provider *Provider
}

var _ pipeline.SpanHook = (*LayoutSpanHook)(nil)

// NewLayoutSpanHook wraps provider for installation via
// PipelineLayout.SetSpanHook.
func NewLayoutSpanHook(provider *Provider) *LayoutSpanHook {
	return &LayoutSpanHook{provider: provider}
}

// StartAllocSpan opens a span covering one Pipeline's lifetime, from Alloc
// through the matching Free.
func (h *LayoutSpanHook) StartAllocSpan(layout string) func() {
	_, span := h.provider.Tracer().Start(context.Background(), "pipeline.lifetime",
		trace.WithAttributes(SpanAttributes(layout)...))
	return func() { span.End() }
}
