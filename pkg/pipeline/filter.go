package pipeline

import (
	"io"

	"github.com/flowmesh/relay/pkg/event"
)

// Filter is a stateful event transformer with one upstream input and one
// downstream output, cloned once per Pipeline instantiation (§4.4).
type Filter interface {
	// Clone returns a fresh prototype copy, used when a PipelineLayout
	// instantiates a new Pipeline. Clone must not share mutable
	// per-invocation state with the original.
	Clone() Filter

	// Chain runs after the layout has wired this filter's downstream
	// output, for any fix-up that needs the link in place (e.g. caching a
	// typed view of the next filter). The Context is not yet bound then.
	Chain()

	// Reset returns the filter to the blank state it had right after
	// Clone, so the owning Pipeline can be recycled.
	Reset()

	// Process is the filter's event sink.
	Process(evt event.Event)

	// Dump writes a diagnostic name/summary for graphing.
	Dump(out io.Writer)
}

// baseBinder is implemented by Base (and therefore promoted to any Filter
// that embeds it), letting PipelineLayout wire a cloned filter without
// needing Base's fields to be exported.
type baseBinder interface {
	bindBase(p *Pipeline, downstream Input)
}

// Base is embedded by concrete Filter implementations to get the plumbing
// every filter needs: a bound Pipeline, a downstream edge, and sub-pipeline
// spawning. Embedding Base satisfies baseBinder automatically via method
// promotion.
type Base struct {
	pipeline   *Pipeline
	downstream Input
}

func (b *Base) bindBase(p *Pipeline, downstream Input) {
	b.pipeline = p
	b.downstream = downstream
}

// Output writes evt to this filter's downstream edge, through the owning
// Pipeline's thread-affine InputContext so re-entrant chains stay bounded
// (§4.2).
func (b *Base) Output(evt event.Event) {
	if b.pipeline == nil {
		return
	}
	b.pipeline.dispatch(b.downstream, evt)
}

// Context returns the scripting/environment handle of the owning Pipeline.
func (b *Base) Context() *Context {
	if b.pipeline == nil {
		return nil
	}
	return b.pipeline.ctx
}

// SubPipeline instantiates the child layout referenced by index (resolved
// at bind time against the owning layout's child table), connecting its
// output to sink and returning the new Pipeline so the caller can write
// into its Input (§4.4).
func (b *Base) SubPipeline(index int, recycleOnEnd bool, sink Input) (*Pipeline, error) {
	if b.pipeline == nil {
		return nil, ErrUnboundLayout
	}
	return b.pipeline.subPipelineWithContext(index, recycleOnEnd, sink, nil)
}

// SubPipelineWithContext is SubPipeline with an explicit Context override,
// for filters that need each sub-pipeline detached from the parent's
// shared Context state (QueueDemuxer's isolate mode, §4.7).
func (b *Base) SubPipelineWithContext(index int, recycleOnEnd bool, sink Input, ctx *Context) (*Pipeline, error) {
	if b.pipeline == nil {
		return nil, ErrUnboundLayout
	}
	return b.pipeline.subPipelineWithContext(index, recycleOnEnd, sink, ctx)
}
