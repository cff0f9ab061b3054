package pipeline

import "github.com/flowmesh/relay/pkg/event"

// State is a Pipeline's lifecycle position (§4.3).
type State int

const (
	StatePooled State = iota
	StateRunning
	StateDraining
)

func (s State) String() string {
	switch s {
	case StatePooled:
		return "pooled"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Pipeline is a live instantiation of a PipelineLayout: an ordered sequence
// of Filter instances, a Context, and an Output sink chained from the last
// filter (§3).
type Pipeline struct {
	layout  *PipelineLayout
	ctx     *Context
	filters []Filter
	output  Output
	state   State

	endSpan func()
}

// newPipeline constructs (but does not yet bind) a fresh Pipeline by
// cloning the layout's filter prototypes and chaining each one's downstream
// to the next — or, for the last filter, to the pipeline's own tail node
// (§4.3 step 1).
func newPipeline(layout *PipelineLayout) *Pipeline {
	p := &Pipeline{layout: layout, state: StatePooled}
	p.filters = make([]Filter, len(layout.prototypes))
	for i, proto := range layout.prototypes {
		p.filters[i] = proto.Clone()
	}
	p.relink()
	for _, f := range p.filters {
		f.Chain()
	}
	return p
}

// relink rewires each filter's downstream edge. Safe to call again after a
// Reset, since bindBase only stores references, not per-invocation state.
func (p *Pipeline) relink() {
	for i, f := range p.filters {
		var downstream Input
		if i+1 < len(p.filters) {
			downstream = p.filters[i+1]
		} else {
			downstream = tailInput{p: p}
		}
		if binder, ok := f.(baseBinder); ok {
			binder.bindBase(p, downstream)
		}
	}
}

// tailInput is the pipeline-owned forwarding node the last filter's output
// is linked to; it observes StreamEnd to drive the draining→quiescent
// transition before forwarding to the caller-supplied sink.
type tailInput struct{ p *Pipeline }

func (t tailInput) Process(evt event.Event) {
	if _, ok := evt.(*event.StreamEnd); ok {
		t.p.state = StateDraining
	}
	t.p.output.Process(evt)
}

// Layout returns the owning PipelineLayout.
func (p *Pipeline) Layout() *PipelineLayout { return p.layout }

// Context returns the bound scripting/environment handle.
func (p *Pipeline) Context() *Context { return p.ctx }

// State returns the current lifecycle state.
func (p *Pipeline) State() State { return p.state }

// SetOutput retargets the pipeline's final sink.
func (p *Pipeline) SetOutput(sink Input) { p.output.Bind(sink) }

// bind attaches ctx and sink and transitions the Pipeline to running
// (§4.3 step 2).
func (p *Pipeline) bind(ctx *Context, sink Input) {
	p.ctx = ctx
	p.output.Bind(sink)
	p.state = StateRunning
}

// dispatch routes a downstream write through the owning Context's
// thread-affine InputContext.
func (p *Pipeline) dispatch(in Input, evt event.Event) {
	ic := p.ic()
	if ic == nil {
		in.Process(evt)
		return
	}
	ic.Dispatch(in, evt)
}

func (p *Pipeline) ic() *InputContext {
	if p.ctx == nil {
		return nil
	}
	return p.ctx.InputContext()
}

// Process is the Pipeline's own entry point — what an upstream producer or
// parent filter writes into. It dispatches into the first filter (or
// straight to the tail, for an empty chain), marking draining when it
// observes a StreamEnd at the head (§4.3 "receiving StreamEnd at head").
func (p *Pipeline) Process(evt event.Event) {
	if _, ok := evt.(*event.StreamEnd); ok {
		p.state = StateDraining
	}
	var head Input
	if len(p.filters) > 0 {
		head = p.filters[0]
	} else {
		head = tailInput{p: p}
	}
	p.dispatch(head, evt)
}

// shutdown marks the Pipeline draining and propagates a graceful StreamEnd
// through its head (§4.3 "shutdown()").
func (p *Pipeline) shutdown() {
	if p.state == StatePooled {
		return
	}
	p.state = StateDraining
	p.Process(event.NewStreamEnd(event.ErrorNone))
}

// resetFilters drives Reset on every filter in reverse order, then
// relinks them (reset must not drop the chain) and unbinds the output and
// context, returning the Pipeline to a blank slate (§4.3 "free" step 1-2).
func (p *Pipeline) resetFilters() {
	for i := len(p.filters) - 1; i >= 0; i-- {
		p.filters[i].Reset()
	}
	p.relink()
	p.output.Bind(nil)
	p.ctx = nil
	p.state = StatePooled
}

// subPipelineWithContext instantiates the layout's child at index,
// connecting its output to sink (§4.4). When recycleOnEnd is true, the
// child Pipeline is returned to its layout's pool automatically the
// instant a StreamEnd reaches sink, via recycleSink; the caller never
// calls Layout().Free() on it itself. A nil ctx means "inherit the
// parent's Context"; passing a detached Context (Context.Detach) isolates
// the child's scripting state from its siblings.
func (p *Pipeline) subPipelineWithContext(index int, recycleOnEnd bool, sink Input, ctx *Context) (*Pipeline, error) {
	childLayout, err := p.layout.Child(index)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = p.ctx
	}

	if !recycleOnEnd {
		return childLayout.Alloc(ctx, sink)
	}

	wrapper := &recycleSink{sink: sink}
	child, err := childLayout.Alloc(ctx, wrapper)
	if err != nil {
		return nil, err
	}
	wrapper.layout = childLayout
	wrapper.pipeline = child
	return child, nil
}

// recycleSink forwards every event to the real sink and, once it sees the
// wrapped sub-pipeline's StreamEnd, frees that pipeline back to its
// layout's pool — the recycle_on_end half of sub_pipeline (§4.4).
type recycleSink struct {
	sink     Input
	layout   *PipelineLayout
	pipeline *Pipeline
}

func (r *recycleSink) Process(evt event.Event) {
	r.sink.Process(evt)
	if _, ok := evt.(*event.StreamEnd); ok {
		r.layout.Free(r.pipeline)
	}
}
