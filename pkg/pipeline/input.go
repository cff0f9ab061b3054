package pipeline

import "github.com/flowmesh/relay/pkg/event"

// Input is a one-way port that accepts events.
type Input interface {
	Process(evt event.Event)
}

// InputFunc adapts a plain function to the Input interface.
type InputFunc func(evt event.Event)

// Process implements Input.
func (f InputFunc) Process(evt event.Event) { f(evt) }

// Output is an Input that can be re-targeted after construction. A filter's
// downstream edge, and a Pipeline's final sink, are both Outputs.
type Output struct {
	target Input
}

// Bind retargets the Output to deliver to in. Passing nil makes the Output
// drop events silently (used while a Pipeline sits in the free pool).
func (o *Output) Bind(in Input) { o.target = in }

// Process implements Input — it forwards directly to the bound target with
// no re-entrancy bookkeeping of its own; callers that need the §4.2 guard
// go through an InputContext.Dispatch instead of calling Process directly.
func (o *Output) Process(evt event.Event) {
	if o.target != nil {
		o.target.Process(evt)
	}
}

// pendingDispatch is one deferred (Input, Event) pair awaiting FIFO replay.
type pendingDispatch struct {
	in  Input
	evt event.Event
}

// MaxInlineDepth bounds synchronous re-entrant dispatch depth before further
// calls are deferred to the flush queue (§4.2).
const MaxInlineDepth = 8

// InputContext implements the re-entrancy guard described in §4.2 and
// Design Note "Re-entrant event dispatch": a single depth counter plus a
// FIFO deferred queue, scoped to one thread (one WorkerThread/Net). It must
// never be shared across goroutines.
type InputContext struct {
	depth int
	queue []pendingDispatch
}

// NewInputContext creates an empty InputContext.
func NewInputContext() *InputContext {
	return &InputContext{}
}

// Dispatch delivers evt to in. If the current re-entrancy depth is within
// MaxInlineDepth, delivery happens synchronously (bounding the call stack
// only up to the threshold); deeper re-entrant calls are instead queued and
// replayed in FIFO order once the outermost call returns.
func (ic *InputContext) Dispatch(in Input, evt event.Event) {
	if in == nil {
		return
	}
	if ic.depth >= MaxInlineDepth {
		ic.queue = append(ic.queue, pendingDispatch{in: in, evt: evt})
		return
	}
	ic.depth++
	in.Process(evt)
	ic.depth--
	if ic.depth == 0 {
		ic.drain()
	}
}

// drain replays queued dispatches in FIFO order. Replayed dispatches are
// themselves subject to the same depth rule, so a flood of deferred events
// cannot blow the stack either.
func (ic *InputContext) drain() {
	for len(ic.queue) > 0 {
		item := ic.queue[0]
		ic.queue = ic.queue[1:]
		ic.Dispatch(item.in, item.evt)
	}
}

// Depth reports the current synchronous re-entrancy depth. Exposed for
// tests and diagnostics.
func (ic *InputContext) Depth() int { return ic.depth }

// Pending reports how many dispatches are currently queued for FIFO replay.
func (ic *InputContext) Pending() int { return len(ic.queue) }
