package pipeline_test

import (
	"io"
	"testing"

	"github.com/flowmesh/relay/pkg/buffer"
	"github.com/flowmesh/relay/pkg/event"
	. "github.com/flowmesh/relay/pkg/pipeline"
	"github.com/flowmesh/relay/pkg/pipeline/pipelinetest"
)

func buildChain(t *testing.T, names ...string) (*PipelineLayout, []*pipelinetest.EchoFilter) {
	t.Helper()
	layout := NewPipelineLayout("test", "chain", TypeNamed)
	var filters []*pipelinetest.EchoFilter
	for _, n := range names {
		f := pipelinetest.NewEchoFilter(n)
		filters = append(filters, f)
		layout.Append(f)
	}
	if err := layout.Bind(); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	return layout, filters
}

func TestPipeline_EventOrderingNoSubPipelines(t *testing.T) {
	layout, _ := buildChain(t, "a", "b", "c")
	ic := NewInputContext()
	ctx := NewContext(ic)
	sink := &pipelinetest.RecordingSink{}

	p, err := layout.Alloc(ctx, sink)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	prod := buffer.NewProducer()
	in := []event.Event{
		event.NewMessageStart(nil),
		event.NewData(prod.NewFromBytes([]byte("hello"))),
		event.NewMessageEnd(nil, nil),
	}
	for _, evt := range in {
		p.Process(evt)
	}

	if len(sink.Events) != len(in) {
		t.Fatalf("got %d events downstream, want %d", len(sink.Events), len(in))
	}
	for i := range in {
		if sink.Events[i].Kind() != in[i].Kind() {
			t.Errorf("event[%d] kind = %v, want %v", i, sink.Events[i].Kind(), in[i].Kind())
		}
	}
}

func TestPipelineLayout_AllocUnbound(t *testing.T) {
	layout := NewPipelineLayout("test", "unbound", TypeNamed)
	_, err := layout.Alloc(NewContext(NewInputContext()), &pipelinetest.RecordingSink{})
	if err != ErrUnboundLayout {
		t.Fatalf("err = %v, want ErrUnboundLayout", err)
	}
}

func TestPipelineLayout_PoolIdempotence(t *testing.T) {
	layout, _ := buildChain(t, "a")
	ic := NewInputContext()

	run := func() []event.Event {
		ctx := NewContext(ic)
		sink := &pipelinetest.RecordingSink{}
		p, err := layout.Alloc(ctx, sink)
		if err != nil {
			t.Fatalf("Alloc: %v", err)
		}
		p.Process(event.NewMessageStart(nil))
		p.Process(event.NewMessageEnd(nil, nil))
		layout.Free(p)
		return sink.Events
	}

	first := run()
	second := run()

	if len(first) != len(second) {
		t.Fatalf("event counts differ across alloc/free/alloc: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Kind() != second[i].Kind() {
			t.Errorf("event[%d] kind differs: %v vs %v", i, first[i].Kind(), second[i].Kind())
		}
	}
	if layout.Allocated() != 2 {
		t.Errorf("Allocated() = %d, want 2", layout.Allocated())
	}
}

type fakeMetricsHook struct {
	allocs, frees, hits []string
}

func (h *fakeMetricsHook) Alloc(layout string)   { h.allocs = append(h.allocs, layout) }
func (h *fakeMetricsHook) Free(layout string)    { h.frees = append(h.frees, layout) }
func (h *fakeMetricsHook) PoolHit(layout string) { h.hits = append(h.hits, layout) }

func TestPipelineLayout_MetricsHookSeesAllocFreeAndPoolHit(t *testing.T) {
	layout, _ := buildChain(t, "a")
	hook := &fakeMetricsHook{}
	layout.SetMetricsHook(hook)
	ic := NewInputContext()

	p1, err := layout.Alloc(NewContext(ic), &pipelinetest.RecordingSink{})
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	layout.Free(p1)

	p2, err := layout.Alloc(NewContext(ic), &pipelinetest.RecordingSink{})
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	layout.Free(p2)

	if len(hook.allocs) != 2 {
		t.Errorf("got %d Alloc notifications, want 2", len(hook.allocs))
	}
	if len(hook.frees) != 2 {
		t.Errorf("got %d Free notifications, want 2", len(hook.frees))
	}
	if len(hook.hits) != 1 {
		t.Errorf("got %d PoolHit notifications, want 1 (second alloc reuses the pool)", len(hook.hits))
	}
	for _, name := range hook.allocs {
		if name != "chain" {
			t.Errorf("notified layout name = %q, want %q", name, "chain")
		}
	}
}

func TestPipelineLayout_SetMetricsHookNilDisablesNotification(t *testing.T) {
	layout, _ := buildChain(t, "a")
	hook := &fakeMetricsHook{}
	layout.SetMetricsHook(hook)
	layout.SetMetricsHook(nil)

	p, err := layout.Alloc(NewContext(NewInputContext()), &pipelinetest.RecordingSink{})
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	layout.Free(p)

	if len(hook.allocs) != 0 || len(hook.frees) != 0 {
		t.Errorf("hook should not have been notified after being cleared")
	}
}

type fakeSpanHook struct {
	starts int
	ends   int
}

func (h *fakeSpanHook) StartAllocSpan(layout string) func() {
	h.starts++
	return func() { h.ends++ }
}

func TestPipelineLayout_SpanHookEndsOnFree(t *testing.T) {
	layout, _ := buildChain(t, "a")
	hook := &fakeSpanHook{}
	layout.SetSpanHook(hook)

	p, err := layout.Alloc(NewContext(NewInputContext()), &pipelinetest.RecordingSink{})
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if hook.starts != 1 {
		t.Fatalf("got %d span starts, want 1", hook.starts)
	}
	if hook.ends != 0 {
		t.Fatalf("got %d span ends before Free, want 0", hook.ends)
	}

	layout.Free(p)
	if hook.ends != 1 {
		t.Errorf("got %d span ends after Free, want 1", hook.ends)
	}
}

func TestPipelineLayout_FreeResetsFilters(t *testing.T) {
	layout, filters := buildChain(t, "a")
	ctx := NewContext(NewInputContext())
	sink := &pipelinetest.RecordingSink{}

	p, _ := layout.Alloc(ctx, sink)
	p.Process(event.NewMessageStart(nil))
	if len(filters[0].Seen) != 1 {
		t.Fatalf("expected filter to have seen 1 event before free")
	}

	// The pooled filter instance is a clone made at newPipeline time, not
	// the prototype held in `filters`, so Resets on the prototype itself
	// stays at zero; State is what we can observe from here.
	layout.Free(p)
	if filters[0].Resets != 0 {
		t.Errorf("prototype Resets = %d, want 0 (only the clone resets)", filters[0].Resets)
	}
	if p.State() != StatePooled {
		t.Errorf("State() = %v, want pooled", p.State())
	}
}

func TestPipeline_Shutdown_PropagatesStreamEnd(t *testing.T) {
	layout, _ := buildChain(t, "a")
	ctx := NewContext(NewInputContext())
	sink := &pipelinetest.RecordingSink{}
	p, _ := layout.Alloc(ctx, sink)

	p.Process(event.NewMessageStart(nil))
	layout.Shutdown()

	if p.State() != StateDraining {
		t.Errorf("State() = %v, want draining", p.State())
	}
	last := sink.Events[len(sink.Events)-1]
	se, ok := last.(*event.StreamEnd)
	if !ok {
		t.Fatalf("last event = %T, want *event.StreamEnd", last)
	}
	if !se.IsGraceful() {
		t.Errorf("expected graceful StreamEnd, got error=%v", se.Error)
	}
}

func TestInputContext_ReentrantDepthIsBoundedAndFIFO(t *testing.T) {
	ic := NewInputContext()
	var order []int

	var enter func(n int)
	enter = func(n int) {
		order = append(order, n)
		if n < MaxInlineDepth+5 {
			ic.Dispatch(InputFunc(func(event.Event) { enter(n + 1) }), event.NewStreamEnd(event.ErrorNone))
		}
	}
	ic.Dispatch(InputFunc(func(event.Event) { enter(0) }), event.NewStreamEnd(event.ErrorNone))

	if len(order) != MaxInlineDepth+6 {
		t.Fatalf("got %d levels, want %d", len(order), MaxInlineDepth+6)
	}
	for i := 1; i < len(order); i++ {
		if order[i] <= order[i-1] {
			t.Fatalf("FIFO order violated: %v", order)
		}
	}
	if ic.Depth() != 0 {
		t.Errorf("Depth() after full drain = %d, want 0", ic.Depth())
	}
}

func TestSubPipeline_ConnectsChildOutputToSink(t *testing.T) {
	parentLayout := NewPipelineLayout("test", "parent", TypeNamed)
	childLayout := NewPipelineLayout("test", "child", TypeNamed)
	childFilter := pipelinetest.NewEchoFilter("child")
	childLayout.Append(childFilter)
	if err := childLayout.Bind(); err != nil {
		t.Fatal(err)
	}
	childIndex := parentLayout.AddChild(childLayout)

	spawner := &spawningFilter{childIndex: childIndex}
	parentLayout.Append(spawner)
	if err := parentLayout.Bind(); err != nil {
		t.Fatal(err)
	}

	ctx := NewContext(NewInputContext())
	sink := &pipelinetest.RecordingSink{}
	p, err := parentLayout.Alloc(ctx, sink)
	if err != nil {
		t.Fatal(err)
	}

	p.Process(event.NewMessageStart(nil))
	if len(sink.Events) != 1 {
		t.Fatalf("expected sub-pipeline output to reach the sink, got %d events", len(sink.Events))
	}
}

// spawningFilter opens a sub-pipeline on first event and forwards into it.
type spawningFilter struct {
	Base
	childIndex int
	child      *Pipeline
}

func (f *spawningFilter) Clone() Filter { return &spawningFilter{childIndex: f.childIndex} }
func (f *spawningFilter) Chain()        {}
func (f *spawningFilter) Reset()        { f.child = nil }
func (f *spawningFilter) Process(evt event.Event) {
	if f.child == nil {
		child, err := f.SubPipeline(f.childIndex, true, InputFunc(func(e event.Event) { f.Output(e) }))
		if err != nil {
			return
		}
		f.child = child
	}
	f.child.Process(evt)
}
func (f *spawningFilter) Dump(out io.Writer) { io.WriteString(out, "spawn") }
