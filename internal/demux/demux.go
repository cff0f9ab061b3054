// Package demux implements QueueDemuxer (§4.7): a filter that splits one
// serial inbound event stream into per-message sub-pipelines, whose
// replies are re-serialized downstream in the order the messages arrived.
package demux

import (
	"fmt"
	"io"

	"github.com/flowmesh/relay/pkg/event"
	"github.com/flowmesh/relay/pkg/pipeline"
)

// stream is one inbound message's sub-pipeline and its buffered replies.
// Only the stream at the head of Demux.streams ever has its buffered
// events flushed downstream; every other stream just accumulates.
type stream struct {
	sub       *pipeline.Pipeline
	buffered  []event.Event
	inputEnd  bool
	outputEnd bool
}

// Demux is the Filter realization of QueueDemuxer. ChildIndex selects the
// sub-pipeline layout (registered via the owning PipelineLayout's child
// table) instantiated once per inbound message.
type Demux struct {
	pipeline.Base

	ChildIndex int
	// Isolate, when true, gives every sub-pipeline its own detached
	// Context rather than sharing the parent's.
	Isolate bool

	streams      []*stream
	shuttingDown bool
	closed       bool

	// OnActiveStreamsChanged, if set, is called with the new open-stream
	// count whenever a message is opened or its stream drains.
	OnActiveStreamsChanged func(int)
}

var _ pipeline.Filter = (*Demux)(nil)

// NewDemux creates a Demux prototype targeting the given child layout
// index.
func NewDemux(childIndex int) *Demux {
	return &Demux{ChildIndex: childIndex}
}

// Clone implements pipeline.Filter.
func (d *Demux) Clone() pipeline.Filter {
	return &Demux{ChildIndex: d.ChildIndex, Isolate: d.Isolate, OnActiveStreamsChanged: d.OnActiveStreamsChanged}
}

// Chain implements pipeline.Filter.
func (d *Demux) Chain() {}

// Reset implements pipeline.Filter.
func (d *Demux) Reset() {
	d.streams = nil
	d.shuttingDown = false
	d.closed = false
	d.notifyActiveStreams()
}

// Dump implements pipeline.Filter.
func (d *Demux) Dump(out io.Writer) {
	fmt.Fprintf(out, "demux(child=%d, isolate=%v, streams=%d)", d.ChildIndex, d.Isolate, len(d.streams))
}

// Process implements pipeline.Filter, realizing the per-inbound-message
// routing of §4.7.
func (d *Demux) Process(evt event.Event) {
	switch e := evt.(type) {
	case *event.MessageStart:
		d.onMessageStart(e)
	case *event.Data:
		d.onBodyEvent(e)
	case *event.MessageEnd:
		d.onBodyEvent(e)
		d.markCurrentInputEnd()
	case *event.StreamEnd:
		d.markCurrentInputEnd()
		d.Shutdown()
	}
}

func (d *Demux) onMessageStart(e *event.MessageStart) {
	if d.shuttingDown {
		return
	}
	s := &stream{}
	var ctx *pipeline.Context
	if d.Isolate {
		if parent := d.Context(); parent != nil {
			ctx = parent.Detach()
		}
	}
	sub, err := d.SubPipelineWithContext(d.ChildIndex, true, pipeline.InputFunc(func(reply event.Event) {
		d.onReply(s, reply)
	}), ctx)
	if err != nil {
		return
	}
	s.sub = sub
	d.streams = append(d.streams, s)
	d.notifyActiveStreams()
	sub.Process(e)
}

func (d *Demux) notifyActiveStreams() {
	if d.OnActiveStreamsChanged != nil {
		d.OnActiveStreamsChanged(len(d.streams))
	}
}

// onBodyEvent routes Data/MessageEnd into the most recently opened stream
// — the "head" of inbound acceptance, not to be confused with the
// reply-flush head (streams[0]).
func (d *Demux) onBodyEvent(evt event.Event) {
	if len(d.streams) == 0 {
		return
	}
	cur := d.streams[len(d.streams)-1]
	cur.sub.Process(evt)
}

func (d *Demux) markCurrentInputEnd() {
	if len(d.streams) == 0 {
		return
	}
	d.streams[len(d.streams)-1].inputEnd = true
}

// Shutdown refuses further inbound MessageStarts and, once every open
// stream has drained, emits a graceful StreamEnd downstream (§4.7
// "Shutdown").
func (d *Demux) Shutdown() {
	d.shuttingDown = true
	d.emitCloseIfDone()
}

func (d *Demux) onReply(s *stream, evt event.Event) {
	s.buffered = append(s.buffered, evt)
	switch evt.(type) {
	case *event.MessageEnd, *event.StreamEnd:
		s.outputEnd = true
	}
	d.drainHead()
}

// drainHead flushes the head stream's buffered replies downstream,
// retiring it once its sub-pipeline has signaled output_end and replaying
// the next stream's own buffer in turn — the only place events reach
// d.Output, which is what enforces "at most one active head" (§4.7
// invariant 4).
func (d *Demux) drainHead() {
	for len(d.streams) > 0 {
		head := d.streams[0]
		for len(head.buffered) > 0 {
			evt := head.buffered[0]
			head.buffered = head.buffered[1:]
			d.Output(evt)
		}
		if !head.outputEnd {
			break
		}
		d.streams = d.streams[1:]
		d.notifyActiveStreams()
	}
	d.emitCloseIfDone()
}

func (d *Demux) emitCloseIfDone() {
	if d.shuttingDown && len(d.streams) == 0 && !d.closed {
		d.closed = true
		d.Output(event.NewStreamEnd(event.ErrorNone))
	}
}
