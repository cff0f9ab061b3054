// Package pipelinetest provides test doubles for the pipeline package.
package pipelinetest

import (
	"fmt"
	"io"

	"github.com/flowmesh/relay/pkg/event"
	"github.com/flowmesh/relay/pkg/pipeline"
)

// EchoFilter forwards every event downstream unchanged and records what it
// saw, for asserting ordering invariants. A clone also appends each event to
// its prototype's Seen, so a test holding the prototype observes the traffic
// of every Pipeline built from it.
type EchoFilter struct {
	pipeline.Base
	Name    string
	Seen    []event.Event
	Resets  int
	Chained int

	root *EchoFilter
}

// Compile-time interface check.
var _ pipeline.Filter = (*EchoFilter)(nil)

// NewEchoFilter creates a named EchoFilter prototype.
func NewEchoFilter(name string) *EchoFilter {
	return &EchoFilter{Name: name}
}

// Clone implements pipeline.Filter.
func (f *EchoFilter) Clone() pipeline.Filter {
	root := f
	if f.root != nil {
		root = f.root
	}
	return &EchoFilter{Name: f.Name, root: root}
}

// Chain implements pipeline.Filter.
func (f *EchoFilter) Chain() { f.Chained++ }

// Reset implements pipeline.Filter.
func (f *EchoFilter) Reset() {
	f.Seen = nil
	f.Resets++
}

// Process implements pipeline.Filter.
func (f *EchoFilter) Process(evt event.Event) {
	f.Seen = append(f.Seen, evt)
	if f.root != nil {
		f.root.Seen = append(f.root.Seen, evt)
	}
	f.Output(evt)
}

// Dump implements pipeline.Filter.
func (f *EchoFilter) Dump(out io.Writer) {
	fmt.Fprintf(out, "echo(%s)", f.Name)
}

// RecordingSink is an Input that appends every event it receives, usable as
// the sink a Pipeline's output is bound to in tests.
type RecordingSink struct {
	Events []event.Event
}

// Process implements pipeline.Input.
func (s *RecordingSink) Process(evt event.Event) {
	s.Events = append(s.Events, evt)
}

// FanoutFilter emits N copies of every event it sees downstream,
// immediately and synchronously, to exercise InputContext re-entrancy
// bounds.
type FanoutFilter struct {
	pipeline.Base
	Fanout int
}

var _ pipeline.Filter = (*FanoutFilter)(nil)

// NewFanoutFilter creates a FanoutFilter prototype that repeats each event
// n times downstream.
func NewFanoutFilter(n int) *FanoutFilter {
	return &FanoutFilter{Fanout: n}
}

func (f *FanoutFilter) Clone() pipeline.Filter { return &FanoutFilter{Fanout: f.Fanout} }
func (f *FanoutFilter) Chain()                 {}
func (f *FanoutFilter) Reset()                 {}
func (f *FanoutFilter) Process(evt event.Event) {
	for i := 0; i < f.Fanout; i++ {
		f.Output(evt)
	}
}
func (f *FanoutFilter) Dump(out io.Writer) { fmt.Fprintf(out, "fanout(%d)", f.Fanout) }
