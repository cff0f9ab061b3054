// Package haproxy implements the server side of the HAProxy PROXY protocol
// v1 header (text form): a Filter that reads the leading "PROXY ..." line
// off an inbound byte stream, reports the parsed source/target addressing
// through OnConnect, then passes the remainder of the stream through
// untouched to a sub-pipeline.
package haproxy

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/flowmesh/relay/pkg/buffer"
	"github.com/flowmesh/relay/pkg/deframe"
	"github.com/flowmesh/relay/pkg/event"
	"github.com/flowmesh/relay/pkg/pipeline"
)

// maxHeaderLine bounds how many bytes of the header line this filter will
// buffer before latching an error. The protocol caps the whole v1 header,
// including its trailing CRLF, at 107 bytes.
const maxHeaderLine = 107

const stateLine = 0

// ConnectInfo carries the parsed PROXY v1 header.
type ConnectInfo struct {
	Protocol      string
	SourceAddress string
	TargetAddress string
	SourcePort    int
	TargetPort    int
}

// deframeBase gives the embedded deframe.Base a field name distinct from
// the embedded pipeline.Base.
type deframeBase = deframe.Base

// Filter parses the inbound PROXY v1 header, hands it to OnConnect, then
// forwards the rest of the stream to the sub-pipeline OnConnect accepted
// into.
type Filter struct {
	pipeline.Base
	deframeBase

	// ChildIndex selects the sub-pipeline layout the payload is forwarded
	// into once the header has been parsed.
	ChildIndex int
	// OnConnect is called once with the parsed header. Returning false
	// rejects the connection: the stream ends instead of opening the
	// sub-pipeline.
	OnConnect func(ConnectInfo) bool

	d     *deframe.Deframer
	line  []byte
	child *pipeline.Pipeline
}

var _ pipeline.Filter = (*Filter)(nil)
var _ deframe.Handler = (*Filter)(nil)

// New creates a Filter targeting the given sub-pipeline layout index.
func New(childIndex int, onConnect func(ConnectInfo) bool) *Filter {
	return &Filter{ChildIndex: childIndex, OnConnect: onConnect}
}

// Clone implements pipeline.Filter.
func (f *Filter) Clone() pipeline.Filter {
	return &Filter{ChildIndex: f.ChildIndex, OnConnect: f.OnConnect}
}

// Chain implements pipeline.Filter.
func (f *Filter) Chain() {}

// Reset implements pipeline.Filter.
func (f *Filter) Reset() {
	f.d = nil
	f.line = nil
	f.child = nil
}

// Dump implements pipeline.Filter.
func (f *Filter) Dump(out io.Writer) {
	fmt.Fprintf(out, "acceptHAProxy(child=%d)", f.ChildIndex)
}

// Process implements pipeline.Filter.
func (f *Filter) Process(evt event.Event) {
	switch e := evt.(type) {
	case *event.Data:
		f.onData(e)
	case *event.StreamEnd:
		if f.child != nil {
			f.child.Process(evt)
		} else {
			f.Output(evt)
		}
	}
}

func (f *Filter) onData(e *event.Data) {
	if f.d == nil {
		f.d = deframe.New(f, stateLine)
	}
	f.d.Process(e.Buffer)
	if f.d.Errored() {
		f.Output(event.NewStreamEnd(event.ErrorMalformedInput))
	}
}

// OnState implements deframe.Handler, accumulating one byte at a time
// until a bare CRLF-terminated line has been seen.
func (f *Filter) OnState(state int, b byte) int {
	if b == '\n' && len(f.line) > 0 && f.line[len(f.line)-1] == '\r' {
		line := string(f.line[:len(f.line)-1])
		f.line = nil
		return f.onLine(line)
	}
	if len(f.line) >= maxHeaderLine {
		return deframe.StateError
	}
	f.line = append(f.line, b)
	return stateLine
}

func (f *Filter) onLine(line string) int {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "PROXY" {
		return deframe.StateError
	}

	var info ConnectInfo
	switch {
	case len(fields) == 2 && fields[1] == "UNKNOWN":
		info.Protocol = "UNKNOWN"
	case len(fields) == 6 && (fields[1] == "TCP4" || fields[1] == "TCP6"):
		sourcePort, err := strconv.Atoi(fields[4])
		if err != nil {
			return deframe.StateError
		}
		targetPort, err := strconv.Atoi(fields[5])
		if err != nil {
			return deframe.StateError
		}
		info = ConnectInfo{
			Protocol:      fields[1],
			SourceAddress: fields[2],
			TargetAddress: fields[3],
			SourcePort:    sourcePort,
			TargetPort:    targetPort,
		}
	default:
		return deframe.StateError
	}

	if f.OnConnect != nil && !f.OnConnect(info) {
		return deframe.StateError
	}

	child, err := f.SubPipeline(f.ChildIndex, true, pipeline.InputFunc(func(reply event.Event) {
		f.Output(reply)
	}))
	if err != nil {
		return deframe.StateError
	}
	f.child = child

	f.d.SetPassThroughSink(func(chunk *buffer.Data) {
		f.child.Process(event.NewData(chunk))
	})
	f.PassThrough(true)
	return stateLine
}
