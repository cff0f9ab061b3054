// Package event defines the tagged event variants that flow through a
// pipeline: MessageStart, Data, MessageEnd, and StreamEnd.
package event

import (
	"sync/atomic"

	"github.com/flowmesh/relay/pkg/buffer"
)

// Kind discriminates the Event variants.
type Kind int

const (
	KindMessageStart Kind = iota
	KindData
	KindMessageEnd
	KindStreamEnd
)

func (k Kind) String() string {
	switch k {
	case KindMessageStart:
		return "MessageStart"
	case KindData:
		return "Data"
	case KindMessageEnd:
		return "MessageEnd"
	case KindStreamEnd:
		return "StreamEnd"
	default:
		return "Unknown"
	}
}

// Event is the common interface implemented by all four variants. Events
// are immutable after emission: nothing downstream of the edge that first
// observed an Event may mutate it, so it is safe for several edges (a
// Demuxer's Streams, the fan-out in Merge) to hold the same Event
// concurrently with respect to reads.
type Event interface {
	Kind() Kind
	// Retain increments the event's reference count. Any edge that stores
	// an Event beyond the scope of the on_event call that delivered it
	// must Retain it first and Release it when done.
	Retain()
	// Release decrements the reference count. It is a no-op once the count
	// reaches zero; Go's garbage collector reclaims the underlying memory,
	// this bookkeeping exists so pooled buffers (buffer.Data chunks) and
	// diagnostics can observe outstanding-reference counts the way the
	// spec's ref-counted model requires.
	Release()
}

type refCount struct {
	n atomic.Int32
}

func (r *refCount) Retain() { r.n.Add(1) }

func (r *refCount) Release() {
	for {
		v := r.n.Load()
		if v <= 0 {
			return
		}
		if r.n.CompareAndSwap(v, v-1) {
			return
		}
	}
}

// MessageStart begins a logical message. Head is an opaque, protocol- or
// filter-defined header object (e.g. a decoded BGP header, or HAProxy
// connect parameters); nil when the producer has nothing to attach yet.
type MessageStart struct {
	refCount
	Head any
}

// NewMessageStart creates a MessageStart event with an initial refcount of 1.
func NewMessageStart(head any) *MessageStart {
	e := &MessageStart{Head: head}
	e.Retain()
	return e
}

func (*MessageStart) Kind() Kind { return KindMessageStart }

// Data carries a chunk of message payload.
type Data struct {
	refCount
	Buffer *buffer.Data
}

// NewData wraps a buffer.Data as a Data event with an initial refcount of 1.
func NewData(buf *buffer.Data) *Data {
	e := &Data{Buffer: buf}
	e.Retain()
	return e
}

func (*Data) Kind() Kind { return KindData }

// MessageEnd ends a logical message. Tail is an opaque trailer object;
// Payload carries an optional status (e.g. a decode error summary).
type MessageEnd struct {
	refCount
	Tail    any
	Payload any
}

// NewMessageEnd creates a MessageEnd event with an initial refcount of 1.
func NewMessageEnd(tail, payload any) *MessageEnd {
	e := &MessageEnd{Tail: tail, Payload: payload}
	e.Retain()
	return e
}

func (*MessageEnd) Kind() Kind { return KindMessageEnd }

// ErrorKind enumerates the semantic error categories of §7.
type ErrorKind int

const (
	// ErrorNone marks graceful termination — no error occurred.
	ErrorNone ErrorKind = iota
	ErrorMalformedInput
	ErrorOversize
	ErrorUnboundLayout
	ErrorShutdownInProgress
	ErrorInternalInvariant
)

func (e ErrorKind) String() string {
	switch e {
	case ErrorNone:
		return "none"
	case ErrorMalformedInput:
		return "malformed_input"
	case ErrorOversize:
		return "oversize"
	case ErrorUnboundLayout:
		return "unbound_layout"
	case ErrorShutdownInProgress:
		return "shutdown_in_progress"
	case ErrorInternalInvariant:
		return "internal_invariant"
	default:
		return "unknown"
	}
}

// StreamEnd terminates the entire event stream for an edge. It is terminal:
// no further events may be delivered on that edge afterward. A zero-value
// Error (ErrorNone) represents a graceful close.
type StreamEnd struct {
	refCount
	Error ErrorKind
}

// NewStreamEnd creates a StreamEnd event with an initial refcount of 1.
func NewStreamEnd(kind ErrorKind) *StreamEnd {
	e := &StreamEnd{Error: kind}
	e.Retain()
	return e
}

func (*StreamEnd) Kind() Kind { return KindStreamEnd }

// IsGraceful reports whether this StreamEnd carries no error.
func (e *StreamEnd) IsGraceful() bool { return e.Error == ErrorNone }
