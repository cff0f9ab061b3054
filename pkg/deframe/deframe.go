// Package deframe implements a reusable byte-oriented decoder driver: a
// state machine fed one byte, or one scheduled read, at a time from an
// incoming Data stream.
package deframe

import "github.com/flowmesh/relay/pkg/buffer"

// StateError is returned by Handler.OnState to latch the decoder. Once
// latched, a Deframer discards all further input until Reset.
const StateError int = -1

// Handler implements one protocol's state machine on top of a Deframer
// driver. OnState fires once per satisfied scheduled read, or once per byte
// when no read is scheduled; b is either the byte just seen or the last
// byte of the just-completed read. The returned state becomes current;
// returning StateError latches the decoder.
type Handler interface {
	OnState(state int, b byte) int
}

// baseBinder is implemented by Base (and promoted to any Handler that
// embeds it), letting New wire a handler's plumbing without exporting
// Deframer's internals.
type baseBinder interface {
	bindDeframer(d *Deframer)
}

// Base is embedded by concrete Handler implementations to get the
// scheduling calls a state machine needs: Read, ReadData, PassThrough.
type Base struct {
	d *Deframer
}

func (b *Base) bindDeframer(d *Deframer) { b.d = d }

// Read schedules a fixed-size byte capture: the next len(dst) bytes are
// copied into dst (overwriting it), then OnState fires once with
// dst[len(dst)-1].
func (b *Base) Read(dst []byte) { b.d.scheduleFixed(dst) }

// ReadData schedules capture of the next n bytes into a freshly produced
// Data, returned immediately so the handler can stash a reference to parse
// once the read completes.
func (b *Base) ReadData(n int, producer *buffer.Producer) *buffer.Data {
	return b.d.scheduleData(n, producer)
}

// PassThrough toggles pass-through mode: while on, input bytes bypass the
// state machine entirely and are handed to the Deframer's pass-through
// sink (if any) instead of being consumed byte-by-byte.
func (b *Base) PassThrough(on bool) { b.d.passThrough = on }

// State returns the Deframer's current state.
func (b *Base) State() int { return b.d.state }

// Deframer drives a Handler's state machine over successive Process calls,
// implementing the scheduling primitives Base exposes (§4.5).
type Deframer struct {
	handler Handler
	state   int

	readDst    []byte
	readOffset int
	readData   *buffer.Data
	readN      int

	passThrough   bool
	onPassThrough func(*buffer.Data)

	errored bool
	onError func()
}

// New creates a Deframer starting in the given state and bound to handler.
// If handler embeds Base (directly or via promotion), New wires it so the
// handler's Read/ReadData/PassThrough calls reach this Deframer.
func New(handler Handler, initial int) *Deframer {
	d := &Deframer{handler: handler, state: initial}
	if binder, ok := handler.(baseBinder); ok {
		binder.bindDeframer(d)
	}
	return d
}

// SetPassThroughSink installs the callback invoked with chunks of
// pass-through bytes while PassThrough(true) is in effect. Without a sink,
// pass-through bytes are silently discarded.
func (d *Deframer) SetPassThroughSink(sink func(*buffer.Data)) {
	d.onPassThrough = sink
}

// SetOnError installs a callback invoked the instant the decoder latches
// into StateError, so a caller can surface a counter without polling
// Errored() after every Process call.
func (d *Deframer) SetOnError(fn func()) {
	d.onError = fn
}

// State returns the current state.
func (d *Deframer) State() int { return d.state }

// Errored reports whether the decoder has latched in StateError.
func (d *Deframer) Errored() bool { return d.errored }

// Reset clears the error latch and any pending read, restarting the
// handler at the given state. Buffered pass-through sink is preserved.
func (d *Deframer) Reset(state int) {
	d.state = state
	d.readDst = nil
	d.readData = nil
	d.readN = 0
	d.readOffset = 0
	d.passThrough = false
	d.errored = false
}

func (d *Deframer) scheduleFixed(dst []byte) {
	d.readDst = dst
	d.readData = nil
	d.readN = len(dst)
	d.readOffset = 0
}

func (d *Deframer) scheduleData(n int, producer *buffer.Producer) *buffer.Data {
	dst := producer.New()
	d.readData = dst
	d.readDst = nil
	d.readN = n
	d.readOffset = 0
	return dst
}

// Process feeds in to the driver loop described in §4.5, consuming it
// entirely (or until the decoder latches in error). in is left empty on
// return; any unconsumed tail on error is dropped.
func (d *Deframer) Process(in *buffer.Data) {
	for !in.Empty() {
		if d.errored {
			in.Clear()
			return
		}
		if d.passThrough {
			chunk := in.Shift(in.Size())
			if d.onPassThrough != nil {
				d.onPassThrough(chunk)
			}
			continue
		}
		if d.readN > 0 {
			d.consumeScheduledRead(in)
			continue
		}
		d.consumeOneByte(in)
	}
}

func (d *Deframer) consumeScheduledRead(in *buffer.Data) {
	take := d.readN
	if avail := in.Size(); avail < take {
		take = avail
	}
	chunk := in.Shift(take)
	if d.readDst != nil {
		copy(d.readDst[d.readOffset:d.readOffset+take], chunk.Bytes())
	} else if d.readData != nil {
		d.readData.Push(chunk)
	}
	d.readOffset += take
	d.readN -= take
	if d.readN == 0 {
		last := d.lastScheduledByte()
		d.readDst = nil
		d.readData = nil
		d.transition(last)
	}
}

func (d *Deframer) lastScheduledByte() byte {
	if d.readDst != nil && len(d.readDst) > 0 {
		return d.readDst[len(d.readDst)-1]
	}
	if d.readData != nil && d.readData.Size() > 0 {
		b := d.readData.Bytes()
		return b[len(b)-1]
	}
	return 0
}

func (d *Deframer) consumeOneByte(in *buffer.Data) {
	one := in.Shift(1)
	b := one.Bytes()[0]
	d.transition(b)
}

func (d *Deframer) transition(b byte) {
	next := d.handler.OnState(d.state, b)
	if next == StateError {
		d.errored = true
		if d.onError != nil {
			d.onError()
		}
		return
	}
	d.state = next
}
