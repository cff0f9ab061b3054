package deframe

import (
	"testing"

	"github.com/flowmesh/relay/pkg/buffer"
)

// lengthPrefixed decodes `len(1) ‖ payload(len)` frames, one after another,
// collecting each payload verbatim. It exists purely to exercise the
// Deframer driver's scheduled-read and resumability behavior.
const (
	stateLen = iota
	stateBody
)

type lengthPrefixed struct {
	Base
	producer *buffer.Producer
	bodies   [][]byte
	pending  *buffer.Data
}

func (h *lengthPrefixed) OnState(state int, b byte) int {
	switch state {
	case stateLen:
		if b == 0 {
			h.bodies = append(h.bodies, nil)
			return stateLen
		}
		h.pending = h.ReadData(int(b), h.producer)
		return stateBody
	case stateBody:
		h.bodies = append(h.bodies, h.pending.Bytes())
		h.pending = nil
		return stateLen
	default:
		return StateError
	}
}

func newLengthPrefixed() (*lengthPrefixed, *Deframer) {
	producer := buffer.NewProducer()
	h := &lengthPrefixed{producer: producer}
	d := New(h, stateLen)
	return h, d
}

func TestDeframer_SingleShotDecode(t *testing.T) {
	h, d := newLengthPrefixed()
	producer := buffer.NewProducer()
	in := producer.NewFromBytes([]byte{3, 'a', 'b', 'c', 2, 'x', 'y', 0})

	d.Process(in)

	want := [][]byte{[]byte("abc"), []byte("xy"), nil}
	if len(h.bodies) != len(want) {
		t.Fatalf("got %d frames, want %d", len(h.bodies), len(want))
	}
	for i := range want {
		if string(h.bodies[i]) != string(want[i]) {
			t.Errorf("frame %d = %q, want %q", i, h.bodies[i], want[i])
		}
	}
}

func TestDeframer_ResumableAcrossSplits(t *testing.T) {
	full := []byte{3, 'a', 'b', 'c', 2, 'x', 'y', 0}
	for split := 0; split <= len(full); split++ {
		h, d := newLengthPrefixed()
		producer := buffer.NewProducer()

		a := producer.NewFromBytes(full[:split])
		b := producer.NewFromBytes(full[split:])
		d.Process(a)
		d.Process(b)

		if len(h.bodies) != 3 {
			t.Fatalf("split %d: got %d frames, want 3", split, len(h.bodies))
		}
		if string(h.bodies[0]) != "abc" || string(h.bodies[1]) != "xy" || h.bodies[2] != nil {
			t.Fatalf("split %d: got %v", split, h.bodies)
		}
	}
}

func TestDeframer_ErrorLatchesAndDropsRemainder(t *testing.T) {
	h := &errorOnSecondByte{}
	d := New(h, 0)
	producer := buffer.NewProducer()
	in := producer.NewFromBytes([]byte{1, 2, 3, 4})

	d.Process(in)

	if !d.Errored() {
		t.Fatalf("expected decoder to latch in error")
	}
	if !in.Empty() {
		t.Errorf("expected remaining input to be dropped")
	}
	if h.seen != 2 {
		t.Errorf("seen = %d, want 2 (one before error, one that triggers it)", h.seen)
	}
}

func TestDeframer_OnErrorFiresExactlyOnceAtLatch(t *testing.T) {
	h := &errorOnSecondByte{}
	d := New(h, 0)
	calls := 0
	d.SetOnError(func() { calls++ })

	producer := buffer.NewProducer()
	in := producer.NewFromBytes([]byte{1, 2, 3, 4})
	d.Process(in)

	if calls != 1 {
		t.Errorf("got %d OnError calls, want 1", calls)
	}

	// Further Process calls while latched must not fire it again.
	in2 := producer.NewFromBytes([]byte{5, 6})
	d.Process(in2)
	if calls != 1 {
		t.Errorf("got %d OnError calls after a second Process, want still 1", calls)
	}
}

type errorOnSecondByte struct {
	Base
	seen int
}

func (h *errorOnSecondByte) OnState(state int, b byte) int {
	h.seen++
	if h.seen == 2 {
		return StateError
	}
	return 0
}

func TestDeframer_PassThroughForwardsVerbatim(t *testing.T) {
	h := &switchToPassThrough{}
	d := New(h, 0)
	var forwarded []byte
	d.SetPassThroughSink(func(chunk *buffer.Data) {
		forwarded = append(forwarded, chunk.Bytes()...)
	})

	producer := buffer.NewProducer()
	in := producer.NewFromBytes([]byte{1, 'h', 'e', 'l', 'l', 'o'})
	d.Process(in)

	if string(forwarded) != "hello" {
		t.Errorf("forwarded = %q, want %q", forwarded, "hello")
	}
}

type switchToPassThrough struct{ Base }

func (h *switchToPassThrough) OnState(state int, b byte) int {
	h.PassThrough(true)
	return 0
}
