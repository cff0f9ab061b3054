// Package mux implements MuxBase (§4.8): several inbound message slots
// share one sub-Pipeline (a Session) keyed by a caller-supplied value,
// each contributing a burst of MessageStart‖Data‖MessageEnd into the
// Session's input as the message completes.
package mux

import (
	"fmt"
	"io"
	"time"

	"github.com/flowmesh/relay/pkg/buffer"
	"github.com/flowmesh/relay/pkg/event"
	"github.com/flowmesh/relay/pkg/pipeline"
)

// Session is a shared sub-Pipeline keyed by Key, reference-counted across
// the callers currently holding a Stream open on it.
type Session struct {
	Key any
	sub *pipeline.Pipeline

	refs      int
	idleTimer *time.Timer
}

// stream accumulates one inbound message's Head and body before it is
// forwarded into its Session as a single burst.
type stream struct {
	session *Session
	head    *event.MessageStart
	body    *buffer.Data
}

// MuxBase routes inbound messages to Sessions looked up by KeyFunc,
// creating one on demand (sessionFor). IdleTimeout, when non-zero, closes
// a Session once that much time has passed after its last user released it.
type MuxBase struct {
	pipeline.Base

	ChildIndex  int
	KeyFunc     func(head any) any
	IdleTimeout time.Duration

	// Merge, when true, also passes every inbound event downstream
	// unchanged in addition to feeding the Session (§4.8 "Merge").
	Merge bool

	// Post, when set by the owning WorkerThread, routes a callback onto
	// that thread's single goroutine. The idle-timeout close below fires
	// on its own timer goroutine and must not touch sessions or call
	// sess.sub.Process directly — doing so would race Process calls
	// arriving through the worker's normal dispatch (§5's
	// single-goroutine-per-Net model). Left nil (e.g. in tests that don't
	// wire a real WorkerThread), the callback runs on the timer goroutine
	// directly.
	Post func(func())

	producer *buffer.Producer
	sessions map[any]*Session
	current  *stream
}

var _ pipeline.Filter = (*MuxBase)(nil)

// NewMuxBase creates a MuxBase prototype targeting the given child layout
// index, keyed by keyFunc.
func NewMuxBase(childIndex int, keyFunc func(head any) any, producer *buffer.Producer) *MuxBase {
	return &MuxBase{ChildIndex: childIndex, KeyFunc: keyFunc, producer: producer}
}

// Clone implements pipeline.Filter. Sessions are process-wide state and are
// intentionally NOT duplicated per clone — every MuxBase clone sharing the
// same sessions map is what lets concurrent callers converge on one Session
// for the same key. Callers that want per-pipeline isolation should give
// each layout its own MuxBase prototype.
func (m *MuxBase) Clone() pipeline.Filter {
	if m.sessions == nil {
		m.sessions = make(map[any]*Session)
	}
	return &MuxBase{
		ChildIndex:  m.ChildIndex,
		KeyFunc:     m.KeyFunc,
		IdleTimeout: m.IdleTimeout,
		Merge:       m.Merge,
		Post:        m.Post,
		producer:    m.producer,
		sessions:    m.sessions,
	}
}

func (m *MuxBase) Chain() {}

// Reset implements pipeline.Filter. Sessions are shared across the
// MuxBase's clones and outlive any one Pipeline instantiation, so Reset
// only clears this clone's in-flight accumulator.
func (m *MuxBase) Reset() { m.current = nil }

func (m *MuxBase) Dump(out io.Writer) {
	fmt.Fprintf(out, "mux(child=%d, sessions=%d)", m.ChildIndex, len(m.sessions))
}

func (m *MuxBase) Process(evt event.Event) {
	if m.Merge {
		m.Output(evt)
	}
	switch e := evt.(type) {
	case *event.MessageStart:
		m.onMessageStart(e)
	case *event.Data:
		m.onData(e)
	case *event.MessageEnd:
		m.onMessageEnd(e)
	case *event.StreamEnd:
		// Nothing queued for this slot closes down the Session — only a
		// completed MessageEnd releases a Stream's hold on it.
	}
}

func (m *MuxBase) onMessageStart(e *event.MessageStart) {
	key := any(nil)
	if m.KeyFunc != nil {
		key = m.KeyFunc(e.Head)
	}
	sess := m.sessionFor(key)
	sess.refs++
	m.current = &stream{session: sess, head: e, body: m.producer.New()}
}

func (m *MuxBase) onData(e *event.Data) {
	if m.current == nil || e.Buffer == nil {
		return
	}
	m.current.body.Push(e.Buffer)
}

func (m *MuxBase) onMessageEnd(e *event.MessageEnd) {
	s := m.current
	m.current = nil
	if s == nil {
		return
	}
	if s.session.sub != nil {
		// Forward as one burst: MessageStart, Data, MessageEnd consecutively
		// on this single-threaded filter, with nothing else able to
		// interleave.
		s.session.sub.Process(event.NewMessageStart(s.head.Head))
		if !s.body.Empty() {
			s.session.sub.Process(event.NewData(s.body))
		}
		s.session.sub.Process(event.NewMessageEnd(e.Tail, e.Payload))
	}
	m.release(s.session)
}

// sessionFor returns the Session for key, creating and allocating its
// sub-Pipeline on demand (§4.8 "creating one on demand via on_new_session").
func (m *MuxBase) sessionFor(key any) *Session {
	if sess, ok := m.sessions[key]; ok {
		if sess.idleTimer != nil {
			sess.idleTimer.Stop()
			sess.idleTimer = nil
		}
		return sess
	}
	sess := &Session{Key: key}
	sub, err := m.SubPipelineWithContext(m.ChildIndex, false, pipeline.InputFunc(func(event.Event) {
		// Session replies are not re-demultiplexed by MuxBase itself — a
		// caller wanting per-message replies composes MuxBase with its own
		// demux.Demux downstream of the Session's sub-Pipeline.
	}), nil)
	if err != nil {
		return sess
	}
	sess.sub = sub
	m.sessions[key] = sess
	return sess
}

// release drops one user's hold on sess, closing it (and freeing its
// sub-Pipeline) once the last user has gone and, if IdleTimeout is set,
// after that much additional idle time has passed (§4.8 "Sessions close
// when their last user is released and an idle timeout elapses").
func (m *MuxBase) release(sess *Session) {
	sess.refs--
	if sess.refs > 0 {
		return
	}
	if m.IdleTimeout <= 0 {
		m.closeSession(sess)
		return
	}
	sess.idleTimer = time.AfterFunc(m.IdleTimeout, func() {
		m.postBack(func() {
			if sess.refs == 0 {
				m.closeSession(sess)
			}
		})
	})
}

// postBack routes fn onto the owning WorkerThread's goroutine via Post, so
// a timer callback never mutates sessions or calls into a sub-Pipeline
// concurrently with normal Process dispatch.
func (m *MuxBase) postBack(fn func()) {
	if m.Post != nil {
		m.Post(fn)
		return
	}
	fn()
}

func (m *MuxBase) closeSession(sess *Session) {
	delete(m.sessions, sess.Key)
	if sess.sub == nil {
		return
	}
	// Process a graceful StreamEnd through just this Session's Pipeline —
	// PipelineLayout.Shutdown would hit every live Pipeline on the shared
	// child layout, closing sibling Sessions too.
	sess.sub.Process(event.NewStreamEnd(event.ErrorNone))
	sess.sub.Layout().Free(sess.sub)
}
