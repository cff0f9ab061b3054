// Package worker implements WorkerThread (§4.9): one cooperative event loop
// per OS thread, coordinated for start/stop/reload only — all in-thread
// work runs single-goroutine and lock-free.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowmesh/relay/pkg/pipeline"
)

const (
	// DefaultCleaningSchedule sweeps recycled buffer/pipeline state.
	DefaultCleaningSchedule = "*/1 * * * *"
	// DefaultPendingSchedule recounts undrained pipelines.
	DefaultPendingSchedule = "*/1 * * * *"
)

// task is a function posted to a WorkerThread's queue, run on its own
// goroutine between event deliveries.
type task func()

// Net is a WorkerThread's per-thread record of live Pipelines; the task
// queue and its goroutine belong to the WorkerThread. Registering a Pipeline
// allocation/free against it is how the thread tracks pending work for
// Stop/reload quiescence.
type Net struct {
	mu      sync.Mutex
	pending map[*pipeline.Pipeline]struct{}
}

func newNet() *Net {
	return &Net{pending: make(map[*pipeline.Pipeline]struct{})}
}

// TrackAlloc registers p as pending work the Net must drain before a
// graceful stop/reload can complete.
func (n *Net) TrackAlloc(p *pipeline.Pipeline) {
	n.mu.Lock()
	n.pending[p] = struct{}{}
	n.mu.Unlock()
}

// TrackFree removes p from the pending set once its owning layout frees it.
func (n *Net) TrackFree(p *pipeline.Pipeline) {
	n.mu.Lock()
	delete(n.pending, p)
	n.mu.Unlock()
}

// PendingCount reports how many Pipelines are currently tracked as live.
func (n *Net) PendingCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// WorkerThread owns one Net, a task queue, and the cleaning/pending cron
// timers that drive its maintenance sweeps (§4.9).
type WorkerThread struct {
	logger *slog.Logger

	cleaningSchedule string
	pendingSchedule  string

	mu      sync.Mutex
	cond    *sync.Cond
	ready   bool
	readyOK bool
	stopped bool

	net    *Net
	tasks  chan task
	cron   *cron.Cron
	cancel context.CancelFunc

	// OnClean is invoked on the worker's own goroutine by the cleaning
	// timer; callers wire it to their buffer.Producer/PipelineLayout GC.
	OnClean func()
	// OnReload receives a swap-in function, invoked on the worker's own
	// goroutine at a quiescent point (no in-flight Process call).
	OnReload func(swap func())
}

// NewWorkerThread creates a WorkerThread. Call Start to spawn it.
func NewWorkerThread(logger *slog.Logger, cleaningSchedule, pendingSchedule string) *WorkerThread {
	if logger == nil {
		logger = slog.Default()
	}
	if cleaningSchedule == "" {
		cleaningSchedule = DefaultCleaningSchedule
	}
	if pendingSchedule == "" {
		pendingSchedule = DefaultPendingSchedule
	}
	w := &WorkerThread{
		logger:           logger,
		cleaningSchedule: cleaningSchedule,
		pendingSchedule:  pendingSchedule,
		net:              newNet(),
		tasks:            make(chan task, 64),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Net returns the thread's per-thread event loop handle.
func (w *WorkerThread) Net() *Net { return w.net }

// PendingCount reports how many Pipelines this thread's Net currently
// tracks as live, satisfying cron.PendingCounter.
func (w *WorkerThread) PendingCount() int { return w.net.PendingCount() }

// Start spawns the thread's goroutine, installs the cleaning and pending
// timers, and blocks until the thread signals ready (or failure). Returns
// false iff the thread failed to come up (§4.9 "start()").
func (w *WorkerThread) Start() bool {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	w.cron = cron.New(cron.WithParser(parser))
	if _, err := w.cron.AddFunc(w.cleaningSchedule, func() { w.post(w.runClean) }); err != nil {
		w.logger.Error("worker: invalid cleaning schedule", "error", err)
		return false
	}
	if _, err := w.cron.AddFunc(w.pendingSchedule, func() { w.post(w.signalPendingRecount) }); err != nil {
		w.logger.Error("worker: invalid pending schedule", "error", err)
		return false
	}

	go w.loop(ctx)

	w.mu.Lock()
	for !w.ready {
		w.cond.Wait()
	}
	ok := w.readyOK
	w.mu.Unlock()
	return ok
}

func (w *WorkerThread) loop(ctx context.Context) {
	w.cron.Start()

	w.mu.Lock()
	w.ready = true
	w.readyOK = true
	w.cond.Broadcast()
	w.mu.Unlock()

	for {
		select {
		case t := <-w.tasks:
			t()
		case <-ctx.Done():
			w.drainRemaining()
			w.mu.Lock()
			w.stopped = true
			w.cond.Broadcast()
			w.mu.Unlock()
			return
		}
	}
}

func (w *WorkerThread) drainRemaining() {
	for {
		select {
		case t := <-w.tasks:
			t()
		default:
			return
		}
	}
}

func (w *WorkerThread) post(t task) {
	select {
	case w.tasks <- t:
	default:
		w.logger.Warn("worker: task queue full, dropping task")
	}
}

func (w *WorkerThread) runClean() {
	if w.OnClean != nil {
		w.OnClean()
	}
}

func (w *WorkerThread) signalPendingRecount() {
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// Post schedules fn to run on the worker's own goroutine, for callbacks
// originating off-thread (e.g. a filter's idle timer) that need to touch
// state normally only ever touched during Process.
func (w *WorkerThread) Post(fn func()) {
	w.post(fn)
}

// Reload posts a reconfiguration task; swap runs on the worker's own
// goroutine, guaranteed not to race a Process call (§4.9 "reload()").
func (w *WorkerThread) Reload(swap func()) {
	w.post(func() {
		if w.OnReload != nil {
			w.OnReload(swap)
		} else {
			swap()
		}
	})
}

// Stop posts a shutdown task. If force is true, pending pipelines are
// counted but not awaited. Otherwise Stop blocks until PendingCount hits
// zero or timeout elapses. Returns the number of pipelines still pending
// when Stop returned (§4.9 "stop(force)").
func (w *WorkerThread) Stop(force bool, timeout time.Duration) int {
	if w.cancel != nil {
		w.cancel()
	}

	if force {
		w.waitStopped(0)
		return w.net.PendingCount()
	}

	deadline := time.Now().Add(timeout)
	for w.net.PendingCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	w.waitStopped(timeout)
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
	return w.net.PendingCount()
}

func (w *WorkerThread) waitStopped(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		w.mu.Lock()
		for !w.stopped {
			w.cond.Wait()
		}
		w.mu.Unlock()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
