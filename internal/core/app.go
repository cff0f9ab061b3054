// Package core supervises the WorkerThread pool for the lifetime of the
// process: starting it, reacting to SIGHUP by reloading every thread's
// PipelineLayouts, and to SIGTERM/SIGINT by draining then forcing a stop.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/flowmesh/relay/internal/config"
	"github.com/flowmesh/relay/internal/cron"
	"github.com/flowmesh/relay/internal/metrics"
	"github.com/flowmesh/relay/internal/telemetry"
	"github.com/flowmesh/relay/internal/worker"
)

// DefaultWorkerCount is used when Config.Workers is zero.
const DefaultWorkerCount = 4

// LayoutSource builds the set of PipelineLayouts a worker should run,
// re-invoked on every reload.
type LayoutSource func() error

// App owns the worker pool and the signal-driven reload/shutdown loop.
type App struct {
	logger *slog.Logger
	cfg    *config.Config

	reloadLayouts LayoutSource

	mu        sync.Mutex
	workers   []*worker.WorkerThread
	scheduler *cron.Scheduler
	tracing   *telemetry.Provider
}

// Tracing returns the active telemetry.Provider, valid after Start. Layout
// construction code uses it to install a pipeline.SpanHook via
// telemetry.NewLayoutSpanHook.
func (a *App) Tracing() *telemetry.Provider {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tracing
}

// NewApp creates an App. reloadLayouts is called once at startup and again
// on every SIGHUP; it is expected to call WorkerThread.Reload itself for
// each worker it cares about.
func NewApp(logger *slog.Logger, cfg *config.Config, reloadLayouts LayoutSource) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{logger: logger, cfg: cfg, reloadLayouts: reloadLayouts}
}

// Start brings up the configured number of WorkerThreads. Returns an error
// naming the first thread that failed to reach ready.
func (a *App) Start() error {
	n := a.cfg.Workers
	if n <= 0 {
		n = DefaultWorkerCount
	}

	metrics.MustRegister(nil)

	tracing, err := telemetry.New(context.Background(), a.cfg.Tracing)
	if err != nil {
		return fmt.Errorf("starting telemetry: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.tracing = tracing
	for i := 0; i < n; i++ {
		w := worker.NewWorkerThread(a.logger, a.cfg.Timers.CleaningSchedule, a.cfg.Timers.PendingSchedule)
		if !w.Start() {
			return errStartFailed(i)
		}
		a.workers = append(a.workers, w)
	}

	a.scheduler = cron.NewScheduler(a.logger)
	counters := make([]cron.PendingCounter, len(a.workers))
	for i, w := range a.workers {
		counters[i] = w
	}
	if err := a.scheduler.RegisterJob(&cron.PendingRecountJob{
		Logger:  a.logger,
		Workers: counters,
		OnSample: func(workerIndex int, pending int) {
			metrics.ObserveWorkerPending(fmt.Sprintf("%d", workerIndex), pending)
		},
	}); err != nil {
		return fmt.Errorf("registering pending recount job: %w", err)
	}
	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("starting cron scheduler: %w", err)
	}

	if a.reloadLayouts != nil {
		if err := a.reloadLayouts(); err != nil {
			return err
		}
	}
	return nil
}

// ApplyConfig re-derives worker pool sizing from cfg and posts a Reload to
// every running worker, satisfying reload.Applier. Growing Workers starts
// additional threads (though the pending-count scheduler job only samples
// the workers present at Start, until the next restart); shrinking it is
// left to the next full restart, since picking which live worker to drain
// mid-flight is a policy decision outside this type's scope.
func (a *App) ApplyConfig(cfg *config.Config) error {
	a.mu.Lock()
	a.cfg = cfg
	want := cfg.Workers
	if want <= 0 {
		want = DefaultWorkerCount
	}
	for len(a.workers) < want {
		w := worker.NewWorkerThread(a.logger, cfg.Timers.CleaningSchedule, cfg.Timers.PendingSchedule)
		if !w.Start() {
			a.mu.Unlock()
			return errStartFailed(len(a.workers))
		}
		a.workers = append(a.workers, w)
	}
	workers := append([]*worker.WorkerThread(nil), a.workers...)
	a.mu.Unlock()

	for _, w := range workers {
		w.Reload(func() {})
	}

	if a.reloadLayouts != nil {
		return a.reloadLayouts()
	}
	return nil
}

// Workers returns the live WorkerThreads, for wiring PipelineLayouts into.
func (a *App) Workers() []*worker.WorkerThread {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*worker.WorkerThread, len(a.workers))
	copy(out, a.workers)
	return out
}

// Run installs SIGHUP/SIGTERM/SIGINT handlers and blocks until ctx is
// cancelled or a terminating signal arrives, then drains every worker.
func (a *App) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			a.shutdown(false)
			return ctx.Err()
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				a.logger.Info("core: SIGHUP received, reloading")
				if a.reloadLayouts != nil {
					if err := a.reloadLayouts(); err != nil {
						a.logger.Error("core: reload failed", "error", err)
					}
				}
			default:
				a.logger.Info("core: terminating signal received, shutting down", "signal", sig.String())
				a.shutdown(false)
				return nil
			}
		}
	}
}

// Shutdown stops every worker gracefully, escalating to a forced stop for
// any that is still draining after ShutdownTimeout. Exported for callers
// that run their own signal loop instead of using Run.
func (a *App) Shutdown(force bool) {
	a.shutdown(force)
}

// shutdown stops every worker gracefully, escalating to a forced stop for
// any that is still draining after ShutdownTimeout.
func (a *App) shutdown(force bool) {
	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	for _, w := range a.Workers() {
		remaining := w.Stop(force, timeout)
		if remaining > 0 {
			a.logger.Warn("core: worker still had pending pipelines at shutdown, forcing", "pending", remaining)
			w.Stop(true, 0)
		}
	}

	a.mu.Lock()
	sched := a.scheduler
	tracing := a.tracing
	a.mu.Unlock()
	if sched != nil {
		_ = sched.Stop(context.Background())
	}
	if tracing != nil {
		_ = tracing.Shutdown(context.Background())
	}
}

type errStartFailed int

func (e errStartFailed) Error() string {
	return fmt.Sprintf("core: worker thread %d failed to start", int(e))
}
