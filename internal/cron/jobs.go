package cron

import (
	"context"
	"fmt"
	"log/slog"
)

// LayoutPool is the subset of pipeline.PipelineLayout a cleaning job needs:
// how many Pipelines are pooled/live, for logging and metrics.
type LayoutPool interface {
	Name() string
	Allocated() int64
	Active() int
}

// LayoutCleanupJob sweeps a set of PipelineLayouts, invoking Clean on each
// (typically trimming each layout's free-list and reporting pool pressure).
type LayoutCleanupJob struct {
	Logger       *slog.Logger
	Layouts      []LayoutPool
	Clean        func(LayoutPool)
	ScheduleExpr string // empty = default "*/1 * * * *"
}

var _ Job = (*LayoutCleanupJob)(nil)

func (j *LayoutCleanupJob) Name() string { return "layout_cleanup" }

func (j *LayoutCleanupJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/1 * * * *"
}

// Run sweeps every registered layout, logging pool pressure and invoking
// Clean if set.
func (j *LayoutCleanupJob) Run(ctx context.Context) error {
	for _, l := range j.Layouts {
		if ctx.Err() != nil {
			return fmt.Errorf("cron: layout cleanup cancelled: %w", ctx.Err())
		}
		if j.Clean != nil {
			j.Clean(l)
		}
		j.Logger.Debug("cron: layout swept", "layout", l.Name(), "allocated", l.Allocated(), "active", l.Active())
	}
	return nil
}

// PendingCounter reports a WorkerThread's live Pipeline count.
type PendingCounter interface {
	PendingCount() int
}

// PendingRecountJob periodically re-samples each worker's pending-pipeline
// count and hands each sample to OnSample (§4.9 "pending timer"). It does
// not signal the WorkerThread's stop/reload waiters.
type PendingRecountJob struct {
	Logger       *slog.Logger
	Workers      []PendingCounter
	OnSample     func(workerIndex int, pending int)
	ScheduleExpr string // empty = default "*/1 * * * *"
}

var _ Job = (*PendingRecountJob)(nil)

func (j *PendingRecountJob) Name() string { return "pending_recount" }

func (j *PendingRecountJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/1 * * * *"
}

func (j *PendingRecountJob) Run(ctx context.Context) error {
	for i, w := range j.Workers {
		if ctx.Err() != nil {
			return fmt.Errorf("cron: pending recount cancelled: %w", ctx.Err())
		}
		n := w.PendingCount()
		if j.OnSample != nil {
			j.OnSample(i, n)
		}
	}
	return nil
}
