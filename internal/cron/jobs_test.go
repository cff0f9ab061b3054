package cron

import (
	"context"
	"log/slog"
	"testing"
)

type fakeLayout struct {
	name      string
	allocated int64
	active    int
}

func (l *fakeLayout) Name() string      { return l.name }
func (l *fakeLayout) Allocated() int64  { return l.allocated }
func (l *fakeLayout) Active() int       { return l.active }

func TestLayoutCleanupJob_NameAndSchedule(t *testing.T) {
	t.Parallel()
	j := &LayoutCleanupJob{Logger: slog.Default()}
	if j.Name() != "layout_cleanup" {
		t.Errorf("name = %q, want %q", j.Name(), "layout_cleanup")
	}
	if j.Schedule() != "*/1 * * * *" {
		t.Errorf("schedule = %q, want default", j.Schedule())
	}

	j.ScheduleExpr = "*/5 * * * *"
	if j.Schedule() != "*/5 * * * *" {
		t.Errorf("schedule = %q, want override", j.Schedule())
	}
}

func TestLayoutCleanupJob_Run_SweepsEveryLayout(t *testing.T) {
	t.Parallel()
	var swept []string
	j := &LayoutCleanupJob{
		Logger:  slog.Default(),
		Layouts: []LayoutPool{&fakeLayout{name: "a"}, &fakeLayout{name: "b"}},
		Clean:   func(l LayoutPool) { swept = append(swept, l.Name()) },
	}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(swept) != 2 || swept[0] != "a" || swept[1] != "b" {
		t.Fatalf("swept = %v, want [a b]", swept)
	}
}

func TestLayoutCleanupJob_Run_CancelledContext(t *testing.T) {
	t.Parallel()
	j := &LayoutCleanupJob{
		Logger:  slog.Default(),
		Layouts: []LayoutPool{&fakeLayout{name: "a"}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

type fakeCounter struct{ n int }

func (c *fakeCounter) PendingCount() int { return c.n }

func TestPendingRecountJob_NameAndSchedule(t *testing.T) {
	t.Parallel()
	j := &PendingRecountJob{Logger: slog.Default()}
	if j.Name() != "pending_recount" {
		t.Errorf("name = %q, want %q", j.Name(), "pending_recount")
	}
	if j.Schedule() != "*/1 * * * *" {
		t.Errorf("schedule = %q, want default", j.Schedule())
	}
}

func TestPendingRecountJob_Run_SamplesEveryWorker(t *testing.T) {
	t.Parallel()
	samples := map[int]int{}
	j := &PendingRecountJob{
		Logger:   slog.Default(),
		Workers:  []PendingCounter{&fakeCounter{n: 3}, &fakeCounter{n: 0}},
		OnSample: func(i, n int) { samples[i] = n },
	}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if samples[0] != 3 || samples[1] != 0 {
		t.Fatalf("samples = %v, want {0:3, 1:0}", samples)
	}
}

func TestPendingRecountJob_Run_CancelledContext(t *testing.T) {
	t.Parallel()
	j := &PendingRecountJob{
		Logger:  slog.Default(),
		Workers: []PendingCounter{&fakeCounter{n: 1}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
