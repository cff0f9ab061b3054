package core

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/flowmesh/relay/internal/config"
)

func testConfig(workers int) *config.Config {
	return &config.Config{
		Version:         "1",
		Workers:         workers,
		ShutdownTimeout: 50 * time.Millisecond,
	}
}

func TestApp_StartAndShutdown(t *testing.T) {
	a := NewApp(slog.Default(), testConfig(2), nil)
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := len(a.Workers()); got != 2 {
		t.Fatalf("got %d workers, want 2", got)
	}
	a.Shutdown(false)
}

func TestApp_StartUsesDefaultWorkerCountWhenZero(t *testing.T) {
	a := NewApp(slog.Default(), testConfig(0), nil)
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Shutdown(true)

	if got := len(a.Workers()); got != DefaultWorkerCount {
		t.Errorf("got %d workers, want %d", got, DefaultWorkerCount)
	}
}

func TestApp_StartInvokesReloadLayoutsOnce(t *testing.T) {
	calls := 0
	a := NewApp(slog.Default(), testConfig(1), func() error {
		calls++
		return nil
	})
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Shutdown(true)

	if calls != 1 {
		t.Errorf("got %d reloadLayouts calls after Start, want 1", calls)
	}
}

func TestApp_ApplyConfigRereadsLayoutsAndReloadsWorkers(t *testing.T) {
	calls := 0
	a := NewApp(slog.Default(), testConfig(1), func() error {
		calls++
		return nil
	})
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Shutdown(true)

	if err := a.ApplyConfig(testConfig(1)); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	if calls != 2 {
		t.Errorf("got %d reloadLayouts calls after ApplyConfig, want 2", calls)
	}
}

func TestApp_ApplyConfigGrowsWorkerPool(t *testing.T) {
	a := NewApp(slog.Default(), testConfig(1), nil)
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Shutdown(true)

	if err := a.ApplyConfig(testConfig(3)); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	if got := len(a.Workers()); got != 3 {
		t.Errorf("got %d workers after growing, want 3", got)
	}
}

func TestApp_RunStopsOnContextCancel(t *testing.T) {
	a := NewApp(slog.Default(), testConfig(1), nil)
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestApp_ShutdownForceDoesNotBlockOnPending(t *testing.T) {
	a := NewApp(slog.Default(), testConfig(1), nil)
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		a.Shutdown(true)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forced shutdown did not return promptly")
	}
}
