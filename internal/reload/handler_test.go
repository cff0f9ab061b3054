package reload

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/flowmesh/relay/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingApplier struct {
	applied []*config.Config
	err     error
}

func (a *recordingApplier) ApplyConfig(cfg *config.Config) error {
	a.applied = append(a.applied, cfg)
	return a.err
}

func TestHandler_HandleReload_FileNotFound(t *testing.T) {
	a := &recordingApplier{}
	h := NewHandler(a, testLogger())

	err := h.HandleReload(context.Background(), "/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing config file")
	}
	if len(a.applied) != 0 {
		t.Error("expected ApplyConfig not to be called")
	}
}

func TestHandler_HandleReload_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("workers: -1\n"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	a := &recordingApplier{}
	h := NewHandler(a, testLogger())

	err := h.HandleReload(context.Background(), path)
	if err == nil {
		t.Error("expected validation error")
	}
	if len(a.applied) != 0 {
		t.Error("expected ApplyConfig not to be called for an invalid config")
	}
}

func TestHandler_HandleReload_ValidConfig_AppliesIt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ok.yaml")
	if err := os.WriteFile(path, []byte("version: \"1\"\nworkers: 2\n"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	a := &recordingApplier{}
	h := NewHandler(a, testLogger())

	if err := h.HandleReload(context.Background(), path); err != nil {
		t.Fatalf("HandleReload: %v", err)
	}
	if len(a.applied) != 1 || a.applied[0].Workers != 2 {
		t.Fatalf("expected ApplyConfig called once with Workers=2, got %+v", a.applied)
	}
}

func TestHandler_HandleReloadFromConfig_CancelledContext(t *testing.T) {
	a := &recordingApplier{}
	h := NewHandler(a, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	cfg := &config.Config{Version: "1"}
	err := h.HandleReloadFromConfig(ctx, cfg)
	if err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestHandler_HandleReloadFromConfig_ApplierError(t *testing.T) {
	a := &recordingApplier{err: context.DeadlineExceeded}
	h := NewHandler(a, testLogger())

	cfg := &config.Config{Version: "1"}
	if err := h.HandleReloadFromConfig(context.Background(), cfg); err == nil {
		t.Error("expected error propagated from Applier")
	}
}
