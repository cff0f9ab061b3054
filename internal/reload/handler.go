package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowmesh/relay/internal/config"
)

// Applier swaps in a freshly loaded Config, typically re-deriving
// PipelineLayouts from it and posting a worker.WorkerThread.Reload for
// each running worker.
type Applier interface {
	ApplyConfig(cfg *config.Config) error
}

// Handler loads configuration from disk and hands it to an Applier.
type Handler struct {
	apply  Applier
	logger *slog.Logger
}

// NewHandler creates a reload handler.
func NewHandler(apply Applier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{apply: apply, logger: logger}
}

// HandleReload loads a fresh config from disk, validates it, and applies it.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.HandleReloadFromConfig(ctx, cfg)
}

// HandleReloadFromConfig applies a pre-loaded, already-validated config. The
// caller is responsible for calling config.Validate beforehand — it is not
// re-validated here.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}
	if err := h.apply.ApplyConfig(cfg); err != nil {
		return fmt.Errorf("applying reloaded config: %w", err)
	}
	h.logger.Info("configuration reloaded successfully")
	return nil
}
