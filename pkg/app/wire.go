package app

import "github.com/flowmesh/relay/internal/config"

// LayoutRegistry holds the PipelineLayouts the running process serves,
// wired up in code rather than from YAML (per config.Config's doc comment:
// pipeline layouts are registered in code or by an out-of-scope scripting
// host, not by this config format).
type LayoutRegistry struct {
	onReload func(*config.Config) error
}

// NewLayoutRegistry creates an empty registry. Callers install their own
// PipelineLayout construction by calling SetOnReload before Start.
func NewLayoutRegistry() *LayoutRegistry {
	return &LayoutRegistry{}
}

// SetOnReload installs the hook invoked by Reload; wiring code sets this to
// rebuild/swap its PipelineLayouts from the new Config (typically via
// WorkerThread.Reload on each running worker).
func (r *LayoutRegistry) SetOnReload(fn func(*config.Config) error) {
	r.onReload = fn
}

// Reload re-derives layouts from cfg, delegating to the installed hook. A
// registry with no hook installed is a no-op, matching config.Config's
// contract that layouts are optional startup wiring, not a required field.
func (r *LayoutRegistry) Reload(cfg *config.Config) error {
	if r.onReload == nil {
		return nil
	}
	return r.onReload(cfg)
}
