// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for the relay runtime.
package config

import "time"

// Config is the top-level runtime configuration. It intentionally covers
// only the knobs the worker-thread supervisor needs at startup; pipeline
// layouts themselves are not configured here — they are registered in code
// or by the (out-of-scope) scripting host.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Workers is the number of WorkerThreads to start. Zero means use
	// DefaultWorkerCount.
	Workers int `yaml:"workers,omitempty"`

	// Pool configures the PipelineLayout free-list caps.
	Pool PoolConfig `yaml:"pool,omitempty"`

	// Timers configures the cleaning and pending-count cron schedules.
	Timers TimerConfig `yaml:"timers,omitempty"`

	// Tracing configures the optional OTLP exporter. A nil/empty Endpoint
	// disables tracing (a no-op tracer provider is installed instead).
	Tracing TracingConfig `yaml:"tracing,omitempty"`

	// ShutdownTimeout bounds a graceful WorkerThread.Stop(force=false).
	// Zero means 10 seconds.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// PoolConfig bounds the number of recycled Pipeline instances a
// PipelineLayout retains before surplus frees are destroyed outright.
type PoolConfig struct {
	// MaxIdlePipelines is checked by Validate but is not applied to any
	// PipelineLayout by this module; layouts keep
	// pipeline.DefaultMaxIdlePipelines unless their builder calls SetMaxPool.
	MaxIdlePipelines int `yaml:"max_idle_pipelines,omitempty"`
}

// TimerConfig holds the cron expressions driving WorkerThread maintenance.
type TimerConfig struct {
	// CleaningSchedule runs the chunk/pipeline GC sweep. Empty means use
	// DefaultCleaningSchedule.
	CleaningSchedule string `yaml:"cleaning_schedule,omitempty"`

	// PendingSchedule recounts undrained pipelines. Empty means use
	// DefaultPendingSchedule.
	PendingSchedule string `yaml:"pending_schedule,omitempty"`
}

// TracingConfig holds OTLP exporter settings.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector address, e.g. "localhost:4318".
	// Empty disables tracing.
	Endpoint string `yaml:"endpoint,omitempty"`

	// ServiceName identifies this process in exported spans.
	ServiceName string `yaml:"service_name,omitempty"`

	// Insecure disables TLS when talking to the collector.
	Insecure bool `yaml:"insecure,omitempty"`
}
