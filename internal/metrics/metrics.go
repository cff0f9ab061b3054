// Package metrics exposes the process's Prometheus collectors: pipeline
// allocation/free counts, pool hit rate, demuxer stream occupancy, deframer
// errors, and worker pending-pipeline counts.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PipelineAllocTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_pipeline_alloc_total",
		Help: "Pipelines handed out by PipelineLayout.Alloc, by layout name.",
	}, []string{"layout"})

	PipelineFreeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_pipeline_free_total",
		Help: "Pipelines returned via PipelineLayout.Free, by layout name.",
	}, []string{"layout"})

	PipelinePoolHitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_pipeline_pool_hit_total",
		Help: "Alloc calls satisfied from the idle pool rather than a fresh build, by layout name.",
	}, []string{"layout"})

	PipelineActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_pipeline_active",
		Help: "Currently allocated (not yet freed) Pipeline instances, by layout name.",
	}, []string{"layout"})

	DemuxActiveStreams = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_demux_active_streams",
		Help: "Streams a QueueDemuxer currently has open, by demuxer label.",
	}, []string{"demux"})

	DeframerErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_deframer_errors_total",
		Help: "Frame decode failures surfaced by a Deframer, by reason.",
	}, []string{"reason"})

	WorkerPending = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_worker_pending_pipelines",
		Help: "Pipeline instances currently tracked as live by a WorkerThread's Net, by worker.",
	}, []string{"worker"})
)

var registerOnce sync.Once

// MustRegister registers every collector against reg. Safe to call from
// multiple App instances (e.g. in tests) — registration against the
// default registerer only happens once per process. A nil reg registers
// against prometheus.DefaultRegisterer.
func MustRegister(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
		registerOnce.Do(func() { mustRegister(reg) })
		return
	}
	mustRegister(reg)
}

func mustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		PipelineAllocTotal,
		PipelineFreeTotal,
		PipelinePoolHitTotal,
		PipelineActive,
		DemuxActiveStreams,
		DeframerErrorsTotal,
		WorkerPending,
	)
}

// Handler returns the HTTP handler serving the registered collectors in the
// Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
