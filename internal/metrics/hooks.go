package metrics

import "github.com/flowmesh/relay/pkg/pipeline"

// LayoutHook adapts the package's collectors to pipeline.MetricsHook, so a
// PipelineLayout's Alloc/Free traffic shows up as Prometheus series without
// pkg/pipeline importing this package.
type LayoutHook struct{}

var _ pipeline.MetricsHook = LayoutHook{}

func (LayoutHook) Alloc(layout string)   { PipelineAllocTotal.WithLabelValues(layout).Inc() }
func (LayoutHook) Free(layout string)    { PipelineFreeTotal.WithLabelValues(layout).Inc() }
func (LayoutHook) PoolHit(layout string) { PipelinePoolHitTotal.WithLabelValues(layout).Inc() }

// ObserveLayout samples a layout's live-Pipeline count into the active
// gauge. Intended to be called from a LayoutCleanupJob sweep.
func ObserveLayout(name string, active int) {
	PipelineActive.WithLabelValues(name).Set(float64(active))
}

// ObserveWorkerPending samples a worker's pending-pipeline count.
func ObserveWorkerPending(worker string, pending int) {
	WorkerPending.WithLabelValues(worker).Set(float64(pending))
}

// DemuxStreamsFunc returns a callback suitable for Demux.OnActiveStreamsChanged
// that reports the named demuxer's open-stream count.
func DemuxStreamsFunc(name string) func(int) {
	return func(n int) {
		DemuxActiveStreams.WithLabelValues(name).Set(float64(n))
	}
}

// DeframerErrorFunc returns a callback suitable for Deframer.SetOnError that
// increments the error counter under reason.
func DeframerErrorFunc(reason string) func() {
	return func() {
		DeframerErrorsTotal.WithLabelValues(reason).Inc()
	}
}
