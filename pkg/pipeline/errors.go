// Package pipeline implements the event-flow runtime: PipelineLayout,
// Pipeline, Filter, and the re-entrant Input/Output linkage they use to
// pass events downstream.
package pipeline

import "errors"

// Sentinel errors for pipeline operations.
var (
	// ErrUnboundLayout is returned by Alloc when the layout has not been
	// bound — fatal to the caller, reported synchronously (§7).
	ErrUnboundLayout = errors.New("pipeline: layout not bound")

	// ErrUnknownChild is returned by SubPipeline when the requested child
	// layout index is out of range.
	ErrUnknownChild = errors.New("pipeline: unknown child layout index")

	// ErrAlreadyBound is returned by Bind when called more than once — a
	// layout's filter sequence does not change after binding.
	ErrAlreadyBound = errors.New("pipeline: layout already bound")
)
