// File: op/phase.go
// Author: momentics <momentics@gmail.com>
//
// Operation lifecycle phase.

package op

// Phase is the lifecycle phase of an operation. It is monotonic except
// that Started and CancellationRequested may be observed in either order;
// only Completed is terminal.
//
// All phase transitions go through sync/atomic, whose sequentially
// consistent ordering subsumes the release-on-publish / acquire-on-observe
// discipline the algorithm requires: every field written before a phase
// transition is visible to the actor that observes it.
type Phase = uint32

const (
	// PhaseNotStarted is the initial phase, held until the starter
	// commits the operation as asynchronous.
	PhaseNotStarted Phase = iota
	// PhaseStarted means the operation is pending in the reactor.
	PhaseStarted
	// PhaseCancellationRequested means a cancellation callback observed
	// NotStarted and transferred the duty to cancel to the starter.
	PhaseCancellationRequested
	// PhaseCompleted is terminal; exactly one actor stores it.
	PhaseCompleted
)
