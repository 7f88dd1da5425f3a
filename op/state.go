// File: op/state.go
// Author: momentics <momentics@gmail.com>
//
// Per-operation mutable state and the completion-side algorithm.

package op

import (
	"sync/atomic"

	"github.com/momentics/aiocore/api"
)

// State is the per-operation record: lifecycle phase, suspended
// continuation, cancellation registration and the backend result fields.
// It lives on the awaiting goroutine's frame; the reactor holds it only
// through the Completer interface while the operation is in flight.
type State struct {
	phase    atomic.Uint32
	canceled atomic.Bool

	// cont is the one-shot continuation, stored before the start hook
	// runs and synchronised by the phase transition that publishes it.
	cont func()

	// completeFn collects the raw result at completion time on
	// readiness backends (the syscall is re-performed when the handle
	// signals ready). Nil on completion-port backends, where the result
	// arrives with the completion packet.
	completeFn func() (int, error)

	// Result and Err are the backend result: transferred byte count and
	// OS-native status. Written by completeFn, SetCompletion or the
	// start hook (synchronous completion) before the phase reaches
	// Completed.
	Result int
	Err    error

	reg api.Registration
}

// SetCompleteFunc installs the completion collector. Start hooks on
// readiness backends call this before arming the reactor.
func (s *State) SetCompleteFunc(fn func() (int, error)) {
	s.completeFn = fn
}

// SetCompletion records the backend result directly. Completion-port
// backends call this while resolving the completion packet; concrete
// cancel hooks use it to stamp a synthetic result.
func (s *State) SetCompletion(bytes uint32, err error) {
	s.Result = int(bytes)
	s.Err = err
}

// MarkCanceled marks the operation cancelled. Concrete cancel hooks call
// it before posting a synthetic completion so the completion side never
// mistakes the synthetic message for a successful transfer.
func (s *State) MarkCanceled() {
	s.canceled.Store(true)
}

// Canceled reports whether the operation has been marked cancelled.
func (s *State) Canceled() bool {
	return s.canceled.Load()
}

// Complete runs the completion side of the state machine on the event-loop
// worker that dequeued the callback message. It collects the result unless
// the op was already marked cancelled, then resolves the race against the
// suspending starter: whichever side observes the other's transition is
// responsible for (not) resuming.
func (s *State) Complete() {
	if !s.canceled.Load() && s.completeFn != nil {
		s.Result, s.Err = s.completeFn()
	}

	if s.phase.CompareAndSwap(PhaseStarted, PhaseCompleted) {
		// The starter has committed to suspension; this side resumes.
		s.resume()
		return
	}

	old := s.phase.Swap(PhaseCompleted)
	if old == PhaseStarted {
		s.resume()
		return
	}
	// NotStarted or CancellationRequested: the suspend call is still in
	// progress and will observe Completed on its next step; it returns
	// "do not suspend" and the caller extracts the result inline.
}

// resume fires the one-shot continuation.
func (s *State) resume() {
	cont := s.cont
	s.cont = nil
	if cont != nil {
		cont()
	}
}

// releaseRegistration detaches the cancellation registration, if any. It
// runs on the resume path before the result is surfaced so that the token
// is freed promptly even while enclosing combinators are still pending.
func (s *State) releaseRegistration() {
	if s.reg != nil {
		s.reg.Detach()
		s.reg = nil
	}
}
