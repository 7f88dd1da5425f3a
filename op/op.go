// File: op/op.go
// Author: momentics <momentics@gmail.com>
//
// Awaitable operations over the concrete-operation contract.

package op

import (
	"github.com/momentics/aiocore/api"
)

// StartFunc arms the kernel call for an operation. It returns pending=true
// when the operation will complete asynchronously through the reactor, and
// pending=false when it completed synchronously, in which case the hook has
// already populated the result fields of the state. A non-nil error is a
// construction failure: nothing was armed and the caller never suspends.
//
// Everything from the first kernel-arming side effect onwards must be
// infallible; allocations the operation needs later happen before this
// hook runs.
type StartFunc func(*State) (pending bool, err error)

// CancelFunc requests kernel cancellation of a pending operation. It must
// be safe to call concurrently with completion delivery, and it must
// guarantee that a completion is eventually delivered for the operation —
// the kernel's own (carrying a cancellation status) or a synthetic one
// posted after disarming. Calling Complete twice on the same state is
// harmless, so the hook need not coordinate with an in-flight completion.
type CancelFunc func(*State)

// ExtractFunc translates the backend result into the concrete result.
type ExtractFunc func(*State) (int, error)

// Operation is a non-cancellable awaitable operation.
type Operation struct {
	state   State
	start   StartFunc
	extract ExtractFunc
}

// New binds a non-cancellable operation to its start hook.
func New(start StartFunc, extract ExtractFunc) *Operation {
	return &Operation{start: start, extract: extract}
}

// State exposes the operation's state to the concrete hooks.
func (o *Operation) State() *State { return &o.state }

// Await runs the operation to completion: it arms the kernel call and, if
// the operation is pending, parks the calling goroutine until an event-loop
// worker resumes it. A synchronously completed operation returns without
// the reactor ever resuming anything.
func (o *Operation) Await() (int, error) {
	st := &o.state
	done := make(chan struct{})
	st.cont = func() { close(done) }

	// The completer may run before the start hook returns; the phase is
	// published first so it observes Started.
	st.phase.Store(PhaseStarted)
	pending, err := o.start(st)
	if err != nil {
		return 0, err
	}
	if pending {
		<-done
	}
	return o.finish(st)
}

func (o *Operation) finish(st *State) (int, error) {
	if o.extract != nil {
		return o.extract(st)
	}
	return st.Result, st.Err
}

// Cancellable is an awaitable operation observing a cancellation token.
type Cancellable struct {
	state   State
	start   StartFunc
	cancel  CancelFunc
	extract ExtractFunc
	token   api.Token
}

// NewCancellable binds a cancellable operation to its hooks and token. A
// nil token degrades to the non-cancellable path.
func NewCancellable(start StartFunc, cancel CancelFunc, extract ExtractFunc, token api.Token) *Cancellable {
	return &Cancellable{start: start, cancel: cancel, extract: extract, token: token}
}

// State exposes the operation's state to the concrete hooks.
func (c *Cancellable) State() *State { return &c.state }

// Await runs the operation to completion or cancellation. A token that is
// already cancelled short-circuits before anything is armed. Otherwise the
// cancellation callback is registered before the kernel call so that a
// registration failure can never leak an armed operation, and the
// start/cancel/complete race is resolved through the phase CAS protocol.
func (c *Cancellable) Await() (int, error) {
	st := &c.state

	if c.token != nil && c.token.IsCancellationRequested() {
		st.canceled.Store(true)
		st.phase.Store(PhaseCompleted)
		return 0, api.ErrCanceled
	}

	done := make(chan struct{})
	st.cont = func() { close(done) }

	suspended, err := c.suspend(st)
	if err != nil {
		return 0, err
	}
	if suspended {
		<-done
	}

	// Resume order: compute the cancelled verdict, release the
	// registration, then surface the result. A registration callback's
	// teardown may touch state the extractor reads, so the release
	// happens strictly between the two.
	canceled := st.canceled.Load()
	st.releaseRegistration()
	if canceled {
		return 0, api.ErrCanceled
	}
	if c.extract != nil {
		return c.extract(st)
	}
	return st.Result, st.Err
}

// suspend implements the starter side. It reports whether the caller must
// park and wait for a resume.
func (c *Cancellable) suspend(st *State) (bool, error) {
	if c.token == nil || !c.token.CanBeCanceled() {
		// No cancellation possible: commit Started up front and run the
		// plain two-party protocol with the completer.
		st.phase.Store(PhaseStarted)
		pending, err := c.start(st)
		if err != nil {
			return false, err
		}
		return pending, nil
	}

	// Register the cancellation callback before starting: a failure here
	// surfaces without having leaked an armed kernel call. The phase
	// stays NotStarted so a callback firing during the start hook can
	// hand the cancellation duty to this goroutine.
	reg, err := c.token.Register(func() { c.onCancel(st) })
	if err != nil {
		return false, err
	}
	st.reg = reg

	pending, err := c.start(st)
	if err != nil {
		st.releaseRegistration()
		return false, err
	}
	if !pending {
		// Synchronous completion; the registration is released on the
		// resume path.
		return false, nil
	}

	if st.phase.CompareAndSwap(PhaseNotStarted, PhaseStarted) {
		return true, nil
	}

	switch st.phase.Load() {
	case PhaseCancellationRequested:
		// The callback arrived first and handed the duty over: request
		// kernel cancellation on this thread, then race the completer
		// for the Started slot.
		st.canceled.Store(true)
		if c.cancel != nil {
			c.cancel(st)
		}
		if st.phase.CompareAndSwap(PhaseCancellationRequested, PhaseStarted) {
			return true, nil
		}
		// Lost to Completed: the completer already finished and did not
		// resume; extract inline.
		return false, nil
	default:
		// Completed: the completer won outright; do not suspend.
		return false, nil
	}
}

// onCancel is the cancellation callback; it may run on any goroutine.
func (c *Cancellable) onCancel(st *State) {
	if st.phase.CompareAndSwap(PhaseNotStarted, PhaseCancellationRequested) {
		// The starter has not committed yet; it will observe the
		// transfer and perform the kernel cancel itself.
		return
	}
	if st.phase.Load() != PhaseCompleted {
		st.canceled.Store(true)
		if c.cancel != nil {
			c.cancel(st)
		}
	}
}
