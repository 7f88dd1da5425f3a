// File: cancel/token.go
// Author: momentics <momentics@gmail.com>
//
// Cancellation source, token and scoped registration.

package cancel

import (
	"sync"

	"github.com/momentics/aiocore/api"
)

// tokenState is shared between a Source and all Tokens derived from it.
type tokenState struct {
	mu       sync.Mutex
	cond     *sync.Cond
	canceled bool
	nextID   uint64
	regs     map[uint64]*Registration

	// pendingCancel holds the ids snapshotted by Cancel whose callbacks
	// have not finished yet; Detach waits on it.
	pendingCancel map[uint64]struct{}
}

func newTokenState() *tokenState {
	st := &tokenState{regs: make(map[uint64]*Registration)}
	st.cond = sync.NewCond(&st.mu)
	return st
}

// Source owns the right to request cancellation.
type Source struct {
	st *tokenState
}

// NewSource creates a cancellation source with no cancellation requested.
func NewSource() *Source {
	return &Source{st: newTokenState()}
}

// Cancel requests cancellation and synchronously invokes every registered
// callback, each exactly once. Subsequent calls are no-ops.
func (s *Source) Cancel() {
	st := s.st
	st.mu.Lock()
	if st.canceled {
		st.mu.Unlock()
		return
	}
	st.canceled = true
	pending := st.regs
	st.regs = make(map[uint64]*Registration)
	st.pendingCancel = make(map[uint64]struct{}, len(pending))
	for id := range pending {
		st.pendingCancel[id] = struct{}{}
	}
	for id, r := range pending {
		st.mu.Unlock()
		r.cb()
		st.mu.Lock()
		delete(st.pendingCancel, id)
		st.cond.Broadcast()
	}
	st.mu.Unlock()
}

// IsCancellationRequested reports whether Cancel has been called.
func (s *Source) IsCancellationRequested() bool {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.canceled
}

// Token returns a token observing this source.
func (s *Source) Token() Token {
	return Token{st: s.st}
}

// Token observes a Source. The zero Token can never be cancelled.
type Token struct {
	st *tokenState
}

// None is the token that can never be cancelled.
var None = Token{}

var _ api.Token = Token{}

// CanBeCanceled reports whether the token is attached to a source.
func (t Token) CanBeCanceled() bool {
	return t.st != nil
}

// IsCancellationRequested reports whether the source has been cancelled.
func (t Token) IsCancellationRequested() bool {
	if t.st == nil {
		return false
	}
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	return t.st.canceled
}

// Register binds cb to the token. If cancellation has already been
// requested, cb runs synchronously on the calling goroutine and the
// returned registration is already detached. Otherwise cb will run exactly
// once on the goroutine that calls Cancel, unless Detach removes it first.
func (t Token) Register(cb func()) (api.Registration, error) {
	if t.st == nil {
		return detachedRegistration{}, nil
	}
	st := t.st
	st.mu.Lock()
	if st.canceled {
		st.mu.Unlock()
		cb()
		return detachedRegistration{}, nil
	}
	id := st.nextID
	st.nextID++
	r := &Registration{st: st, id: id, cb: cb}
	st.regs[id] = r
	st.mu.Unlock()
	return r, nil
}

// Registration is a scoped (token, callback) binding.
type Registration struct {
	st *tokenState
	id uint64
	cb func()
}

// Detach atomically removes the binding. If the callback is executing on
// another goroutine, Detach blocks until it has finished. Detach must not
// be called from the registration's own callback.
func (r *Registration) Detach() {
	st := r.st
	st.mu.Lock()
	if _, ok := st.regs[r.id]; ok {
		delete(st.regs, r.id)
		st.mu.Unlock()
		return
	}
	for {
		if _, pending := st.pendingCancel[r.id]; !pending {
			break
		}
		st.cond.Wait()
	}
	st.mu.Unlock()
}

// detachedRegistration is returned where there is nothing to detach.
type detachedRegistration struct{}

func (detachedRegistration) Detach() {}
