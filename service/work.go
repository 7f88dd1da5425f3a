// File: service/work.go
// Author: momentics <momentics@gmail.com>
//
// Scoped work tracking: the service stops automatically when the last
// unit of tracked work finishes.

package service

import "sync"

// WorkScope pairs NotifyWorkStarted with NotifyWorkFinished. Constructing
// the scope records the work; Done releases it exactly once.
type WorkScope struct {
	svc  *Service
	once sync.Once
}

// NewWorkScope records one unit of work against s.
func NewWorkScope(s *Service) *WorkScope {
	s.NotifyWorkStarted()
	return &WorkScope{svc: s}
}

// Service returns the tracked service.
func (w *WorkScope) Service() *Service { return w.svc }

// Done releases the unit of work. Safe to call multiple times; only the
// first call counts.
func (w *WorkScope) Done() {
	w.once.Do(w.svc.NotifyWorkFinished)
}
