// File: service/timer.go
// Author: momentics <momentics@gmail.com>
//
// Timed schedule operations and the backend chooser. The heap-ordered
// timer queue and the dedicated timer goroutine live in timer_queue.go and
// timer_thread.go; platforms with native timer completions use
// timer_native_*.go instead.

package service

import (
	"time"

	"github.com/momentics/aiocore/api"
)

// TimedScheduleOp is an awaitable whose completion means "resume on an I/O
// worker at or after the deadline". A cancellation request observed before
// the deadline resumes the awaiter early with ErrCanceled.
type TimedScheduleOp struct {
	svc        *Service
	resumeTime time.Time
	token      api.Token
}

// ScheduleAfter returns a timed schedule operation due after delay.
func (s *Service) ScheduleAfter(delay time.Duration, token api.Token) *TimedScheduleOp {
	return s.ScheduleAt(time.Now().Add(delay), token)
}

// ScheduleAt returns a timed schedule operation due at the absolute
// deadline. Deadlines are monotonic against the clock used here.
func (s *Service) ScheduleAt(deadline time.Time, token api.Token) *TimedScheduleOp {
	return &TimedScheduleOp{svc: s, resumeTime: deadline, token: token}
}

// Await parks the calling goroutine until an event-loop worker resumes it
// at or after the deadline, or until cancellation wins.
func (o *TimedScheduleOp) Await() error {
	if o.token != nil && o.token.IsCancellationRequested() {
		return api.ErrCanceled
	}
	if o.svc.useNativeTimers() {
		return o.svc.awaitNativeTimer(o)
	}
	return o.svc.awaitThreadTimer(o)
}

func (s *Service) useNativeTimers() bool {
	switch s.timerBackend {
	case TimerBackendNative:
		return true
	case TimerBackendThread:
		return false
	default:
		return s.nativeTimersAvailable()
	}
}

// awaitThreadTimer submits the entry to the dedicated timer goroutine and
// parks. The refcount-2 handoff makes exactly one of the two sides —
// submitter or timer goroutine — responsible for scheduling the
// resumption, closing the race where the timer fires and completes before
// the submitter has finished enqueueing.
func (s *Service) awaitThreadTimer(o *TimedScheduleOp) error {
	tt := s.ensureTimerThread()

	e := &timerEntry{due: o.resumeTime, token: o.token}
	e.op.svc = s
	e.refs.Store(2)
	done := make(chan struct{})
	e.op.resume = func() { close(done) }

	var reg api.Registration
	if o.token != nil && o.token.CanBeCanceled() {
		r, err := o.token.Register(tt.requestCancellation)
		if err != nil {
			return err
		}
		reg = r
	}

	tt.enqueue(e)
	if e.refs.Add(-1) == 0 {
		s.scheduleImpl(&e.op)
	}
	<-done

	if reg != nil {
		reg.Detach()
	}
	if o.token != nil && o.token.IsCancellationRequested() {
		return api.ErrCanceled
	}
	return nil
}

// ensureTimerThread starts the dedicated timer goroutine on first use.
// Racing first-timers agree on a single instance through the CAS; the
// loser shuts its speculative instance down.
func (s *Service) ensureTimerThread() *timerThread {
	if tt := s.timerState.Load(); tt != nil {
		return tt
	}
	tt := newTimerThread(s)
	if s.timerState.CompareAndSwap(nil, tt) {
		return tt
	}
	tt.stop()
	return s.timerState.Load()
}
