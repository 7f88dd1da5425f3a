// File: service/schedule.go
// Author: momentics <momentics@gmail.com>
//
// Schedule operations: resume a continuation on an I/O worker, with the
// lock-free overflow list as the fallback when the reactor queue refuses.

package service

import (
	"go.uber.org/zap"

	"github.com/momentics/aiocore/reactor"
)

// ScheduleOp is an awaitable whose completion means "resume on an I/O
// worker".
type ScheduleOp struct {
	svc    *Service
	resume func()
}

// Schedule returns an operation that, when awaited, parks the calling
// goroutine and reschedules it for resumption by an event-loop worker.
func (s *Service) Schedule() *ScheduleOp {
	return &ScheduleOp{svc: s}
}

// Await parks until a worker dequeues the resume message. The caller
// continues once the handoff has happened; per-reactor enqueue order is
// preserved except across the overflow path.
func (o *ScheduleOp) Await() {
	done := make(chan struct{})
	o.resume = func() { close(done) }
	o.svc.scheduleImpl(o)
	<-done
}

// ScheduleFunc runs fn on an event-loop worker. It is the continuation
// form of Schedule for callers that do not need to park.
func (s *Service) ScheduleFunc(fn func()) {
	s.scheduleImpl(&ScheduleOp{svc: s, resume: fn})
}

// scheduleImpl enqueues the resume message, falling back to the lock-free
// overflow list when the reactor refuses; the next worker to run an event
// loop iteration re-posts deferred operations.
func (s *Service) scheduleImpl(op *ScheduleOp) {
	ok := s.mq.Post(reactor.Message{Kind: reactor.KindResume, Resume: op.resume})
	if !ok {
		s.overflow.Push(op)
		s.log.Debug("reactor queue refused resume, deferred to overflow list")
	}
}

// tryRescheduleOverflowOperations re-posts deferred schedule operations.
// Operations that still do not fit go back on the list for a later
// iteration.
func (s *Service) tryRescheduleOverflowOperations() {
	ops := s.overflow.PopAll()
	if len(ops) == 0 {
		return
	}
	for i, op := range ops {
		if !s.mq.Post(reactor.Message{Kind: reactor.KindResume, Resume: op.resume}) {
			s.overflow.PushAll(ops[i:])
			return
		}
	}
	s.log.Debug("overflow schedule list drained", zap.Int("count", len(ops)))
}
