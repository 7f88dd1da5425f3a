// File: service/service.go
// Author: momentics <momentics@gmail.com>
//
// The I/O service: event-loop sequencing, stop protocol and work tracking.

package service

import (
	"errors"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/aiocore/internal/concurrency"
	"github.com/momentics/aiocore/reactor"
)

// ErrActiveWorkers is returned by Reset while workers are still inside the
// event loop.
var ErrActiveWorkers = errors.New("aiocore: reset with active event-loop workers")

// threadState packing: bit 0 is the stop flag, the remaining bits count
// active event-loop workers.
const (
	stopRequestedFlag     uint32 = 1
	activeThreadIncrement uint32 = 2
)

// Service owns a reactor, a work count, the overflow scheduling list and
// the timer subsystem.
type Service struct {
	mq reactor.Reactor

	threadState atomic.Uint32
	workCount   atomic.Uint32

	overflow concurrency.Stack[*ScheduleOp]

	timerState atomic.Pointer[timerThread]

	log          *zap.Logger
	hint         int
	timerBackend TimerBackend
	timerHeapCap int
	timerIDs     atomic.Uint64
}

// New constructs a service. Without WithReactor the platform backend is
// created; a backend construction failure surfaces here and nothing is
// ever suspended.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		log:          zap.NewNop(),
		timerHeapCap: defaultTimerHeapCapacity,
	}
	for _, o := range opts {
		o(s)
	}
	if s.mq == nil {
		r, err := reactor.New(s.hint)
		if err != nil {
			return nil, err
		}
		s.mq = r
	}
	s.log.Debug("io service created", zap.Int("concurrency_hint", s.hint))
	return s, nil
}

// Reactor exposes the owned reactor to concrete I/O operations for handle
// registration and arming.
func (s *Service) Reactor() reactor.Reactor { return s.mq }

// Close stops the timer goroutine and releases the reactor. It must only
// be called after every worker has left the event loop.
func (s *Service) Close() error {
	var err error
	if tt := s.timerState.Swap(nil); tt != nil {
		tt.stop()
	}
	if !s.overflow.Empty() {
		err = multierr.Append(err, errors.New("aiocore: close with deferred schedule operations pending"))
	}
	err = multierr.Append(err, s.mq.Close())
	s.log.Debug("io service closed", zap.Error(err))
	return err
}

// ProcessEvents runs the event loop on the calling goroutine until the
// service is stopped, returning the number of events processed.
func (s *Service) ProcessEvents() uint64 {
	return s.processEvents(true, false)
}

// ProcessPendingEvents drains already-queued events without blocking.
func (s *Service) ProcessPendingEvents() uint64 {
	return s.processEvents(false, false)
}

// ProcessOneEvent blocks until one event is processed or the service is
// stopped. Returns 0 or 1.
func (s *Service) ProcessOneEvent() uint64 {
	return s.processEvents(true, true)
}

// ProcessOnePendingEvent processes one event if any is pending. Returns 0
// or 1.
func (s *Service) ProcessOnePendingEvent() uint64 {
	return s.processEvents(false, true)
}

func (s *Service) processEvents(wait, single bool) uint64 {
	var count uint64
	if !s.tryEnterEventLoop() {
		return 0
	}
	defer s.exitEventLoop()
	for s.tryProcessOneEvent(wait) {
		count++
		if single {
			break
		}
	}
	return count
}

// tryEnterEventLoop registers the calling goroutine as an active worker;
// it refuses entry when stop has been requested.
func (s *Service) tryEnterEventLoop() bool {
	for {
		state := s.threadState.Load()
		if state&stopRequestedFlag != 0 {
			return false
		}
		if s.threadState.CompareAndSwap(state, state+activeThreadIncrement) {
			return true
		}
	}
}

func (s *Service) exitEventLoop() {
	s.threadState.Add(^uint32(activeThreadIncrement - 1))
}

// tryProcessOneEvent drains the overflow list, polls one message and
// dispatches it. It returns false when there is nothing (more) to process
// or the service is stopping.
func (s *Service) tryProcessOneEvent(wait bool) bool {
	if s.IsStopRequested() {
		return false
	}
	for {
		s.tryRescheduleOverflowOperations()

		msg, ok, err := s.mq.Poll(wait)
		if err != nil {
			// The reactor is in an unrepresentable state: terminate the
			// loop for every worker, not just this one.
			s.log.Error("reactor poll failed, stopping event loop", zap.Error(err))
			s.Stop()
			return false
		}
		if !ok {
			return false
		}
		switch msg.Kind {
		case reactor.KindCallback:
			msg.Op.Complete()
			return true
		case reactor.KindResume:
			msg.Resume()
			return true
		case reactor.KindWakeup:
			if s.IsStopRequested() {
				return false
			}
			// Spurious wakeup; keep polling.
		}
	}
}

// Stop requests shutdown: workers finish their current event and return.
// One wakeup is posted per active worker so that blocked polls unblock.
func (s *Service) Stop() {
	old := s.threadState.Or(stopRequestedFlag)
	if old&stopRequestedFlag != 0 {
		return
	}
	active := old / activeThreadIncrement
	s.log.Debug("stop requested", zap.Uint32("active_workers", active))
	for ; active > 0; active-- {
		s.postWakeupEvent()
	}
}

// IsStopRequested reports whether Stop has been called since the last
// Reset.
func (s *Service) IsStopRequested() bool {
	return s.threadState.Load()&stopRequestedFlag != 0
}

// Reset clears the stop flag so workers may re-enter the loop. All workers
// must have returned from their process calls first.
func (s *Service) Reset() error {
	old := s.threadState.And(^stopRequestedFlag)
	if old/activeThreadIncrement != 0 {
		return ErrActiveWorkers
	}
	return nil
}

// NotifyWorkStarted records one logically-live unit of work.
func (s *Service) NotifyWorkStarted() {
	s.workCount.Add(1)
}

// NotifyWorkFinished releases one unit of work; releasing the last unit
// stops the service.
func (s *Service) NotifyWorkFinished() {
	if s.workCount.Add(^uint32(0)) == 0 {
		s.Stop()
	}
}

// postWakeupEvent enqueues one wakeup message. Failure is ignored: if the
// queue is full, workers have events to find anyway and thus wake up.
func (s *Service) postWakeupEvent() {
	_ = s.mq.Post(reactor.Wakeup)
}

// postSyntheticCompletion delivers a completion message outside the kernel
// path (cancellation of a native timer). A refused
// post degrades to the overflow scheduling list rather than being lost.
func (s *Service) postSyntheticCompletion(op reactor.Completer) {
	if !s.mq.Post(reactor.Message{Kind: reactor.KindCallback, Op: op}) {
		s.scheduleImpl(&ScheduleOp{svc: s, resume: op.Complete})
	}
}
