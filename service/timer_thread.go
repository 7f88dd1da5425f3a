// File: service/timer_thread.go
// Author: momentics <momentics@gmail.com>
//
// The dedicated timer goroutine, used where no native timer notification
// exists. It owns the timer queue outright; producers hand entries over
// through an atomic stack and request cancellation sweeps through a
// coalesced flag. The goroutine holds only a non-owning reference to the
// service: the service owns the goroutine and stops it on Close.

package service

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type timerThread struct {
	svc *Service

	newlyQueuedTimers atomic.Pointer[timerEntry]
	cancelRequested   atomic.Bool
	shutdownRequested atomic.Bool

	wake chan struct{}
	done chan struct{}
	log  *zap.Logger
}

func newTimerThread(s *Service) *timerThread {
	tt := &timerThread{
		svc:  s,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  s.log,
	}
	go tt.run()
	return tt
}

// wakeUp nudges the goroutine; coalesces with an already-pending nudge.
func (tt *timerThread) wakeUp() {
	select {
	case tt.wake <- struct{}{}:
	default:
	}
}

// requestCancellation asks for one sweep of both queue structures. The
// flag coalesces bursts of cancellations into a single wakeup.
func (tt *timerThread) requestCancellation() {
	if !tt.cancelRequested.Swap(true) {
		tt.wakeUp()
	}
}

// enqueue hands a new entry to the goroutine via the atomic stack. The
// goroutine is only woken when the stack was empty: a non-empty stack
// means a wakeup is already on its way.
func (tt *timerThread) enqueue(e *timerEntry) {
	for {
		head := tt.newlyQueuedTimers.Load()
		e.next = head
		if tt.newlyQueuedTimers.CompareAndSwap(head, e) {
			if head == nil {
				tt.wakeUp()
			}
			return
		}
	}
}

// stop shuts the goroutine down and waits for it to exit.
func (tt *timerThread) stop() {
	tt.shutdownRequested.Store(true)
	tt.wakeUp()
	<-tt.done
}

func (tt *timerThread) run() {
	defer close(tt.done)

	queue := newTimerQueue(tt.svc.timerHeapCap)
	var ready []*timerEntry

	sleep := time.NewTimer(time.Hour)
	if !sleep.Stop() {
		<-sleep.C
	}

	tt.log.Debug("timer thread started")
	for !tt.shutdownRequested.Load() {
		// Sleep on either the wake event or the earliest deadline.
		if queue.isEmpty() {
			<-tt.wake
		} else {
			d := time.Until(queue.earliestDueTime())
			if d < 0 {
				d = 0
			}
			sleep.Reset(d)
			select {
			case <-tt.wake:
				if !sleep.Stop() {
					<-sleep.C
				}
			case <-sleep.C:
			}
		}

		// Apply pending cancellations to both the heap and the overflow
		// list.
		if tt.cancelRequested.Swap(false) {
			queue.removeCancelled(&ready)
		}

		// Drain newly-queued entries; already-cancelled ones go straight
		// to the ready list.
		newTimers := tt.newlyQueuedTimers.Swap(nil)
		for newTimers != nil {
			e := newTimers
			newTimers = e.next
			e.next = nil
			if e.cancellationRequested() {
				ready = append(ready, e)
			} else {
				queue.enqueue(e)
			}
		}

		// Dequeue everything that is due.
		if !queue.isEmpty() {
			queue.dequeueDue(time.Now(), &ready)
		}

		// Schedule ready entries: whichever side decrements the refcount
		// to zero hands the entry to the service scheduler.
		for _, e := range ready {
			if e.refs.Add(-1) == 0 {
				tt.svc.scheduleImpl(&e.op)
			}
		}
		ready = ready[:0]
	}

	if !queue.isEmpty() {
		tt.log.Warn("timer thread shut down with pending timers")
	}
	tt.log.Debug("timer thread stopped")
}
