// File: service/timer_queue.go
// Author: momentics <momentics@gmail.com>
//
// Heap-ordered timer queue with a sorted overflow list. The queue has a
// single writer (the timer goroutine). The heap is bounded; entries beyond
// its capacity go to the insertion-sorted linked list, so enqueue always
// succeeds regardless of heap pressure.

package service

import (
	"container/heap"
	"sync/atomic"
	"time"

	"github.com/momentics/aiocore/api"
)

// defaultTimerHeapCapacity bounds the timer heap unless overridden by
// WithTimerHeapCapacity.
const defaultTimerHeapCapacity = 4096

// timerEntry is one pending timed schedule. It is owned jointly by the
// timer goroutine and the submitting goroutine until refs reaches zero;
// whichever side decrements to zero hands the entry to the service
// scheduler. Entries never transition after being scheduled.
type timerEntry struct {
	due   time.Time
	op    ScheduleOp
	token api.Token
	next  *timerEntry // newly-queued stack / overflow list link
	refs  atomic.Int32
}

func (e *timerEntry) cancellationRequested() bool {
	return e.token != nil && e.token.IsCancellationRequested()
}

// timerHeap orders entries by due time, earliest at the root.
type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// timerQueue combines the bounded heap with the overflow list.
type timerQueue struct {
	entries  timerHeap
	overflow *timerEntry // ascending by due time
	capacity int
}

func newTimerQueue(capacity int) *timerQueue {
	if capacity <= 0 {
		capacity = defaultTimerHeapCapacity
	}
	return &timerQueue{
		entries:  make(timerHeap, 0, capacity),
		capacity: capacity,
	}
}

func (q *timerQueue) isEmpty() bool {
	return len(q.entries) == 0 && q.overflow == nil
}

// earliestDueTime is only meaningful on a non-empty queue.
func (q *timerQueue) earliestDueTime() time.Time {
	if len(q.entries) > 0 {
		t := q.entries[0].due
		if q.overflow != nil && q.overflow.due.Before(t) {
			return q.overflow.due
		}
		return t
	}
	return q.overflow.due
}

// enqueue inserts e, spilling to the sorted overflow list when the heap is
// at capacity.
func (q *timerQueue) enqueue(e *timerEntry) {
	if len(q.entries) < q.capacity {
		heap.Push(&q.entries, e)
		return
	}
	current := &q.overflow
	for *current != nil && !(*current).due.After(e.due) {
		current = &(*current).next
	}
	e.next = *current
	*current = e
}

// dequeueDue moves every entry due at or before now onto the ready list.
func (q *timerQueue) dequeueDue(now time.Time, ready *[]*timerEntry) {
	for len(q.entries) > 0 && !q.entries[0].due.After(now) {
		e := heap.Pop(&q.entries).(*timerEntry)
		*ready = append(*ready, e)
	}
	for q.overflow != nil && !q.overflow.due.After(now) {
		e := q.overflow
		q.overflow = e.next
		e.next = nil
		*ready = append(*ready, e)
	}
}

// removeCancelled scans both the heap and the overflow list for entries
// whose token has a pending cancellation request and moves them onto the
// ready list.
func (q *timerQueue) removeCancelled(ready *[]*timerEntry) {
	kept := q.entries[:0]
	removed := false
	for _, e := range q.entries {
		if e.cancellationRequested() {
			*ready = append(*ready, e)
			removed = true
		} else {
			kept = append(kept, e)
		}
	}
	if removed {
		for i := len(kept); i < len(q.entries); i++ {
			q.entries[i] = nil
		}
		q.entries = kept
		heap.Init(&q.entries)
	}

	current := &q.overflow
	for *current != nil {
		e := *current
		if e.cancellationRequested() {
			*current = e.next
			e.next = nil
			*ready = append(*ready, e)
		} else {
			current = &e.next
		}
	}
}
