// File: service/timer_test.go
// Author: momentics <momentics@gmail.com>
//
// Timer subsystem tests over the dedicated-goroutine backend, which runs
// on every platform.

package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/aiocore/api"
	"github.com/momentics/aiocore/cancel"
)

// startWorker runs a blocking event-loop worker until the service stops.
func startWorker(t *testing.T, s *Service) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.ProcessEvents()
	}()
	t.Cleanup(func() {
		s.Stop()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("worker did not exit after stop")
		}
	})
}

func TestTimedSchedule_Fires(t *testing.T) {
	s, _ := newFakeService(t, 0)
	startWorker(t, s)

	start := time.Now()
	require.NoError(t, s.ScheduleAfter(20*time.Millisecond, nil).Await())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestTimedSchedule_ZeroDelayFiresImmediately(t *testing.T) {
	s, _ := newFakeService(t, 0)
	startWorker(t, s)

	require.NoError(t, s.ScheduleAfter(0, nil).Await())
}

func TestTimedSchedule_Ordering(t *testing.T) {
	// S5: two timers armed before the first deadline resume in deadline
	// order.
	s, _ := newFakeService(t, 0)
	startWorker(t, s)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(2)
	t0 := time.Now()
	go func() {
		defer wg.Done()
		s.ScheduleAt(t0.Add(50*time.Millisecond), nil).Await()
		mu.Lock()
		order = append(order, 50)
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		s.ScheduleAt(t0.Add(10*time.Millisecond), nil).Await()
		mu.Lock()
		order = append(order, 10)
		mu.Unlock()
	}()
	wg.Wait()

	require.Equal(t, []int{10, 50}, order)
}

func TestTimedSchedule_AlreadyCanceledShortCircuits(t *testing.T) {
	s, _ := newFakeService(t, 0)

	src := cancel.NewSource()
	src.Cancel()
	err := s.ScheduleAfter(time.Hour, src.Token()).Await()
	assert.ErrorIs(t, err, api.ErrCanceled)
	assert.Nil(t, s.timerState.Load(), "a short-circuited timer must not start the timer thread")
}

func TestTimedSchedule_CancelResumesEarly(t *testing.T) {
	s, _ := newFakeService(t, 0)
	startWorker(t, s)

	src := cancel.NewSource()
	result := make(chan error, 1)
	go func() {
		result <- s.ScheduleAfter(time.Hour, src.Token()).Await()
	}()

	time.Sleep(20 * time.Millisecond)
	src.Cancel()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, api.ErrCanceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancellation did not resume the timed schedule")
	}
}

func TestTimedSchedule_CancelOneOfMany(t *testing.T) {
	// A cancellation sweep must not disturb other pending timers.
	s, _ := newFakeService(t, 0)
	startWorker(t, s)

	src := cancel.NewSource()
	canceledRes := make(chan error, 1)
	go func() {
		canceledRes <- s.ScheduleAfter(time.Hour, src.Token()).Await()
	}()
	surviving := make(chan error, 1)
	go func() {
		surviving <- s.ScheduleAfter(60*time.Millisecond, nil).Await()
	}()

	time.Sleep(20 * time.Millisecond)
	src.Cancel()

	select {
	case err := <-canceledRes:
		assert.ErrorIs(t, err, api.ErrCanceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled timer did not resume")
	}
	select {
	case err := <-surviving:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("surviving timer did not fire")
	}
}

func TestTimedSchedule_HeapOverflowSpill(t *testing.T) {
	// With a heap bounded at 2 entries, additional timers take the
	// insertion-sorted overflow list; ordering must hold across both
	// structures.
	fr := newFakeReactor(0)
	s, err := New(WithReactor(fr), WithTimerBackend(TimerBackendThread), WithTimerHeapCapacity(2))
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Stop()
		s.Close()
	})
	startWorker(t, s)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	t0 := time.Now()
	delays := []int{80, 20, 60, 40, 100}
	for _, d := range delays {
		wg.Add(1)
		go func(d int) {
			defer wg.Done()
			s.ScheduleAt(t0.Add(time.Duration(d)*time.Millisecond), nil).Await()
			mu.Lock()
			order = append(order, d)
			mu.Unlock()
		}(d)
	}
	wg.Wait()

	assert.Equal(t, []int{20, 40, 60, 80, 100}, order)
}

func TestTimerQueue_EnqueueDequeueDue(t *testing.T) {
	q := newTimerQueue(4)
	assert.True(t, q.isEmpty())

	now := time.Now()
	e1 := &timerEntry{due: now.Add(30 * time.Millisecond)}
	e2 := &timerEntry{due: now.Add(10 * time.Millisecond)}
	e3 := &timerEntry{due: now.Add(20 * time.Millisecond)}
	q.enqueue(e1)
	q.enqueue(e2)
	q.enqueue(e3)

	assert.Equal(t, e2.due, q.earliestDueTime())

	var ready []*timerEntry
	q.dequeueDue(now.Add(15*time.Millisecond), &ready)
	require.Len(t, ready, 1)
	assert.Same(t, e2, ready[0])

	q.dequeueDue(now.Add(time.Hour), &ready)
	assert.Len(t, ready, 3)
	assert.True(t, q.isEmpty())
}

func TestTimerQueue_OverflowKeepsSortedOrder(t *testing.T) {
	q := newTimerQueue(1)
	now := time.Now()
	e1 := &timerEntry{due: now.Add(10 * time.Millisecond)} // heap
	e2 := &timerEntry{due: now.Add(40 * time.Millisecond)} // overflow
	e3 := &timerEntry{due: now.Add(20 * time.Millisecond)} // overflow, sorts first
	q.enqueue(e1)
	q.enqueue(e2)
	q.enqueue(e3)

	assert.Equal(t, e1.due, q.earliestDueTime())

	var ready []*timerEntry
	q.dequeueDue(now.Add(25*time.Millisecond), &ready)
	require.Len(t, ready, 2)
	assert.Same(t, e1, ready[0])
	assert.Same(t, e3, ready[1])
	assert.Equal(t, e2.due, q.earliestDueTime())
}

func TestTimerQueue_RemoveCancelledScansBothStructures(t *testing.T) {
	q := newTimerQueue(2)
	now := time.Now()

	srcHeap := cancel.NewSource()
	srcOverflow := cancel.NewSource()
	keep := &timerEntry{due: now.Add(10 * time.Millisecond)}
	inHeap := &timerEntry{due: now.Add(20 * time.Millisecond), token: srcHeap.Token()}
	inOverflow := &timerEntry{due: now.Add(30 * time.Millisecond), token: srcOverflow.Token()}
	q.enqueue(keep)
	q.enqueue(inHeap)
	q.enqueue(inOverflow) // heap capacity 2: spills

	srcHeap.Cancel()
	srcOverflow.Cancel()

	var ready []*timerEntry
	q.removeCancelled(&ready)
	assert.Len(t, ready, 2)
	assert.False(t, q.isEmpty())

	ready = ready[:0]
	q.dequeueDue(now.Add(time.Hour), &ready)
	require.Len(t, ready, 1)
	assert.Same(t, keep, ready[0])
}
