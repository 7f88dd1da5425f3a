// File: service/service_test.go
// Author: momentics <momentics@gmail.com>
//
// Event-loop, stop-protocol, scheduling and work-tracking tests over the
// in-memory reactor fake.

package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/aiocore/api"
)

func newFakeService(t *testing.T, capacity int) (*Service, *fakeReactor) {
	t.Helper()
	fr := newFakeReactor(capacity)
	s, err := New(WithReactor(fr), WithTimerBackend(TimerBackendThread))
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Stop()
		s.Close()
	})
	return s, fr
}

func TestProcessPendingEvents_EmptyQueue(t *testing.T) {
	s, _ := newFakeService(t, 0)
	assert.Equal(t, uint64(0), s.ProcessPendingEvents())
}

func TestScheduleFunc_RunsOnWorker(t *testing.T) {
	s, _ := newFakeService(t, 0)

	var ran int32
	s.ScheduleFunc(func() { atomic.AddInt32(&ran, 1) })

	assert.Equal(t, uint64(1), s.ProcessPendingEvents())
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestScheduleOp_AwaitResumedByWorker(t *testing.T) {
	s, _ := newFakeService(t, 0)

	resumed := make(chan struct{})
	go func() {
		s.Schedule().Await()
		close(resumed)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.ProcessOnePendingEvent() == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case <-resumed:
	case <-time.After(2 * time.Second):
		t.Fatal("schedule await was not resumed by the worker")
	}
}

func TestStop_UnblocksAllWorkers(t *testing.T) {
	// S6: N workers blocked in ProcessEvents all return after one Stop;
	// re-entry is refused until Reset.
	s, _ := newFakeService(t, 0)

	const workers = 4
	var wg sync.WaitGroup
	entered := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entered <- struct{}{}
			s.ProcessEvents()
		}()
	}
	for i := 0; i < workers; i++ {
		<-entered
	}
	// Give workers time to reach the blocking poll.
	time.Sleep(20 * time.Millisecond)

	s.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not unblock all workers")
	}

	assert.Equal(t, uint64(0), s.ProcessEvents(), "stopped service must refuse event processing")
	assert.True(t, s.IsStopRequested())

	require.NoError(t, s.Reset())
	assert.False(t, s.IsStopRequested())
	assert.Equal(t, uint64(0), s.ProcessPendingEvents(), "reset service accepts workers again")
}

func TestStop_QueuedEventsSurviveUntilReset(t *testing.T) {
	// Stop refuses new event processing but does not drop queued
	// messages: after Reset they are still delivered.
	s, _ := newFakeService(t, 0)

	var ran int32
	s.ScheduleFunc(func() { atomic.AddInt32(&ran, 1) })
	s.Stop()

	assert.Equal(t, uint64(0), s.ProcessPendingEvents())
	assert.Zero(t, atomic.LoadInt32(&ran))

	require.NoError(t, s.Reset())
	assert.Equal(t, uint64(1), s.ProcessPendingEvents())
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestOverflow_SpillsAndDrains(t *testing.T) {
	// Invariant 5: schedule ops refused by a full reactor queue drain
	// within a bounded number of loop iterations once capacity frees up.
	s, _ := newFakeService(t, 1)

	const n = 16
	var ran int32
	for i := 0; i < n; i++ {
		s.ScheduleFunc(func() { atomic.AddInt32(&ran, 1) })
	}
	assert.False(t, s.overflow.Empty(), "a capacity-1 queue must have spilled to the overflow list")

	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&ran) < n && time.Now().Before(deadline) {
		s.ProcessPendingEvents()
	}
	assert.Equal(t, int32(n), atomic.LoadInt32(&ran))
	assert.True(t, s.overflow.Empty())
}

func TestWorkCount_AutoStopOnDrain(t *testing.T) {
	s, _ := newFakeService(t, 0)

	s.NotifyWorkStarted()
	s.NotifyWorkStarted()
	s.NotifyWorkFinished()
	assert.False(t, s.IsStopRequested())
	s.NotifyWorkFinished()
	assert.True(t, s.IsStopRequested(), "releasing the last unit of work stops the service")
}

func TestWorkScope_DoneIdempotent(t *testing.T) {
	s, _ := newFakeService(t, 0)

	w1 := NewWorkScope(s)
	w2 := NewWorkScope(s)
	assert.Same(t, s, w1.Service())

	w1.Done()
	w1.Done() // second release must not count
	assert.False(t, s.IsStopRequested())
	w2.Done()
	assert.True(t, s.IsStopRequested())
}

func TestReset_WithActiveWorkersFails(t *testing.T) {
	s, _ := newFakeService(t, 0)

	started := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		close(started)
		s.ProcessEvents()
		close(finished)
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	assert.ErrorIs(t, s.Reset(), ErrActiveWorkers)

	s.Stop()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after stop")
	}
}

func TestFatalPollError_StopsEventLoop(t *testing.T) {
	s, fr := newFakeService(t, 0)

	fr.failPolls(api.NewResourceError("poll", assert.AnError))
	assert.Equal(t, uint64(0), s.ProcessEvents())
	assert.True(t, s.IsStopRequested(), "an unrepresentable reactor state must stop the loop")
}

func TestSyntheticCompletion_FallsBackToOverflow(t *testing.T) {
	// A refused synthetic completion post must degrade to the overflow
	// scheduling path rather than being lost.
	s, _ := newFakeService(t, 1)

	// Fill the queue.
	require.True(t, s.mq.Post(wakeupMessage()))

	var completed int32
	s.postSyntheticCompletion(completerFunc(func() { atomic.AddInt32(&completed, 1) }))

	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&completed) == 0 && time.Now().Before(deadline) {
		s.ProcessPendingEvents()
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&completed))
}
