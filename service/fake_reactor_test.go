// File: service/fake_reactor_test.go
// Author: momentics <momentics@gmail.com>
//
// In-memory reactor fake for service tests: a bounded message queue with
// the same refusal and wakeup semantics as the kernel backends.

package service

import (
	"sync"

	"github.com/momentics/aiocore/reactor"
)

type fakeReactor struct {
	mu       sync.Mutex
	queue    []reactor.Message
	capacity int // 0 means unbounded
	pollErr  error
	wake     chan struct{}
}

func newFakeReactor(capacity int) *fakeReactor {
	return &fakeReactor{
		capacity: capacity,
		wake:     make(chan struct{}, 1024),
	}
}

func (f *fakeReactor) Register(fd uintptr) error   { return nil }
func (f *fakeReactor) Unregister(fd uintptr) error { return nil }

func (f *fakeReactor) Arm(fd uintptr, interest reactor.Interest, op reactor.Completer) error {
	return nil
}

func (f *fakeReactor) Disarm(fd uintptr) error { return nil }

func (f *fakeReactor) Post(msg reactor.Message) bool {
	f.mu.Lock()
	if f.capacity > 0 && len(f.queue) >= f.capacity {
		f.mu.Unlock()
		return false
	}
	f.queue = append(f.queue, msg)
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
	return true
}

func (f *fakeReactor) failPolls(err error) {
	f.mu.Lock()
	f.pollErr = err
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *fakeReactor) Poll(wait bool) (reactor.Message, bool, error) {
	for {
		f.mu.Lock()
		if f.pollErr != nil {
			err := f.pollErr
			f.mu.Unlock()
			return reactor.Message{}, false, err
		}
		if len(f.queue) > 0 {
			msg := f.queue[0]
			f.queue = f.queue[1:]
			f.mu.Unlock()
			return msg, true, nil
		}
		f.mu.Unlock()
		if !wait {
			return reactor.Message{}, false, nil
		}
		<-f.wake
	}
}

func (f *fakeReactor) Close() error { return nil }

func wakeupMessage() reactor.Message { return reactor.Wakeup }

// completerFunc adapts a func to the reactor.Completer interface.
type completerFunc func()

func (f completerFunc) Complete() { f() }
