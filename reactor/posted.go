// File: reactor/posted.go
// Author: momentics <momentics@gmail.com>
//
// Bounded FIFO of user-posted messages, shared by all backends. The kernel
// object is only a doorbell; payloads stay in process memory so that no Go
// pointer ever crosses the kernel queue.

package reactor

import (
	"sync"

	"github.com/eapache/queue"
)

// postedQueue is a mutex-guarded bounded FIFO of Messages.
type postedQueue struct {
	mu       sync.Mutex
	q        *queue.Queue
	capacity int
}

func newPostedQueue(capacity int) *postedQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &postedQueue{q: queue.New(), capacity: capacity}
}

// add appends msg. Returns false when the queue is at capacity.
func (p *postedQueue) add(msg Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.q.Length() >= p.capacity {
		return false
	}
	p.q.Add(msg)
	return true
}

// forceAdd appends msg ignoring the capacity bound. Used for synthesised
// completion messages that must not be dropped.
func (p *postedQueue) forceAdd(msg Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.q.Add(msg)
}

// take removes and returns the oldest message, if any.
func (p *postedQueue) take() (Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.q.Length() == 0 {
		return Message{}, false
	}
	msg := p.q.Remove().(Message)
	return msg, true
}

// addPaired appends msg only if ring succeeds, both under the queue lock,
// so that on backends with exactly-paired doorbells (IOCP) a doorbell is
// never observed without its message nor a message left without a doorbell.
func (p *postedQueue) addPaired(msg Message, ring func() bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.q.Length() >= p.capacity {
		return false
	}
	if !ring() {
		return false
	}
	p.q.Add(msg)
	return true
}

// pending reports the current queue length.
func (p *postedQueue) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Length()
}
