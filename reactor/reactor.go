// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral reactor contract. New constructs the backend for the
// current platform; see reactor_linux.go, reactor_darwin.go and
// reactor_windows.go for the implementations.

package reactor

import "time"

// Reactor multiplexes handle events and user-posted messages behind a
// uniform message queue. It is shared read-many/write-many; internal
// synchronisation is provided by the kernel object plus a small amount of
// registry state.
type Reactor interface {
	// Register makes the handle known to the reactor. On a
	// completion-port backend this associates the handle with the port
	// for the lifetime of the handle; on readiness backends it is
	// bookkeeping only. Fails with a resource error if the kernel
	// rejects the association.
	Register(fd uintptr) error

	// Unregister withdraws the handle. Idempotent against handles that
	// were never registered.
	Unregister(fd uintptr) error

	// Arm requests a single notification for the given interest,
	// carrying op as the completion cookie. On a backend where the
	// handle is always ready and refuses arming (regular files under
	// epoll), the reactor synthesises an immediate callback message
	// instead of failing. On completion-port backends Arm is a no-op.
	Arm(fd uintptr, interest Interest, op Completer) error

	// Disarm withdraws a pending notification. Silently tolerates
	// not-armed handles; any other failure is a resource error.
	Disarm(fd uintptr) error

	// Post enqueues msg without blocking. Returns false when the queue
	// refuses (capacity or kernel-queue pressure); the caller is then
	// responsible for deferring the message via its overflow path.
	Post(msg Message) bool

	// Poll dequeues at most one message. With wait set it blocks until
	// a message or an interrupt arrives; an interrupted wait returns
	// ok=false with a nil error. A non-nil error means the reactor is
	// in an unrepresentable state and the event loop must stop.
	Poll(wait bool) (msg Message, ok bool, err error)

	// Close releases the kernel objects. The reactor must not be used
	// afterwards.
	Close() error
}

// TimerArmer is implemented by backends with native one-shot kernel timers
// that deliver through Poll (kqueue EVFILT_TIMER). The timer subsystem
// asserts for it; platforms without it use a timer file handle or the
// dedicated timer thread.
type TimerArmer interface {
	// ArmTimer schedules a one-shot callback message for op after d.
	ArmTimer(id uint64, d time.Duration, op Completer) error

	// DisarmTimer cancels a pending timer; tolerates already-fired ids.
	DisarmTimer(id uint64) error
}

// defaultQueueCapacity bounds the posted-message FIFO when the caller does
// not supply a capacity.
const defaultQueueCapacity = 4096
