//go:build windows

// File: reactor/reactor_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows IOCP completion backend. The syscall that starts an operation
// carries the OVERLAPPED pointer; completions surface through
// GetQueuedCompletionStatus and are resolved back to op state through the
// overlapped registry. Posted messages pair one PostQueuedCompletionStatus
// doorbell with one in-process payload.

package reactor

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/momentics/aiocore/api"
)

const (
	// keyIO tags completion packets originating from handle I/O.
	keyIO uintptr = iota + 1
	// keyPosted tags doorbell packets for the posted-message queue.
	keyPosted
)

// OverlappedCompleter is the cookie attached to an in-flight overlapped
// operation. The backend stores the completion result into it before
// surfacing the callback message.
type OverlappedCompleter interface {
	Completer
	SetCompletion(bytes uint32, err error)
}

// iocpReactor is the Windows completion-port backend.
type iocpReactor struct {
	port windows.Handle

	posted *postedQueue

	// overlapped pointer (uintptr) -> OverlappedCompleter for in-flight
	// operations started against registered handles.
	inflight sync.Map

	registered sync.Map // handle (uintptr) -> struct{}

	closeOnce sync.Once
	closeErr  error
}

// New constructs the IOCP backend. concurrencyHint is forwarded to the
// completion port's concurrency value; <= 0 lets the kernel choose.
func New(concurrencyHint int) (Reactor, error) {
	hint := uint32(0)
	if concurrencyHint > 0 {
		hint = uint32(concurrencyHint)
	}
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, hint)
	if err != nil {
		return nil, api.NewResourceError("CreateIoCompletionPort", err)
	}
	capacity := defaultQueueCapacity
	if concurrencyHint > 0 {
		capacity = concurrencyHint * defaultQueueCapacity
	}
	return &iocpReactor{
		port:   port,
		posted: newPostedQueue(capacity),
	}, nil
}

// Register associates the handle with the completion port for the lifetime
// of the handle.
func (r *iocpReactor) Register(fd uintptr) error {
	if _, loaded := r.registered.LoadOrStore(fd, struct{}{}); loaded {
		return nil
	}
	if _, err := windows.CreateIoCompletionPort(windows.Handle(fd), r.port, keyIO, 0); err != nil {
		r.registered.Delete(fd)
		return api.NewResourceError("CreateIoCompletionPort", err)
	}
	return nil
}

func (r *iocpReactor) Unregister(fd uintptr) error {
	// IOCP association ends when the handle is closed; only the
	// bookkeeping is withdrawn here.
	r.registered.Delete(fd)
	return nil
}

// Arm is a no-op: the overlapped syscall that starts the operation already
// carries the completion cookie.
func (r *iocpReactor) Arm(fd uintptr, interest Interest, op Completer) error {
	return nil
}

// Disarm is a no-op for the same reason.
func (r *iocpReactor) Disarm(fd uintptr) error {
	return nil
}

// AttachOverlapped binds an in-flight overlapped pointer to its op state.
// Concrete operations call this immediately before issuing the syscall.
func (r *iocpReactor) AttachOverlapped(ov uintptr, op OverlappedCompleter) {
	r.inflight.Store(ov, op)
}

// DetachOverlapped withdraws a binding whose syscall failed synchronously.
func (r *iocpReactor) DetachOverlapped(ov uintptr) {
	r.inflight.Delete(ov)
}

func (r *iocpReactor) Post(msg Message) bool {
	return r.posted.addPaired(msg, func() bool {
		return windows.PostQueuedCompletionStatus(r.port, 0, keyPosted, nil) == nil
	})
}

func (r *iocpReactor) Poll(wait bool) (Message, bool, error) {
	var timeout uint32 = windows.INFINITE
	if !wait {
		timeout = 0
	}
	for {
		var bytes uint32
		var key uintptr
		var ov *windows.Overlapped
		err := windows.GetQueuedCompletionStatus(r.port, &bytes, &key, &ov, timeout)

		if ov == nil {
			if err == windows.WAIT_TIMEOUT {
				return Message{}, false, nil
			}
			if err != nil {
				return Message{}, false, api.NewResourceError("GetQueuedCompletionStatus", err)
			}
			// A posted packet. Its payload was enqueued under the same
			// lock as the doorbell, so it is visible by now.
			if key == keyPosted {
				if msg, ok := r.posted.take(); ok {
					return msg, true, nil
				}
			}
			if !wait {
				return Message{}, false, nil
			}
			continue
		}

		// Handle I/O completion: resolve the overlapped pointer back to
		// the op state, recording the transfer count and status.
		op, ok := r.inflight.LoadAndDelete(uintptr(unsafe.Pointer(ov)))
		if !ok {
			if !wait {
				return Message{}, false, nil
			}
			continue
		}
		oc := op.(OverlappedCompleter)
		oc.SetCompletion(bytes, err)
		return Message{Kind: KindCallback, Op: oc}, true, nil
	}
}

func (r *iocpReactor) Close() error {
	r.closeOnce.Do(func() {
		if err := windows.CloseHandle(r.port); err != nil {
			r.closeErr = api.NewResourceError("CloseHandle", err)
		}
	})
	return r.closeErr
}
