//go:build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7) readiness backend. An eventfd doorbell is multiplexed into
// the same epoll set as armed handles so that posted messages and I/O
// readiness share a single wait point per worker.

package reactor

import (
	"encoding/binary"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/momentics/aiocore/api"
)

// epollReactor is the Linux readiness backend.
type epollReactor struct {
	epfd   int
	wakefd int // eventfd, level-triggered in the epoll set

	posted *postedQueue

	armed      sync.Map // fd (uintptr) -> Completer, one-shot
	registered sync.Map // fd (uintptr) -> struct{}

	closeOnce sync.Once
	closeErr  error
}

// New constructs the epoll backend. concurrencyHint sizes the posted
// message queue; <= 0 selects the default.
func New(concurrencyHint int) (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.NewResourceError("epoll_create1", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, api.NewResourceError("eventfd", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, api.NewResourceError("epoll_ctl", err)
	}
	capacity := defaultQueueCapacity
	if concurrencyHint > 0 {
		capacity = concurrencyHint * defaultQueueCapacity
	}
	return &epollReactor{
		epfd:   epfd,
		wakefd: wakefd,
		posted: newPostedQueue(capacity),
	}, nil
}

func (r *epollReactor) Register(fd uintptr) error {
	r.registered.Store(fd, struct{}{})
	return nil
}

func (r *epollReactor) Unregister(fd uintptr) error {
	r.registered.Delete(fd)
	if _, armed := r.armed.LoadAndDelete(fd); armed {
		// Withdraw the pending one-shot; ENOENT means it already fired.
		if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil); err != nil && err != unix.ENOENT && err != unix.EBADF {
			return api.NewResourceError("epoll_ctl", err)
		}
	}
	return nil
}

func (r *epollReactor) Arm(fd uintptr, interest Interest, op Completer) error {
	ev := unix.EpollEvent{
		Events: interestToEpoll(interest) | unix.EPOLLONESHOT,
		Fd:     int32(fd),
	}
	// Publish the cookie before the kernel call: the event may fire on
	// another worker before EpollCtl returns.
	r.armed.Store(fd, op)
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev)
	if err == unix.EEXIST {
		err = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), &ev)
	}
	if err == unix.EPERM {
		// Regular files are always ready and refuse arming; deliver an
		// immediate completion through the queue instead of failing.
		r.armed.Delete(fd)
		r.posted.forceAdd(Message{Kind: KindCallback, Op: op})
		r.ringDoorbell()
		return nil
	}
	if err != nil {
		r.armed.Delete(fd)
		return api.NewResourceError("epoll_ctl", err)
	}
	return nil
}

func (r *epollReactor) Disarm(fd uintptr) error {
	r.armed.Delete(fd)
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	if err == nil || err == unix.ENOENT || err == unix.EBADF {
		return nil
	}
	return api.NewResourceError("epoll_ctl", err)
}

func (r *epollReactor) Post(msg Message) bool {
	if !r.posted.add(msg) {
		return false
	}
	r.ringDoorbell()
	return true
}

func (r *epollReactor) ringDoorbell() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	// EAGAIN means the counter is saturated; the level-triggered doorbell
	// is already pending, which is all a wakeup needs.
	unix.Write(r.wakefd, buf[:])
}

func (r *epollReactor) Poll(wait bool) (Message, bool, error) {
	var events [1]unix.EpollEvent
	for {
		if msg, ok := r.posted.take(); ok {
			return msg, true, nil
		}

		timeout := 0
		if wait {
			timeout = -1
		}
		n, err := unix.EpollWait(r.epfd, events[:], timeout)
		if err == unix.EINTR {
			return Message{}, false, nil
		}
		if err != nil {
			return Message{}, false, api.NewResourceError("epoll_wait", err)
		}
		if n == 0 {
			return Message{}, false, nil
		}

		fd := uintptr(events[0].Fd)
		if fd == uintptr(r.wakefd) {
			if msg, ok := r.posted.take(); ok {
				return msg, true, nil
			}
			// Queue drained by other workers; reset the doorbell. If a
			// post slipped in between the take and the drain, re-ring so
			// its wakeup is not lost.
			var buf [8]byte
			unix.Read(r.wakefd, buf[:])
			if r.posted.pending() > 0 {
				r.ringDoorbell()
			}
			if !wait {
				return Message{}, false, nil
			}
			continue
		}

		if op, ok := r.armed.LoadAndDelete(fd); ok {
			return Message{Kind: KindCallback, Op: op.(Completer)}, true, nil
		}
		// Stale event for a disarmed handle.
		if !wait {
			return Message{}, false, nil
		}
	}
}

func (r *epollReactor) Close() error {
	r.closeOnce.Do(func() {
		if err := unix.Close(r.wakefd); err != nil {
			r.closeErr = api.NewResourceError("close", err)
		}
		if err := unix.Close(r.epfd); err != nil && r.closeErr == nil {
			r.closeErr = api.NewResourceError("close", err)
		}
	})
	return r.closeErr
}

func interestToEpoll(interest Interest) uint32 {
	var ev uint32
	if interest&Readable != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}
