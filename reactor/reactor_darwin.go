//go:build darwin

// File: reactor/reactor_darwin.go
// Author: momentics <momentics@gmail.com>
//
// Darwin kqueue(2) readiness backend. A self-pipe doorbell shares the
// kqueue with armed handles; one-shot EVFILT_TIMER events back the native
// timer path of the service.

package reactor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/aiocore/api"
)

// kqueueReactor is the Darwin readiness backend.
type kqueueReactor struct {
	kq        int
	pipeRead  int
	pipeWrite int

	posted *postedQueue

	armed      sync.Map // fd (uintptr) -> Completer, one-shot
	timers     sync.Map // timer id (uint64) -> Completer, one-shot
	registered sync.Map // fd (uintptr) -> struct{}

	closeOnce sync.Once
	closeErr  error
}

// New constructs the kqueue backend. concurrencyHint sizes the posted
// message queue; <= 0 selects the default.
func New(concurrencyHint int) (Reactor, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, api.NewResourceError("kqueue", err)
	}
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		unix.Close(kq)
		return nil, api.NewResourceError("pipe", err)
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			unix.Close(kq)
			return nil, api.NewResourceError("fcntl", err)
		}
	}
	ev := unix.Kevent_t{
		Ident:  uint64(fds[0]),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		unix.Close(kq)
		return nil, api.NewResourceError("kevent", err)
	}
	capacity := defaultQueueCapacity
	if concurrencyHint > 0 {
		capacity = concurrencyHint * defaultQueueCapacity
	}
	return &kqueueReactor{
		kq:        kq,
		pipeRead:  fds[0],
		pipeWrite: fds[1],
		posted:    newPostedQueue(capacity),
	}, nil
}

func (r *kqueueReactor) Register(fd uintptr) error {
	r.registered.Store(fd, struct{}{})
	return nil
}

func (r *kqueueReactor) Unregister(fd uintptr) error {
	r.registered.Delete(fd)
	if _, armed := r.armed.LoadAndDelete(fd); armed {
		kevents := []unix.Kevent_t{
			{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
			{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
		}
		// Already-fired one-shots report ENOENT; tolerated.
		unix.Kevent(r.kq, kevents, nil, nil)
	}
	return nil
}

func (r *kqueueReactor) Arm(fd uintptr, interest Interest, op Completer) error {
	var kevents []unix.Kevent_t
	if interest&Readable != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_READ,
			Flags:  unix.EV_ADD | unix.EV_ENABLE | unix.EV_ONESHOT,
		})
	}
	if interest&Writable != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  unix.EV_ADD | unix.EV_ENABLE | unix.EV_ONESHOT,
		})
	}
	r.armed.Store(fd, op)
	if _, err := unix.Kevent(r.kq, kevents, nil, nil); err != nil {
		r.armed.Delete(fd)
		if err == unix.EPERM || err == unix.ENODEV {
			// Handle type refuses readiness filters (always ready);
			// deliver an immediate completion instead of failing.
			r.posted.forceAdd(Message{Kind: KindCallback, Op: op})
			r.ringDoorbell()
			return nil
		}
		return api.NewResourceError("kevent", err)
	}
	return nil
}

func (r *kqueueReactor) Disarm(fd uintptr) error {
	r.armed.Delete(fd)
	kevents := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	if _, err := unix.Kevent(r.kq, kevents, nil, nil); err != nil && err != unix.ENOENT && err != unix.EBADF {
		return api.NewResourceError("kevent", err)
	}
	return nil
}

// ArmTimer schedules a one-shot EVFILT_TIMER completion for op after d.
func (r *kqueueReactor) ArmTimer(id uint64, d time.Duration, op Completer) error {
	ms := d.Milliseconds()
	if ms <= 0 {
		// A zero-period kqueue timer fires immediately; keep it at one
		// tick so the event is generated rather than coalesced away.
		ms = 1
	}
	ev := unix.Kevent_t{
		Ident:  id,
		Filter: unix.EVFILT_TIMER,
		Flags:  unix.EV_ADD | unix.EV_ENABLE | unix.EV_ONESHOT,
		Data:   ms,
	}
	r.timers.Store(id, op)
	if _, err := unix.Kevent(r.kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		r.timers.Delete(id)
		return api.NewResourceError("kevent", err)
	}
	return nil
}

// DisarmTimer cancels a pending timer; tolerates already-fired ids.
func (r *kqueueReactor) DisarmTimer(id uint64) error {
	r.timers.Delete(id)
	ev := unix.Kevent_t{Ident: id, Filter: unix.EVFILT_TIMER, Flags: unix.EV_DELETE}
	if _, err := unix.Kevent(r.kq, []unix.Kevent_t{ev}, nil, nil); err != nil && err != unix.ENOENT {
		return api.NewResourceError("kevent", err)
	}
	return nil
}

func (r *kqueueReactor) Post(msg Message) bool {
	if !r.posted.add(msg) {
		return false
	}
	r.ringDoorbell()
	return true
}

func (r *kqueueReactor) ringDoorbell() {
	// EAGAIN means the pipe is full; a wakeup is already pending.
	unix.Write(r.pipeWrite, []byte{1})
}

func (r *kqueueReactor) Poll(wait bool) (Message, bool, error) {
	var events [1]unix.Kevent_t
	for {
		if msg, ok := r.posted.take(); ok {
			return msg, true, nil
		}

		var ts *unix.Timespec
		if !wait {
			ts = &unix.Timespec{}
		}
		n, err := unix.Kevent(r.kq, nil, events[:], ts)
		if err == unix.EINTR {
			return Message{}, false, nil
		}
		if err != nil {
			return Message{}, false, api.NewResourceError("kevent", err)
		}
		if n == 0 {
			return Message{}, false, nil
		}

		ev := events[0]
		switch {
		case ev.Filter == unix.EVFILT_TIMER:
			if op, ok := r.timers.LoadAndDelete(ev.Ident); ok {
				return Message{Kind: KindCallback, Op: op.(Completer)}, true, nil
			}
		case ev.Filter == unix.EVFILT_READ && int(ev.Ident) == r.pipeRead:
			if msg, ok := r.posted.take(); ok {
				return msg, true, nil
			}
			var buf [64]byte
			unix.Read(r.pipeRead, buf[:])
			if r.posted.pending() > 0 {
				r.ringDoorbell()
			}
			if !wait {
				return Message{}, false, nil
			}
		default:
			if op, ok := r.armed.LoadAndDelete(uintptr(ev.Ident)); ok {
				return Message{Kind: KindCallback, Op: op.(Completer)}, true, nil
			}
		}
		// Stale event; try again.
		if !wait {
			return Message{}, false, nil
		}
	}
}

func (r *kqueueReactor) Close() error {
	r.closeOnce.Do(func() {
		for _, fd := range []int{r.pipeRead, r.pipeWrite, r.kq} {
			if err := unix.Close(fd); err != nil && r.closeErr == nil {
				r.closeErr = api.NewResourceError("close", err)
			}
		}
	})
	return r.closeErr
}
