//go:build linux

// File: service/timer_native_linux.go
// Author: momentics <momentics@gmail.com>
//
// Native timer path for Linux: each timed schedule owns a one-shot
// timerfd, armed through the reactor like any other readiness operation.

package service

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/aiocore/api"
	"github.com/momentics/aiocore/op"
	"github.com/momentics/aiocore/reactor"
)

func (s *Service) nativeTimersAvailable() bool { return true }

func (s *Service) awaitNativeTimer(o *TimedScheduleOp) error {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return api.NewResourceError("timerfd_create", err)
	}
	defer unix.Close(fd)

	mq := s.mq
	if err := mq.Register(uintptr(fd)); err != nil {
		return err
	}
	defer mq.Unregister(uintptr(fd))

	c := op.NewCancellable(
		func(st *op.State) (bool, error) {
			var ts unix.ItimerSpec
			d := time.Until(o.resumeTime)
			if d <= 0 {
				// A zeroed itimerspec disarms instead of firing; one
				// nanosecond delivers the event immediately.
				ts.Value.Nsec = 1
			} else {
				ts.Value = unix.NsecToTimespec(d.Nanoseconds())
			}
			if err := unix.TimerfdSettime(fd, 0, &ts, nil); err != nil {
				return false, api.NewResourceError("timerfd_settime", err)
			}
			st.SetCompleteFunc(func() (int, error) {
				var buf [8]byte
				unix.Read(fd, buf[:])
				return 0, nil
			})
			if err := mq.Arm(uintptr(fd), reactor.Readable, st); err != nil {
				return false, err
			}
			return true, nil
		},
		func(st *op.State) {
			st.MarkCanceled()
			mq.Disarm(uintptr(fd))
			s.postSyntheticCompletion(st)
		},
		nil,
		o.token,
	)
	_, err = c.Await()
	return err
}
