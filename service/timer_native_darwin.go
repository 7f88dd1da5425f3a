//go:build darwin

// File: service/timer_native_darwin.go
// Author: momentics <momentics@gmail.com>
//
// Native timer path for Darwin: one-shot kqueue EVFILT_TIMER events armed
// through the reactor's timer interface.

package service

import (
	"time"

	"github.com/momentics/aiocore/op"
	"github.com/momentics/aiocore/reactor"
)

func (s *Service) nativeTimersAvailable() bool {
	_, ok := s.mq.(reactor.TimerArmer)
	return ok
}

func (s *Service) awaitNativeTimer(o *TimedScheduleOp) error {
	ta := s.mq.(reactor.TimerArmer)
	id := s.timerIDs.Add(1)

	c := op.NewCancellable(
		func(st *op.State) (bool, error) {
			st.SetCompleteFunc(func() (int, error) { return 0, nil })
			if err := ta.ArmTimer(id, time.Until(o.resumeTime), st); err != nil {
				return false, err
			}
			return true, nil
		},
		func(st *op.State) {
			st.MarkCanceled()
			ta.DisarmTimer(id)
			s.postSyntheticCompletion(st)
		},
		nil,
		o.token,
	)
	_, err := c.Await()
	return err
}
