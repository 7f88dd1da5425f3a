//go:build !linux && !darwin

// File: service/timer_native_stub.go
// Author: momentics <momentics@gmail.com>
//
// Platforms without native timer completions always use the dedicated
// timer goroutine.

package service

import "errors"

func (s *Service) nativeTimersAvailable() bool { return false }

func (s *Service) awaitNativeTimer(o *TimedScheduleOp) error {
	return errors.New("aiocore: native timers are not available on this platform")
}
