// File: service/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Functional options for service construction.

package service

import (
	"go.uber.org/zap"

	"github.com/momentics/aiocore/reactor"
)

// TimerBackend selects how timed schedules are delivered.
type TimerBackend int

const (
	// TimerBackendAuto picks native kernel timers where the platform has
	// them and the dedicated timer goroutine elsewhere.
	TimerBackendAuto TimerBackend = iota
	// TimerBackendNative forces native kernel timers (timerfd, kqueue
	// EVFILT_TIMER).
	TimerBackendNative
	// TimerBackendThread forces the dedicated timer goroutine with the
	// heap-ordered timer queue.
	TimerBackendThread
)

// Option customizes service construction.
type Option func(*Service)

// WithLogger attaches a structured logger. The default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithConcurrencyHint advises the target number of concurrently active
// I/O workers. It is forwarded to the reactor (the completion port's
// concurrency value on Windows, queue sizing elsewhere). Zero means no
// hint.
func WithConcurrencyHint(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.hint = n
		}
	}
}

// WithTimerBackend overrides the timer backend choice.
func WithTimerBackend(b TimerBackend) Option {
	return func(s *Service) {
		s.timerBackend = b
	}
}

// WithTimerHeapCapacity bounds the timer queue's heap; entries beyond it
// go to the insertion-sorted overflow list. Zero selects the default.
func WithTimerHeapCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.timerHeapCap = n
		}
	}
}

// WithReactor injects a reactor, taking ownership of it. Used by tests and
// by embedders with a pre-built backend; the default is the platform
// reactor.
func WithReactor(r reactor.Reactor) Option {
	return func(s *Service) {
		s.mq = r
	}
}
