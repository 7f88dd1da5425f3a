//go:build !linux && !darwin && !windows

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub for unsupported platforms.

package reactor

import "errors"

// New returns an error: no backend exists for this platform.
func New(concurrencyHint int) (Reactor, error) {
	return nil, errors.New("reactor: this platform is not supported")
}
