// File: api/errors.go
// Author: momentics <momentics@gmail.com>
//
// Error surface of the runtime core. This package defines two kinds:
// cancellation, and resource errors wrapping an OS-native status.

package api

import (
	"errors"
	"fmt"
)

// ErrCanceled is returned from an await when the operation was cancelled
// before its completion arrived. It is distinct from every resource error so
// that combinators can unwind without confusing cancellation with I/O
// failure.
var ErrCanceled = errors.New("aiocore: operation canceled")

// ResourceError wraps an OS-native error (errno, NTSTATUS) together with the
// operation that produced it. Every failed OS call surfaced by the core is
// of this type. The service's own conditions (Reset with active workers,
// Close with deferred schedules pending) and the unsupported-platform stubs
// are reported as plain errors instead.
type ResourceError struct {
	Op  string // the failing operation, e.g. "epoll_ctl", "timerfd_settime"
	Err error  // the underlying OS error
}

// Error implements the error interface.
func (e *ResourceError) Error() string {
	return fmt.Sprintf("aiocore: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying OS error to errors.Is/errors.As.
func (e *ResourceError) Unwrap() error { return e.Err }

// NewResourceError wraps err as a ResourceError attributed to op.
func NewResourceError(op string, err error) error {
	return &ResourceError{Op: op, Err: err}
}

// IsCanceled reports whether err represents operation cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}
