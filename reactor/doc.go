// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the platform backend of the aiocore runtime: a
// process-local multiplexer delivering three kinds of messages to the event
// loop — native I/O completion or readiness for a registered handle,
// user-posted resume messages carrying an opaque continuation, and wakeup
// messages used to unblock workers during shutdown.
//
// Two backend families exist. The completion-port backend (Windows IOCP)
// posts completion events after the kernel has performed the I/O; arming is
// a no-op because the syscall that starts the operation already carries the
// completion cookie. The readiness backends (Linux epoll, Darwin kqueue)
// notify when a handle becomes ready and the operation's completion
// function performs the syscall; they additionally multiplex an internal
// doorbell so that posted messages travel through the same poll call as
// I/O readiness — a single wait point per worker.
package reactor
