// File: api/token.go
// Author: momentics <momentics@gmail.com>
//
// Cancellation-token contract consumed by the async-operation machinery.

package api

// Registration is a scoped binding of a callback to a cancellation token.
// Detach atomically removes the binding: after Detach returns, the callback
// either never ran or has finished running. Detach must not be called from
// the registration's own callback.
type Registration interface {
	Detach()
}

// Token is an observable cancellation flag with scoped callback
// registration. A nil Token means cancellation is impossible.
type Token interface {
	// CanBeCanceled reports whether a cancellation request can ever be
	// observed through this token.
	CanBeCanceled() bool

	// IsCancellationRequested reports whether cancellation has been
	// requested.
	IsCancellationRequested() bool

	// Register binds cb to the token. If cancellation was already
	// requested, cb runs synchronously before Register returns. The
	// returned registration must be detached by the caller.
	Register(cb func()) (Registration, error)
}
