// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package api defines the contracts shared between the aiocore runtime and
// its collaborators: the error surface, and the cancellation-token contract
// that concrete I/O resources and combinators program against.
package api
