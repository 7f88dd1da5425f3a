// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package service implements the I/O service of the aiocore runtime: it
// owns one reactor, counts outstanding work, sequences caller-supplied
// worker threads in and out of the event loop, provides the stop protocol,
// and runs the timer subsystem.
//
// The service supplies no threads of its own (other than the dedicated
// timer goroutine on platforms without native timer completions): callers
// become workers by invoking ProcessEvents or one of its variants, any
// number of them concurrently.
package service
