// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Lock-free concurrency primitives for the aiocore runtime. Currently the
// overflow stack used by the service's fallback scheduling path.
package concurrency
