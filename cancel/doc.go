// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package cancel implements the cancellation-token contract from
// aiocore/api: an observable cancellation flag shared between a requesting
// Source and any number of Tokens, with scoped callback registrations that
// detach atomically.
package cancel
