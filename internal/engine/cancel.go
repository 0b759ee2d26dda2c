// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import "sync"

// CancelState tracks a user cancellation request for the in-flight
// turn.
//
// Cancellation is client-authoritative: the stream stays open and the
// flag suppresses every non-terminal event until the server's terminal
// event (or the stream's end) arrives. Only the dispatcher clears the
// flag, on a terminal event or at the start of a new turn, so a slow
// server cannot leak stale updates into the next turn.
type CancelState struct {
	mu        sync.Mutex
	requested bool
}

// Request marks the in-flight turn as cancelled. Returns false if a
// cancellation was already pending.
func (c *CancelState) Request() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requested {
		return false
	}
	c.requested = true
	return true
}

// Suppressed reports whether non-terminal events should be dropped.
func (c *CancelState) Suppressed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requested
}

// Clear resets the flag. Called by the dispatcher only.
func (c *CancelState) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requested = false
}
