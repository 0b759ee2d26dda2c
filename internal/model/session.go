// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session is a server-tracked conversation identified by an opaque id,
// holding an ordered history of turns. The ID is empty until the first
// successful turn adopts the server-assigned identifier.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Turns []*Turn `json:"turns"`

	// Running mirrors the server's report of an in-flight generation.
	Running bool `json:"-"`
}

// NewSession creates an empty session with no server identity yet.
func NewSession() *Session {
	now := time.Now()
	return &Session{CreatedAt: now, UpdatedAt: now}
}

// Append adds a turn to the history and bumps the update time.
func (s *Session) Append(t *Turn) {
	s.Turns = append(s.Turns, t)
	s.UpdatedAt = time.Now()
}

// ActiveTurn returns the single pending-or-streaming turn, or nil.
// The one-in-flight invariant means at most one can exist.
func (s *Session) ActiveTurn() *Turn {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].InProgress() {
			return s.Turns[i]
		}
	}
	return nil
}

// LastAnswer returns the most recent finalized assistant turn, or nil.
func (s *Session) LastAnswer() *Turn {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		t := s.Turns[i]
		if t.Role == RoleAssistant && t.State == StateFinal {
			return t
		}
	}
	return nil
}

// Len returns the number of turns in the session history.
func (s *Session) Len() int {
	return len(s.Turns)
}

// =============================================================================
// UNDERSTANDING SUMMARY
// =============================================================================

// UnderstandingSummary is the structured summary the server emits as an
// `understanding` event. Rendered as a standalone card, independent of
// the turn bubble it accompanies.
type UnderstandingSummary struct {
	TLDR        string   `json:"tldr,omitempty"`
	KeyPoints   []string `json:"keyPoints,omitempty"`
	ActionItems []string `json:"actionItems,omitempty"`
}

// IsEmpty reports whether the summary carries nothing renderable.
func (u UnderstandingSummary) IsEmpty() bool {
	return u.TLDR == "" && len(u.KeyPoints) == 0 && len(u.ActionItems) == 0
}
