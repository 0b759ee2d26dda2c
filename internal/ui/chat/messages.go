// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/halcyonlabs/halcyon-tui/internal/model"
)

// =============================================================================
// ENGINE MESSAGES
// =============================================================================
// The engine runs on its own goroutine; its renderer forwards every
// display change into the Bubble Tea loop as one of these messages.

// TurnStartedMsg announces a newly appended turn. It carries a value
// snapshot, never the live turn: the engine keeps mutating the turn on
// its own goroutine after the send.
type TurnStartedMsg struct {
	Turn model.TurnView
}

// TurnFinalizedMsg signals that a turn reached a terminal state.
type TurnFinalizedMsg struct {
	Turn model.TurnView
}

// UnderstandingMsg carries the structured query-understanding card.
type UnderstandingMsg struct {
	Summary model.UnderstandingSummary
}

// NoticeMsg shows a transient system notice in the status area.
type NoticeMsg struct {
	Text string
}

// SessionAdoptedMsg reports a session identity change.
type SessionAdoptedMsg struct {
	SessionID string
}

// HistoryLoadedMsg signals that preloaded history replaced the
// transcript; the paint path re-reads the tracker snapshot.
type HistoryLoadedMsg struct{}

// SubmitDoneMsg reports that a Submit call returned; the turn itself
// settled through the terminal messages above.
type SubmitDoneMsg struct {
	Err error
}

// renderTickMsg drives the paint gate while a turn is streaming.
type renderTickMsg struct{}
