// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine implements the streaming reconciliation core: it
// consumes typed events off the wire, maintains the session and turn
// state, and drives a display through the Renderer boundary. The engine
// is display-agnostic; the full-screen UI and the line-mode REPL both
// sit behind the same interface.
package engine

import "github.com/halcyonlabs/halcyon-tui/internal/model"

// Renderer is the display boundary. The engine calls it from whatever
// goroutine runs the event loop; implementations that have their own
// event loop forward the calls as messages.
//
// Turn pointers passed here are live: the engine mutates them as later
// events arrive, so renderers read state at paint time rather than
// caching copies.
type Renderer interface {
	// HistoryLoaded replaces the displayed transcript with preloaded
	// history, e.g. after attach-on-startup.
	HistoryLoaded(session *model.Session)

	// TurnStarted announces a newly appended turn: a user prompt, a
	// pending placeholder, or a system notice.
	TurnStarted(t *model.Turn)

	// TurnUpdated signals that a turn's streaming state changed
	// (status, tokens, thoughts, traces).
	TurnUpdated(t *model.Turn)

	// TurnFinalized signals that a turn reached a terminal state.
	TurnFinalized(t *model.Turn)

	// Understanding presents the structured query-understanding card.
	Understanding(s model.UnderstandingSummary)

	// Notice shows a transient system notice outside the transcript.
	Notice(text string)

	// SessionAdopted reports that the session identity changed; session
	// listings should refresh.
	SessionAdopted(sessionID string)
}

// NopRenderer discards every call. Useful as a default and in tests
// that only exercise state transitions.
type NopRenderer struct{}

func (NopRenderer) HistoryLoaded(*model.Session)               {}
func (NopRenderer) TurnStarted(*model.Turn)                    {}
func (NopRenderer) TurnUpdated(*model.Turn)                    {}
func (NopRenderer) TurnFinalized(*model.Turn)                  {}
func (NopRenderer) Understanding(model.UnderstandingSummary)   {}
func (NopRenderer) Notice(string)                              {}
func (NopRenderer) SessionAdopted(string)                      {}

var _ Renderer = NopRenderer{}
