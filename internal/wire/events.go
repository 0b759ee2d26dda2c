// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package wire

import (
	"encoding/json"
	"errors"

	"github.com/halcyonlabs/halcyon-tui/internal/model"
)

// ErrMalformedFrame reports a frame whose data is not valid JSON or
// carries no recognized type. The dispatcher's policy is to skip such
// frames and keep the stream alive.
var ErrMalformedFrame = errors.New("malformed frame")

// =============================================================================
// EVENT UNION
// =============================================================================

// Event is the closed union of typed update events. Exactly one concrete
// type exists per wire `type` tag; adding a kind means adding a variant
// here and a case to every switch over Event.
type Event interface {
	isEvent()
}

// StatusEvent replaces the pending placeholder's status text.
type StatusEvent struct {
	Text string
}

// TraceEvent appends one retrieval/tool trace sub-panel to the turn's
// collapsible trace panel.
type TraceEvent struct {
	Markup string
}

// TokenEvent appends an incremental piece of answer content.
type TokenEvent struct {
	Text string
}

// ThoughtEvent appends one line to the auxiliary reasoning panel.
type ThoughtEvent struct {
	Text string
}

// UnderstandingEvent carries the structured query-understanding summary.
// An unparseable inner summary yields an empty value; renderers skip it.
type UnderstandingEvent struct {
	Summary model.UnderstandingSummary
}

// FinalEvent terminates a turn successfully. Markup is the richer
// server-rendered form and wins over Content when both are set. Turn is
// the server-assigned turn number, zero when omitted.
type FinalEvent struct {
	Model     string
	SessionID string
	Content   string
	Markup    string
	Turn      int
}

// ErrorEvent terminates a turn with a server-reported error.
type ErrorEvent struct {
	Message string
}

func (StatusEvent) isEvent()        {}
func (TraceEvent) isEvent()         {}
func (TokenEvent) isEvent()         {}
func (ThoughtEvent) isEvent()       {}
func (UnderstandingEvent) isEvent() {}
func (FinalEvent) isEvent()         {}
func (ErrorEvent) isEvent()         {}

// Terminal reports whether ev ends a turn's in-progress state. Only
// terminal events survive cancellation suppression.
func Terminal(ev Event) bool {
	switch ev.(type) {
	case FinalEvent, ErrorEvent:
		return true
	default:
		return false
	}
}

// =============================================================================
// PAYLOAD DECODE
// =============================================================================

// envelope is the superset of all payload shapes. The `type` field in
// the JSON takes precedence over the frame's event name.
type envelope struct {
	Type        string `json:"type"`
	Data        string `json:"data"`
	Message     string `json:"message"`
	HTML        string `json:"html"`
	ContentHTML string `json:"contentHtml"`
	Content     string `json:"content"`
	Summary     string `json:"summary"`
	ModelUsed   string `json:"modelUsed"`
	SessionID   string `json:"sessionId"`
	Turn        int    `json:"turn"`
}

// DecodeEvent interprets one frame as a typed event.
//
// The payload's `type` field is authoritative; the frame event name is
// only consulted when the payload omits it. Returns ErrMalformedFrame
// for unparseable data or an unrecognized type.
func DecodeEvent(f Frame) (Event, error) {
	var env envelope
	if err := json.Unmarshal([]byte(f.Data), &env); err != nil {
		return nil, ErrMalformedFrame
	}

	typ := env.Type
	if typ == "" {
		typ = f.Event
	}

	switch typ {
	case "status":
		return StatusEvent{Text: env.Data}, nil

	case "trace":
		return TraceEvent{Markup: env.HTML}, nil

	case "token":
		return TokenEvent{Text: env.Data}, nil

	case "thought":
		text := env.Data
		if text == "" {
			text = env.Message
		}
		return ThoughtEvent{Text: text}, nil

	case "understanding":
		raw := env.Data
		if raw == "" {
			raw = env.Summary
		}
		var summary model.UnderstandingSummary
		// A summary that fails to parse degrades to an empty card
		// rather than killing the frame.
		_ = json.Unmarshal([]byte(raw), &summary)
		return UnderstandingEvent{Summary: summary}, nil

	case "final":
		markup := env.HTML
		if markup == "" {
			markup = env.ContentHTML
		}
		return FinalEvent{
			Model:     env.ModelUsed,
			SessionID: env.SessionID,
			Content:   env.Content,
			Markup:    markup,
			Turn:      env.Turn,
		}, nil

	case "error":
		msg := env.Data
		if msg == "" {
			msg = env.Message
		}
		return ErrorEvent{Message: msg}, nil

	default:
		return nil, ErrMalformedFrame
	}
}
