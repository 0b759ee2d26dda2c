// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions and turns.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Halcyon"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// TURN STATE
// =============================================================================

// TurnState tracks the lifecycle of a turn as observed by the renderer.
//
// Transitions: Pending -> Streaming -> Final, or Pending/Streaming ->
// Errored/Cancelled. At most one turn per session is in Pending or
// Streaming state at a time.
type TurnState int

const (
	// StatePending means the loader placeholder is shown and no content
	// has arrived yet.
	StatePending TurnState = iota

	// StateStreaming means incremental token/trace/thought updates are
	// being applied.
	StateStreaming

	// StateFinal means terminal content is set and the turn is complete.
	StateFinal

	// StateErrored means the turn ended with a server-reported error.
	StateErrored

	// StateCancelled means the user cancelled the turn before completion.
	StateCancelled
)

// Terminal reports whether the state ends a turn's in-progress life.
func (s TurnState) Terminal() bool {
	return s == StateFinal || s == StateErrored || s == StateCancelled
}

// String returns the state name for logging.
func (s TurnState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateFinal:
		return "final"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// =============================================================================
// TURN TYPE
// =============================================================================

// Turn represents a single user-or-assistant exchange unit within a session.
type Turn struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Number is the monotonically assigned turn number used as a stable
	// rendering key. Assigned by the tracker; synthesized from history
	// length when the server omits one.
	Number int `json:"number"`

	// Content is the terminal text or pre-rendered markup of the turn.
	Content string `json:"content"`

	// Markup holds richer server-rendered markup when the server supplied
	// both; renderers prefer it over Content.
	Markup string `json:"markup,omitempty"`

	// Model is the identifier of the model that produced an assistant
	// turn, shown as a badge. Empty for user and system turns.
	Model string `json:"model,omitempty"`

	State TurnState `json:"-"`

	// Status is the transient placeholder status line shown before
	// content arrives. Cleared once streaming begins.
	Status string `json:"-"`

	// Thoughts holds the auxiliary reasoning lines streamed alongside
	// the answer.
	Thoughts []string `json:"-"`

	// Traces holds the retrieval/tool trace panels streamed alongside
	// the answer.
	Traces []string `json:"-"`

	// Streaming accumulation (not persisted).
	// PERFORMANCE: strings.Builder avoids quadratic allocations while tokens arrive
	stream strings.Builder
}

// NewUserTurn creates a user turn with the given content.
func NewUserTurn(content string) *Turn {
	return &Turn{
		ID:        generateTurnID(),
		Role:      RoleUser,
		Content:   content,
		State:     StateFinal,
		Timestamp: time.Now(),
	}
}

// NewPendingTurn creates an assistant turn in the pending state.
func NewPendingTurn() *Turn {
	return &Turn{
		ID:        generateTurnID(),
		Role:      RoleAssistant,
		State:     StatePending,
		Timestamp: time.Now(),
	}
}

// NewSystemTurn creates a system notice turn.
func NewSystemTurn(content string) *Turn {
	return &Turn{
		ID:        generateTurnID(),
		Role:      RoleSystem,
		Content:   content,
		State:     StateFinal,
		Timestamp: time.Now(),
	}
}

// AppendToken appends a streamed increment and moves the turn to the
// streaming state.
func (t *Turn) AppendToken(token string) {
	if t.State.Terminal() {
		return
	}
	t.stream.WriteString(token)
	t.State = StateStreaming
}

// Finalize sets terminal content and marks the turn final. Richer markup
// wins over plain text when both are present.
func (t *Turn) Finalize(content, markup string) {
	if content == "" && markup == "" {
		content = t.stream.String()
	}
	t.Content = content
	t.Markup = markup
	t.stream.Reset()
	t.State = StateFinal
}

// Fail sets the error text as the turn content and marks it errored.
func (t *Turn) Fail(message string) {
	t.Content = message
	t.Markup = ""
	t.stream.Reset()
	t.State = StateErrored
}

// DisplayContent returns the content to render: richer markup when set,
// the streaming accumulation while in flight, otherwise the final text.
func (t *Turn) DisplayContent() string {
	if t.State == StateStreaming {
		return t.stream.String()
	}
	if t.Markup != "" {
		return t.Markup
	}
	return t.Content
}

// InProgress reports whether the turn is pending or streaming.
func (t *Turn) InProgress() bool {
	return !t.State.Terminal()
}

// TurnView is an immutable render snapshot of a turn. The engine keeps
// mutating the live Turn while tokens arrive; paint paths on other
// goroutines work from views taken under the tracker lock instead of
// reading the live struct.
type TurnView struct {
	ID      string
	Role    Role
	Number  int
	State   TurnState
	Status  string
	Model   string
	Content string

	Thoughts []string
	Traces   []string
}

// InProgress reports whether the snapshot was taken before a terminal
// state.
func (v TurnView) InProgress() bool {
	return !v.State.Terminal()
}

// View copies the turn into a render snapshot. Content carries the
// display form: the streaming accumulation while in flight, markup
// when the server supplied it, the final text otherwise.
func (t *Turn) View() TurnView {
	return TurnView{
		ID:       t.ID,
		Role:     t.Role,
		Number:   t.Number,
		State:    t.State,
		Status:   t.Status,
		Model:    t.Model,
		Content:  t.DisplayContent(),
		Thoughts: append([]string(nil), t.Thoughts...),
		Traces:   append([]string(nil), t.Traces...),
	}
}

// IsEmpty returns true if the turn has no content at all.
func (t *Turn) IsEmpty() bool {
	return t.Content == "" && t.Markup == "" && t.stream.Len() == 0
}

// generateTurnID creates a unique client-local turn ID.
func generateTurnID() string {
	return "turn_" + uuid.NewString()
}
