// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"errors"
	"sync"

	"github.com/halcyonlabs/halcyon-tui/internal/model"
	"github.com/halcyonlabs/halcyon-tui/internal/storage"
)

// ErrTurnInFlight is returned when a submission arrives while the
// previous turn has not reached a terminal state.
var ErrTurnInFlight = errors.New("a turn is already in flight")

// =============================================================================
// TURN / SESSION TRACKER
// =============================================================================

// Tracker owns the client-side session state: the ordered turn history,
// the monotonic turn numbering used as stable rendering keys, and the
// durable session pointer.
type Tracker struct {
	mu sync.Mutex

	session    *model.Session
	nextNumber int

	pointers *storage.PointerStore
}

// NewTracker creates a tracker over an empty session. pointers may be
// nil; durability then degrades to in-memory only.
func NewTracker(pointers *storage.PointerStore) *Tracker {
	return &Tracker{
		session:    model.NewSession(),
		nextNumber: 1,
		pointers:   pointers,
	}
}

// Session returns the tracked session.
func (tr *Tracker) Session() *model.Session {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.session
}

// SessionID returns the adopted session id, empty before the first
// successful turn.
func (tr *Tracker) SessionID() string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.session.ID
}

// BeginTurn appends the user prompt and a pending assistant placeholder
// sharing one turn number. Enforces the one-in-flight invariant.
func (tr *Tracker) BeginTurn(prompt string) (*model.Turn, *model.Turn, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.session.ActiveTurn() != nil {
		return nil, nil, ErrTurnInFlight
	}

	number := tr.nextNumber
	tr.nextNumber++

	user := model.NewUserTurn(prompt)
	user.Number = number
	pending := model.NewPendingTurn()
	pending.Number = number

	tr.session.Append(user)
	tr.session.Append(pending)
	return user, pending, nil
}

// Resume appends a pending placeholder for a server-side generation
// already in flight, as when attaching after a reload. No user turn is
// appended; the prompt is part of the preloaded history.
func (tr *Tracker) Resume() *model.Turn {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if active := tr.session.ActiveTurn(); active != nil {
		return active
	}

	pending := model.NewPendingTurn()
	pending.Number = tr.nextNumber
	tr.nextNumber++
	tr.session.Append(pending)
	return pending
}

// AppendSystem appends a system notice turn to the transcript. The
// notice consumes a turn number of its own so the rendering key never
// collides with the exchange that follows it.
func (tr *Tracker) AppendSystem(text string) *model.Turn {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	t := model.NewSystemTurn(text)
	t.Number = tr.nextNumber
	tr.nextNumber++
	tr.session.Append(t)
	return t
}

// AppendFinal appends an already-final assistant turn, covering the
// case of a terminal event arriving with no placeholder to claim.
func (tr *Tracker) AppendFinal() *model.Turn {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	t := model.NewPendingTurn()
	t.Number = tr.nextNumber
	tr.nextNumber++
	tr.session.Append(t)
	return t
}

// ActiveTurn returns the in-flight turn, or nil.
func (tr *Tracker) ActiveTurn() *model.Turn {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.session.ActiveTurn()
}

// UpdateActive applies fn to the in-flight turn under the tracker lock
// and returns it, or nil when no turn is active. All streaming
// mutations go through here so Snapshot never observes a half-applied
// update.
func (tr *Tracker) UpdateActive(fn func(*model.Turn)) *model.Turn {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	t := tr.session.ActiveTurn()
	if t == nil {
		return nil
	}
	fn(t)
	return t
}

// Update applies fn to t under the tracker lock. Used for terminal
// transitions where the turn was already obtained.
func (tr *Tracker) Update(t *model.Turn, fn func(*model.Turn)) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	fn(t)
}

// Snapshot returns render copies of the session turns, taken under the
// same lock that guards mutation. Paint paths on other goroutines use
// this instead of walking the live session.
func (tr *Tracker) Snapshot() []model.TurnView {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	views := make([]model.TurnView, 0, len(tr.session.Turns))
	for _, t := range tr.session.Turns {
		views = append(views, t.View())
	}
	return views
}

// ActiveView returns a render snapshot of the in-flight turn.
func (tr *Tracker) ActiveView() (model.TurnView, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	t := tr.session.ActiveTurn()
	if t == nil {
		return model.TurnView{}, false
	}
	return t.View(), true
}

// AdoptSession records the server-assigned session id and persists the
// durable pointer. Returns true when the identity actually changed.
func (tr *Tracker) AdoptSession(sessionID string) bool {
	if sessionID == "" {
		return false
	}

	tr.mu.Lock()
	changed := tr.session.ID != sessionID
	tr.session.ID = sessionID
	tr.mu.Unlock()

	if changed && tr.pointers != nil {
		tr.pointers.SetSession(sessionID)
	}
	return changed
}

// SyncNumber reconciles the local numbering with a server-assigned turn
// number: the assigned turn adopts it and the counter moves past it.
func (tr *Tracker) SyncNumber(t *model.Turn, serverNumber int) {
	if serverNumber <= 0 {
		return
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()

	t.Number = serverNumber
	if serverNumber >= tr.nextNumber {
		tr.nextNumber = serverNumber + 1
	}
}

// MarkRead persists the last-read answer turn for the session.
func (tr *Tracker) MarkRead(turnNumber int) {
	tr.mu.Lock()
	id := tr.session.ID
	tr.mu.Unlock()

	if id != "" && tr.pointers != nil {
		tr.pointers.SetLastRead(id, turnNumber)
	}
}

// LoadHistory replaces the session content with preloaded turns and
// positions the numbering after the highest loaded number.
func (tr *Tracker) LoadHistory(sessionID string, turns []*model.Turn) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.session = model.NewSession()
	tr.session.ID = sessionID
	maxNumber := 0
	for _, t := range turns {
		tr.session.Append(t)
		if t.Number > maxNumber {
			maxNumber = t.Number
		}
	}
	tr.nextNumber = maxNumber + 1
}

// Reset discards the session and starts a fresh one with no server
// identity.
func (tr *Tracker) Reset() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.session = model.NewSession()
	tr.nextNumber = 1
}
