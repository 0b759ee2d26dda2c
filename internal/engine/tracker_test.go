// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"path/filepath"
	"testing"

	"github.com/halcyonlabs/halcyon-tui/internal/model"
	"github.com/halcyonlabs/halcyon-tui/internal/storage"
)

func newTestPointers(t *testing.T) *storage.PointerStore {
	t.Helper()
	p, err := storage.NewPointerStoreWithPath(filepath.Join(t.TempDir(), "session.json"))
	if err != nil {
		t.Fatalf("pointer store: %v", err)
	}
	return p
}

func TestTracker_BeginTurn(t *testing.T) {
	tr := NewTracker(nil)

	user, pending, err := tr.BeginTurn("hello")
	if err != nil {
		t.Fatalf("BeginTurn: %v", err)
	}
	if user.Role != model.RoleUser || user.Content != "hello" {
		t.Errorf("user turn: %+v", user)
	}
	if pending.Role != model.RoleAssistant || pending.State != model.StatePending {
		t.Errorf("pending turn: %+v", pending)
	}
	if user.Number != pending.Number {
		t.Errorf("prompt and placeholder must share a number: %d vs %d", user.Number, pending.Number)
	}
	if tr.Session().Len() != 2 {
		t.Errorf("expected 2 turns, got %d", tr.Session().Len())
	}
}

func TestTracker_OneTurnInFlight(t *testing.T) {
	tr := NewTracker(nil)

	_, pending, err := tr.BeginTurn("first")
	if err != nil {
		t.Fatalf("BeginTurn: %v", err)
	}

	if _, _, err := tr.BeginTurn("second"); err != ErrTurnInFlight {
		t.Errorf("expected ErrTurnInFlight, got %v", err)
	}

	pending.Finalize("done", "")
	if _, _, err := tr.BeginTurn("second"); err != nil {
		t.Errorf("submission after finalize should succeed: %v", err)
	}
}

func TestTracker_NumbersAreMonotonic(t *testing.T) {
	tr := NewTracker(nil)

	_, p1, _ := tr.BeginTurn("one")
	if p1.Number != 1 {
		t.Errorf("first turn number = %d, want 1", p1.Number)
	}
	p1.Finalize("a", "")

	_, p2, _ := tr.BeginTurn("two")
	if p2.Number != 2 {
		t.Errorf("second turn number = %d, want 2", p2.Number)
	}
}

func TestTracker_SyncNumber(t *testing.T) {
	tr := NewTracker(nil)
	_, pending, _ := tr.BeginTurn("q")

	// Server says this is turn 7; the counter must move past it.
	tr.SyncNumber(pending, 7)
	if pending.Number != 7 {
		t.Errorf("turn number = %d, want 7", pending.Number)
	}
	pending.Finalize("a", "")

	_, next, _ := tr.BeginTurn("q2")
	if next.Number != 8 {
		t.Errorf("next number = %d, want 8", next.Number)
	}
}

func TestTracker_SyncNumberIgnoresZero(t *testing.T) {
	tr := NewTracker(nil)
	_, pending, _ := tr.BeginTurn("q")

	tr.SyncNumber(pending, 0)
	if pending.Number != 1 {
		t.Errorf("a zero server number must not clobber local numbering, got %d", pending.Number)
	}
}

func TestTracker_AppendSystemConsumesNumber(t *testing.T) {
	tr := NewTracker(nil)

	notice := tr.AppendSystem("session restored")
	if notice.Role != model.RoleSystem || notice.Number != 1 {
		t.Errorf("system turn: %+v", notice)
	}

	// The next exchange must not share the notice's rendering key.
	_, pending, err := tr.BeginTurn("q")
	if err != nil {
		t.Fatalf("BeginTurn: %v", err)
	}
	if pending.Number == notice.Number {
		t.Errorf("turn number %d collides with the system notice", pending.Number)
	}
	if pending.Number != 2 {
		t.Errorf("next number = %d, want 2", pending.Number)
	}
}

func TestTracker_UpdateActive(t *testing.T) {
	tr := NewTracker(nil)

	if got := tr.UpdateActive(func(*model.Turn) {}); got != nil {
		t.Error("no active turn, expected nil")
	}

	_, pending, _ := tr.BeginTurn("q")
	got := tr.UpdateActive(func(t *model.Turn) { t.AppendToken("x") })
	if got != pending {
		t.Error("expected the in-flight placeholder back")
	}
	if pending.DisplayContent() != "x" {
		t.Errorf("content = %q", pending.DisplayContent())
	}
}

func TestTracker_Snapshot(t *testing.T) {
	tr := NewTracker(nil)

	if len(tr.Snapshot()) != 0 {
		t.Error("empty session must snapshot empty")
	}
	if _, ok := tr.ActiveView(); ok {
		t.Error("no active view on an empty session")
	}

	tr.BeginTurn("the question")
	tr.UpdateActive(func(t *model.Turn) { t.AppendToken("the answer") })

	views := tr.Snapshot()
	if len(views) != 2 {
		t.Fatalf("len = %d", len(views))
	}
	if views[0].Role != model.RoleUser || views[0].Content != "the question" {
		t.Errorf("user view: %+v", views[0])
	}
	if views[1].State != model.StateStreaming || views[1].Content != "the answer" {
		t.Errorf("assistant view: %+v", views[1])
	}

	active, ok := tr.ActiveView()
	if !ok || active.Content != "the answer" {
		t.Errorf("active view: %+v ok=%v", active, ok)
	}

	// Views are copies; later mutation must not reach them.
	tr.UpdateActive(func(t *model.Turn) { t.AppendToken(" grew") })
	if views[1].Content != "the answer" {
		t.Errorf("snapshot mutated: %q", views[1].Content)
	}
}

func TestTracker_AdoptSession(t *testing.T) {
	pointers := newTestPointers(t)
	tr := NewTracker(pointers)

	if tr.AdoptSession("") {
		t.Error("adopting an empty id must be a no-op")
	}
	if !tr.AdoptSession("sess-42") {
		t.Error("first adoption must report a change")
	}
	if tr.AdoptSession("sess-42") {
		t.Error("re-adopting the same id must not report a change")
	}
	if tr.SessionID() != "sess-42" {
		t.Errorf("session id = %q", tr.SessionID())
	}

	// The durable pointer followed the adoption.
	if got := pointers.Load().LastSessionID; got != "sess-42" {
		t.Errorf("persisted pointer = %q, want sess-42", got)
	}
}

func TestTracker_Resume(t *testing.T) {
	tr := NewTracker(nil)

	pending := tr.Resume()
	if pending.Role != model.RoleAssistant || pending.State != model.StatePending {
		t.Errorf("resume placeholder: %+v", pending)
	}
	if tr.Session().Len() != 1 {
		t.Errorf("resume must not append a user turn, len = %d", tr.Session().Len())
	}

	// Resuming with an active turn returns it instead of stacking a
	// second placeholder.
	again := tr.Resume()
	if again != pending {
		t.Error("expected the existing placeholder back")
	}
	if tr.Session().Len() != 1 {
		t.Errorf("len = %d after double resume", tr.Session().Len())
	}
}

func TestTracker_LoadHistory(t *testing.T) {
	tr := NewTracker(nil)
	tr.AdoptSession("old")

	turns := []*model.Turn{
		{Role: model.RoleUser, Number: 1, Content: "q1", State: model.StateFinal},
		{Role: model.RoleAssistant, Number: 1, Content: "a1", State: model.StateFinal},
		{Role: model.RoleUser, Number: 5, Content: "q5", State: model.StateFinal},
		{Role: model.RoleAssistant, Number: 5, Content: "a5", State: model.StateFinal},
	}
	tr.LoadHistory("sess-9", turns)

	if tr.SessionID() != "sess-9" {
		t.Errorf("session id = %q", tr.SessionID())
	}
	if tr.Session().Len() != 4 {
		t.Errorf("len = %d", tr.Session().Len())
	}

	// Numbering continues after the highest loaded number.
	_, pending, err := tr.BeginTurn("next")
	if err != nil {
		t.Fatalf("BeginTurn: %v", err)
	}
	if pending.Number != 6 {
		t.Errorf("next number = %d, want 6", pending.Number)
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(nil)
	tr.AdoptSession("sess-1")
	_, pending, _ := tr.BeginTurn("q")
	pending.Finalize("a", "")

	tr.Reset()
	if tr.SessionID() != "" {
		t.Errorf("session id after reset = %q", tr.SessionID())
	}
	if tr.Session().Len() != 0 {
		t.Errorf("len after reset = %d", tr.Session().Len())
	}

	_, p, _ := tr.BeginTurn("fresh")
	if p.Number != 1 {
		t.Errorf("numbering must restart at 1, got %d", p.Number)
	}
}

func TestCancelState(t *testing.T) {
	var c CancelState

	if c.Suppressed() {
		t.Error("fresh state must not suppress")
	}
	if !c.Request() {
		t.Error("first request must succeed")
	}
	if c.Request() {
		t.Error("second request must report already pending")
	}
	if !c.Suppressed() {
		t.Error("suppression must hold after a request")
	}
	c.Clear()
	if c.Suppressed() {
		t.Error("suppression must clear")
	}
	if !c.Request() {
		t.Error("request after clear must succeed")
	}
}
