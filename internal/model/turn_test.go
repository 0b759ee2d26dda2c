// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "testing"

func TestTurn_StreamingLifecycle(t *testing.T) {
	turn := NewPendingTurn()
	if turn.State != StatePending || !turn.InProgress() {
		t.Fatalf("fresh placeholder: %+v", turn)
	}

	turn.AppendToken("Hello")
	turn.AppendToken(", world")
	if turn.State != StateStreaming {
		t.Errorf("state = %v", turn.State)
	}
	if turn.DisplayContent() != "Hello, world" {
		t.Errorf("display = %q", turn.DisplayContent())
	}

	// A final with no payload keeps the accumulation.
	turn.Finalize("", "")
	if turn.State != StateFinal || turn.InProgress() {
		t.Errorf("state = %v", turn.State)
	}
	if turn.Content != "Hello, world" {
		t.Errorf("content = %q", turn.Content)
	}
}

func TestTurn_FinalizeWithPayload(t *testing.T) {
	turn := NewPendingTurn()
	turn.AppendToken("streamed draft")

	turn.Finalize("final text", "<p>final text</p>")
	if turn.Content != "final text" || turn.Markup != "<p>final text</p>" {
		t.Errorf("turn: %+v", turn)
	}
	// Markup wins for display.
	if turn.DisplayContent() != "<p>final text</p>" {
		t.Errorf("display = %q", turn.DisplayContent())
	}
}

func TestTurn_AppendTokenAfterTerminalIgnored(t *testing.T) {
	turn := NewPendingTurn()
	turn.Finalize("done", "")
	turn.AppendToken("stale")
	if turn.State != StateFinal || turn.DisplayContent() != "done" {
		t.Errorf("terminal turn mutated: %+v", turn)
	}
}

func TestTurn_Fail(t *testing.T) {
	turn := NewPendingTurn()
	turn.AppendToken("half")
	turn.Fail("it broke")
	if turn.State != StateErrored {
		t.Errorf("state = %v", turn.State)
	}
	if turn.Content != "it broke" || turn.Markup != "" {
		t.Errorf("turn: %+v", turn)
	}
}

func TestTurn_IsEmpty(t *testing.T) {
	turn := NewPendingTurn()
	if !turn.IsEmpty() {
		t.Error("fresh placeholder is empty")
	}
	turn.AppendToken("x")
	if turn.IsEmpty() {
		t.Error("streamed content counts")
	}
}

func TestTurnState_Terminal(t *testing.T) {
	terminal := map[TurnState]bool{
		StatePending:   false,
		StateStreaming: false,
		StateFinal:     true,
		StateErrored:   true,
		StateCancelled: true,
	}
	for state, want := range terminal {
		if got := state.Terminal(); got != want {
			t.Errorf("%v.Terminal() = %v", state, got)
		}
	}
}

func TestTurn_View(t *testing.T) {
	turn := NewPendingTurn()
	turn.AppendToken("stream")
	turn.Thoughts = append(turn.Thoughts, "step")

	v := turn.View()
	if v.Role != RoleAssistant || v.State != StateStreaming {
		t.Errorf("view: %+v", v)
	}
	if v.Content != "stream" {
		t.Errorf("view content = %q", v.Content)
	}
	if !v.InProgress() {
		t.Error("streaming view is in progress")
	}

	// The view is a copy; the live turn keeps moving without it.
	turn.AppendToken(" more")
	turn.Thoughts = append(turn.Thoughts, "later step")
	if v.Content != "stream" || len(v.Thoughts) != 1 {
		t.Errorf("snapshot mutated: %+v", v)
	}

	turn.Finalize("plain", "<p>rich</p>")
	final := turn.View()
	if final.Content != "<p>rich</p>" {
		t.Errorf("final view prefers markup, got %q", final.Content)
	}
	if final.InProgress() {
		t.Error("final view is not in progress")
	}
}

func TestSession_ActiveTurn(t *testing.T) {
	s := NewSession()
	if s.ActiveTurn() != nil {
		t.Error("empty session has no active turn")
	}

	s.Append(NewUserTurn("q"))
	pending := NewPendingTurn()
	s.Append(pending)

	if s.ActiveTurn() != pending {
		t.Error("expected the placeholder back")
	}
	pending.Finalize("a", "")
	if s.ActiveTurn() != nil {
		t.Error("finalized turn must not be active")
	}
}

func TestSession_LastAnswer(t *testing.T) {
	s := NewSession()
	if s.LastAnswer() != nil {
		t.Error("empty session has no answer")
	}

	s.Append(NewUserTurn("q1"))
	a1 := NewPendingTurn()
	a1.Finalize("first", "")
	s.Append(a1)

	s.Append(NewUserTurn("q2"))
	a2 := NewPendingTurn()
	s.Append(a2)

	// The in-flight placeholder is not an answer yet.
	if got := s.LastAnswer(); got != a1 {
		t.Errorf("LastAnswer = %+v", got)
	}
	a2.Finalize("second", "")
	if got := s.LastAnswer(); got != a2 {
		t.Errorf("LastAnswer = %+v", got)
	}
}

func TestUnderstandingSummary_IsEmpty(t *testing.T) {
	if !(UnderstandingSummary{}).IsEmpty() {
		t.Error("zero summary is empty")
	}
	if (UnderstandingSummary{TLDR: "x"}).IsEmpty() {
		t.Error("tldr makes it renderable")
	}
	if (UnderstandingSummary{KeyPoints: []string{"p"}}).IsEmpty() {
		t.Error("key points make it renderable")
	}
}

func TestRole_DisplayName(t *testing.T) {
	if RoleUser.DisplayName() != "You" {
		t.Errorf("user = %q", RoleUser.DisplayName())
	}
	if RoleAssistant.DisplayName() != "Halcyon" {
		t.Errorf("assistant = %q", RoleAssistant.DisplayName())
	}
	if Role("custom").DisplayName() != "custom" {
		t.Error("unknown roles pass through")
	}
}
