// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/halcyonlabs/halcyon-tui/internal/engine"
	"github.com/halcyonlabs/halcyon-tui/internal/model"
)

// sender is the subset of *tea.Program the renderer needs. Tests
// substitute a recording implementation.
type sender interface {
	Send(tea.Msg)
}

// ProgramRenderer bridges the engine to the Bubble Tea loop. The engine
// calls it from the stream goroutine; every call becomes a message.
//
// Token-level updates are coalesced through the render gate instead of
// sent individually: the gate's dirty bit plus the streaming tick give
// the paint cadence.
type ProgramRenderer struct {
	program sender
	gate    *renderGate
}

// NewProgramRenderer creates a renderer bound to a running program.
func NewProgramRenderer(p sender, gate *renderGate) *ProgramRenderer {
	return &ProgramRenderer{program: p, gate: gate}
}

var _ engine.Renderer = (*ProgramRenderer)(nil)

func (r *ProgramRenderer) HistoryLoaded(s *model.Session) {
	r.program.Send(HistoryLoadedMsg{})
}

// Turn callbacks run on the engine goroutine while it is the sole
// mutator of the turn, so taking the snapshot here is safe; the
// message crossing into the program loop carries only the copy.

func (r *ProgramRenderer) TurnStarted(t *model.Turn) {
	r.program.Send(TurnStartedMsg{Turn: t.View()})
}

func (r *ProgramRenderer) TurnUpdated(t *model.Turn) {
	// Coalesced: the tick handler repaints when the gate is dirty.
	r.gate.MarkDirty()
}

func (r *ProgramRenderer) TurnFinalized(t *model.Turn) {
	r.program.Send(TurnFinalizedMsg{Turn: t.View()})
}

func (r *ProgramRenderer) Understanding(s model.UnderstandingSummary) {
	r.program.Send(UnderstandingMsg{Summary: s})
}

func (r *ProgramRenderer) Notice(text string) {
	r.program.Send(NoticeMsg{Text: text})
}

func (r *ProgramRenderer) SessionAdopted(sessionID string) {
	r.program.Send(SessionAdoptedMsg{SessionID: sessionID})
}

// DeferredSender breaks the construction cycle between the engine and
// the program: the engine's renderer is built before tea.NewProgram
// returns, then bound here. Sends before binding are dropped; nothing
// streams before the program runs.
type DeferredSender struct {
	mu sync.Mutex
	p  sender
}

// Bind attaches the running program.
func (d *DeferredSender) Bind(p sender) {
	d.mu.Lock()
	d.p = p
	d.mu.Unlock()
}

// Send forwards to the bound program.
func (d *DeferredSender) Send(msg tea.Msg) {
	d.mu.Lock()
	p := d.p
	d.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}
