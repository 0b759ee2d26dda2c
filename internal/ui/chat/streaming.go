// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// streamFPS caps transcript repaints while tokens are arriving. Tokens
// land in the turn immediately; only the repaint is throttled.
const streamFPS = 30

// streamTickCmd schedules the next streaming repaint.
func streamTickCmd() tea.Cmd {
	return tea.Tick(time.Second/streamFPS, func(time.Time) tea.Msg {
		return renderTickMsg{}
	})
}

// =============================================================================
// RENDER GATE
// =============================================================================

// renderGate coalesces the engine's per-token update callbacks into at
// most one repaint per tick. The engine mutates turns in place, so the
// gate only needs a dirty bit, not the content.
//
// PERFORMANCE: Without the gate a fast server repaints per token and
// the viewport re-render dominates CPU.
type renderGate struct {
	mu    sync.Mutex
	dirty bool
}

// MarkDirty records that the transcript changed since the last paint.
func (g *renderGate) MarkDirty() {
	g.mu.Lock()
	g.dirty = true
	g.mu.Unlock()
}

// TakeDirty returns and clears the dirty bit.
func (g *renderGate) TakeDirty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := g.dirty
	g.dirty = false
	return d
}
