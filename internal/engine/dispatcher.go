// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/halcyonlabs/halcyon-tui/internal/history"
	"github.com/halcyonlabs/halcyon-tui/internal/model"
	"github.com/halcyonlabs/halcyon-tui/internal/wire"
)

// =============================================================================
// EVENT DISPATCHER
// =============================================================================

// Dispatcher applies typed events to the tracked session and drives the
// renderer. One dispatcher serves one session; Dispatch is called from
// the single goroutine running the stream loop.
type Dispatcher struct {
	tracker  *Tracker
	renderer Renderer
	cancel   *CancelState
	cache    *history.Cache

	// done guards terminal idempotence within a run: replayed `final`
	// frames after the first are dropped, so the model badge and the
	// pointer update happen at most once.
	done bool
}

// NewDispatcher creates a dispatcher. cache may be nil to disable the
// local transcript cache.
func NewDispatcher(tracker *Tracker, renderer Renderer, cancel *CancelState, cache *history.Cache) *Dispatcher {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	return &Dispatcher{
		tracker:  tracker,
		renderer: renderer,
		cancel:   cancel,
		cache:    cache,
	}
}

// BeginRun resets the per-run terminal guard and clears any stale
// cancellation flag left by a run that never produced a terminal event.
func (d *Dispatcher) BeginRun() {
	d.done = false
	d.cancel.Clear()
}

// Done reports whether the current run has seen a terminal event.
func (d *Dispatcher) Done() bool {
	return d.done
}

// Dispatch applies one event.
//
// After a cancellation request everything except terminal events is
// dropped, so a still-streaming server cannot repaint a turn the user
// has abandoned.
func (d *Dispatcher) Dispatch(ev wire.Event) {
	if d.cancel.Suppressed() && !wire.Terminal(ev) {
		return
	}

	// Streaming mutations run under the tracker lock via UpdateActive
	// so concurrent render snapshots never observe a torn write.
	switch e := ev.(type) {
	case wire.StatusEvent:
		if t := d.tracker.UpdateActive(func(t *model.Turn) {
			t.Status = e.Text
		}); t != nil {
			d.renderer.TurnUpdated(t)
		}

	case wire.TraceEvent:
		if e.Markup == "" {
			return
		}
		if t := d.tracker.UpdateActive(func(t *model.Turn) {
			t.Traces = append(t.Traces, e.Markup)
		}); t != nil {
			d.renderer.TurnUpdated(t)
		}

	case wire.TokenEvent:
		if t := d.tracker.UpdateActive(func(t *model.Turn) {
			// First content retires the status placeholder.
			t.Status = ""
			t.AppendToken(e.Text)
		}); t != nil {
			d.renderer.TurnUpdated(t)
		}

	case wire.ThoughtEvent:
		if e.Text == "" {
			return
		}
		if t := d.tracker.UpdateActive(func(t *model.Turn) {
			t.Thoughts = append(t.Thoughts, e.Text)
		}); t != nil {
			d.renderer.TurnUpdated(t)
		}

	case wire.UnderstandingEvent:
		if !e.Summary.IsEmpty() {
			d.renderer.Understanding(e.Summary)
		}

	case wire.FinalEvent:
		d.handleFinal(e)

	case wire.ErrorEvent:
		d.handleError(e)
	}
}

// handleFinal terminates the in-flight turn successfully.
func (d *Dispatcher) handleFinal(e wire.FinalEvent) {
	if d.done {
		// Replayed terminal frame; the first one won.
		return
	}
	d.done = true
	wasCancelled := d.cancel.Suppressed()
	d.cancel.Clear()

	t := d.tracker.ActiveTurn()
	if t == nil {
		// No placeholder to claim. Happens when the server replays a
		// final on attach after the turn already settled locally; the
		// answer still deserves a home.
		t = d.tracker.AppendFinal()
		d.renderer.TurnStarted(t)
	}

	content, embeddedModel := stripModelPrefix(e.Content)
	modelName := e.Model
	if modelName == "" {
		modelName = embeddedModel
	}

	if wasCancelled && content == "" && e.Markup == "" && t.IsEmpty() {
		d.tracker.Update(t, func(t *model.Turn) {
			t.State = model.StateCancelled
			t.Content = "Cancelled."
		})
		d.renderer.TurnFinalized(t)
		return
	}

	d.tracker.Update(t, func(t *model.Turn) {
		t.Status = ""
		t.Model = modelName
		t.Finalize(content, e.Markup)
	})

	adopted := d.tracker.AdoptSession(e.SessionID)
	d.tracker.SyncNumber(t, e.Turn)
	d.tracker.MarkRead(t.Number)
	d.persistTurn(t)

	d.renderer.TurnFinalized(t)
	if adopted {
		d.renderer.SessionAdopted(e.SessionID)
	}
}

// handleError terminates the in-flight turn with a server error.
func (d *Dispatcher) handleError(e wire.ErrorEvent) {
	if d.done {
		return
	}
	d.done = true
	d.cancel.Clear()

	msg := e.Message
	if msg == "" {
		msg = "The server reported an error."
	}

	t := d.tracker.ActiveTurn()
	if t == nil {
		// No placeholder to claim; the error still lands in the
		// transcript, mirroring the final-without-placeholder path.
		t = d.tracker.AppendFinal()
		d.renderer.TurnStarted(t)
	}

	d.tracker.Update(t, func(t *model.Turn) {
		t.Status = ""
		t.Fail(msg)
	})
	d.renderer.TurnFinalized(t)
	d.renderer.Notice(msg)
}

// persistTurn writes a finalized exchange to the local transcript
// cache. Failures are logged and swallowed; the cache is a convenience.
func (d *Dispatcher) persistTurn(t *model.Turn) {
	if d.cache == nil {
		return
	}
	sessionID := d.tracker.SessionID()
	if sessionID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The matching user prompt shares the turn number.
	for _, prev := range d.tracker.Session().Turns {
		if prev.Number == t.Number && prev.Role == model.RoleUser {
			err := d.cache.SaveTurn(ctx, history.CachedTurn{
				SessionID: sessionID,
				Number:    prev.Number,
				Role:      prev.Role.String(),
				Content:   prev.Content,
				CreatedAt: prev.Timestamp,
			})
			if err != nil {
				log.Printf("transcript cache write failed: %v", err)
			}
			break
		}
	}

	err := d.cache.SaveTurn(ctx, history.CachedTurn{
		SessionID: sessionID,
		Number:    t.Number,
		Role:      t.Role.String(),
		Content:   t.Content,
		Markup:    t.Markup,
		Model:     t.Model,
		CreatedAt: t.Timestamp,
	})
	if err != nil {
		log.Printf("transcript cache write failed: %v", err)
	}
}

// stripModelPrefix splits a legacy "[model-name] answer" content form
// into the answer and the embedded model name. Content without the
// prefix passes through untouched.
func stripModelPrefix(content string) (string, string) {
	if !strings.HasPrefix(content, "[") {
		return content, ""
	}
	end := strings.Index(content, "]")
	if end <= 1 || end > 64 {
		return content, ""
	}
	name := content[1:end]
	// Model identifiers never contain newlines; a bracketed sentence
	// fragment is content, not a badge.
	if strings.ContainsAny(name, "\n") {
		return content, ""
	}
	rest := strings.TrimPrefix(content[end+1:], " ")
	return rest, name
}
