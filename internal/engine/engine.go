// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/halcyonlabs/halcyon-tui/internal/client"
	"github.com/halcyonlabs/halcyon-tui/internal/history"
	"github.com/halcyonlabs/halcyon-tui/internal/model"
	"github.com/halcyonlabs/halcyon-tui/internal/storage"
	"github.com/halcyonlabs/halcyon-tui/internal/wire"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine ties the transport, the tracker, and the dispatcher into the
// turn lifecycle: submit, stream, cancel, attach.
type Engine struct {
	client   *client.Client
	tracker  *Tracker
	cancel   *CancelState
	dispatch *Dispatcher
	pointers *storage.PointerStore
	cache    *history.Cache

	// fallbackEnabled switches the synchronous invoker on when the
	// streaming transport cannot be established.
	fallbackEnabled bool
}

// Options configures engine construction. Zero-value fields disable the
// corresponding concern.
type Options struct {
	Client   *client.Client
	Renderer Renderer
	Pointers *storage.PointerStore
	Cache    *history.Cache

	FallbackEnabled bool
}

// New creates an engine over a fresh session.
func New(opts Options) *Engine {
	tracker := NewTracker(opts.Pointers)
	cancel := &CancelState{}
	return &Engine{
		client:          opts.Client,
		tracker:         tracker,
		cancel:          cancel,
		dispatch:        NewDispatcher(tracker, opts.Renderer, cancel, opts.Cache),
		pointers:        opts.Pointers,
		cache:           opts.Cache,
		fallbackEnabled: opts.FallbackEnabled,
	}
}

// Tracker exposes the session tracker to display layers.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// Renderer returns the dispatcher's renderer.
func (e *Engine) renderer() Renderer {
	return e.dispatch.renderer
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit runs one turn to completion: append the prompt and placeholder,
// stream events, dispatch them, and fall back to the synchronous path
// when streaming cannot start. Blocks until the turn reaches a terminal
// state; display layers run it on their own goroutine.
func (e *Engine) Submit(ctx context.Context, prompt string) error {
	user, pending, err := e.tracker.BeginTurn(prompt)
	if err != nil {
		return err
	}
	e.dispatch.BeginRun()
	e.renderer().TurnStarted(user)
	e.renderer().TurnStarted(pending)

	req := client.TurnRequest{
		SessionID: e.tracker.SessionID(),
		Message:   prompt,
	}

	body, err := e.client.OpenStream(ctx, req, false)
	if err != nil {
		if e.fallbackEnabled && !errors.Is(err, context.Canceled) {
			log.Printf("stream unavailable, using synchronous fallback: %v", err)
			e.invokeFallback(ctx, req)
			return nil
		}
		e.dispatch.Dispatch(wire.ErrorEvent{Message: userFacing(err)})
		return err
	}

	e.consumeStream(body)
	return nil
}

// consumeStream drains a stream body through the dispatcher. A stream
// that ends without a terminal event is reported as an error event so
// the placeholder never hangs.
func (e *Engine) consumeStream(body io.ReadCloser) {
	defer body.Close()

	dec := wire.NewDecoder(body)
	for {
		frame, err := dec.Next()
		if err != nil {
			if err != io.EOF {
				log.Printf("stream read error: %v", err)
			}
			break
		}

		ev, err := wire.DecodeEvent(frame)
		if err != nil {
			// Malformed frames are skipped; the stream stays alive.
			log.Printf("skipping malformed frame (event=%q)", frame.Event)
			continue
		}
		e.dispatch.Dispatch(ev)

		if e.dispatch.Done() {
			break
		}
	}

	if !e.dispatch.Done() {
		e.dispatch.Dispatch(wire.ErrorEvent{
			Message: "The connection was interrupted before the answer completed.",
		})
	}
}

// =============================================================================
// SYNCHRONOUS FALLBACK INVOKER
// =============================================================================

// invokeFallback runs the turn over the synchronous endpoint and
// replays the outcome through the dispatcher as synthesized terminal
// events, so downstream behavior is identical to the streaming path.
func (e *Engine) invokeFallback(ctx context.Context, req client.TurnRequest) {
	resp, err := e.client.Send(ctx, req)
	if err != nil {
		e.dispatch.Dispatch(wire.ErrorEvent{Message: userFacing(err)})
		return
	}

	e.dispatch.Dispatch(wire.FinalEvent{
		Model:     resp.ModelUsed,
		SessionID: resp.SessionID,
		Content:   resp.Content,
		Markup:    resp.Markup(),
		Turn:      resp.Turn,
	})
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel requests cancellation of the in-flight turn. The stream stays
// open; non-terminal events are suppressed until the server's terminal
// event lands. The server-side notice is best-effort.
func (e *Engine) Cancel(ctx context.Context) {
	if e.tracker.ActiveTurn() == nil {
		return
	}
	if !e.cancel.Request() {
		return
	}
	e.renderer().Notice("Cancelling...")

	if id := e.tracker.SessionID(); id != "" {
		if err := e.client.CancelRun(ctx, id); err != nil {
			log.Printf("cancel notice failed: %v", err)
		}
	}
}

// =============================================================================
// ATTACH / STARTUP RESOLUTION
// =============================================================================

// Attach restores the last session on startup: preload cached history,
// ask the server whether a generation is still running, and when it is,
// re-join its stream with a single fresh placeholder. Returns true when
// a running generation was attached.
func (e *Engine) Attach(ctx context.Context) (bool, error) {
	if e.pointers == nil {
		return false, nil
	}
	sessionID := e.pointers.Load().LastSessionID
	if sessionID == "" {
		return false, nil
	}

	e.preloadHistory(ctx, sessionID)

	running, err := e.client.RunState(ctx, sessionID)
	if err != nil {
		if errors.Is(err, client.ErrSessionNotFound) {
			e.pointers.Forget(sessionID)
			e.tracker.Reset()
			return false, nil
		}
		// Server unreachable: keep the preloaded history, start idle.
		log.Printf("run-state query failed: %v", err)
		return false, nil
	}
	if !running {
		return false, nil
	}

	// The re-joined stream outlives the caller's startup deadline; it is
	// consumed on its own goroutine until the terminal event.
	body, err := e.client.OpenStream(context.WithoutCancel(ctx), client.TurnRequest{SessionID: sessionID}, true)
	if err != nil {
		log.Printf("attach failed: %v", err)
		return false, nil
	}

	pending := e.tracker.Resume()
	e.dispatch.BeginRun()
	e.renderer().TurnStarted(pending)
	go e.consumeStream(body)
	return true, nil
}

// preloadHistory rebuilds the session from the local transcript cache,
// falling back to the server history endpoint when the cache is empty.
func (e *Engine) preloadHistory(ctx context.Context, sessionID string) {
	var turns []*model.Turn

	if e.cache != nil {
		cached, err := e.cache.LoadSession(ctx, sessionID)
		if err == nil {
			for _, c := range cached {
				turns = append(turns, cachedToTurn(c))
			}
		}
	}

	if len(turns) == 0 {
		remote, err := e.client.History(ctx, sessionID)
		if err != nil {
			log.Printf("history preload failed: %v", err)
			return
		}
		for _, h := range remote {
			turns = append(turns, historyToTurn(h))
		}
	}

	if len(turns) == 0 {
		return
	}
	e.tracker.LoadHistory(sessionID, turns)
	e.renderer().HistoryLoaded(e.tracker.Session())
}

// cachedToTurn converts a cached row into a finalized turn.
func cachedToTurn(c history.CachedTurn) *model.Turn {
	t := &model.Turn{
		Role:      model.Role(c.Role),
		Number:    c.Number,
		Content:   c.Content,
		Markup:    c.Markup,
		Model:     c.Model,
		State:     model.StateFinal,
		Timestamp: c.CreatedAt,
	}
	return t
}

// historyToTurn converts a server history entry into a finalized turn.
func historyToTurn(h client.HistoryTurn) *model.Turn {
	return &model.Turn{
		Role:    model.Role(h.Role),
		Number:  h.Turn,
		Content: h.Content,
		Markup:  h.HTML,
		Model:   h.Model,
		State:   model.StateFinal,
	}
}

// =============================================================================
// SESSION MANAGEMENT
// =============================================================================

// NewSession abandons the current session locally and starts fresh.
func (e *Engine) NewSession() {
	e.tracker.Reset()
	if e.pointers != nil {
		e.pointers.SetSession("")
	}
	e.renderer().SessionAdopted("")
}

// DeleteSession removes a session on the server and from local state.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	if err := e.client.DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, client.ErrSessionNotFound) {
		return err
	}
	if e.cache != nil {
		if err := e.cache.Delete(ctx, sessionID); err != nil && !errors.Is(err, history.ErrSessionNotFound) {
			log.Printf("cache delete failed: %v", err)
		}
	}
	if e.pointers != nil {
		e.pointers.Forget(sessionID)
	}
	if e.tracker.SessionID() == sessionID {
		e.tracker.Reset()
	}
	return nil
}

// userFacing converts a transport error into a message fit for the
// transcript.
func userFacing(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "Request cancelled."
	case errors.Is(err, client.ErrRateLimited):
		return "The server is busy. Please try again shortly."
	case errors.Is(err, client.ErrSessionNotFound):
		return "This session no longer exists on the server."
	default:
		return "Could not reach the server: " + err.Error()
	}
}
