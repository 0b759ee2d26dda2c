// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// renderer.go - Console renderer for plain (non-TUI) operation.
//
// USABILITY: Markdown rendering and history for better CLI experience
//
// Implements the engine's renderer boundary against stdout/stderr. On a
// TTY the answer is collected and rendered as markdown when it settles;
// on a pipe tokens stream through unmodified so output stays greppable.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/halcyonlabs/halcyon-tui/internal/engine"
	"github.com/halcyonlabs/halcyon-tui/internal/model"
)

// ConsoleRenderer prints engine callbacks to the console. The engine
// invokes it from the goroutine consuming the stream; the REPL does not
// read input while a turn is in flight, so no locking is needed.
type ConsoleRenderer struct {
	// Deferred mode collects the answer and renders it on finalize.
	// Streaming mode echoes tokens as they arrive.
	deferred bool

	quiet   bool
	verbose bool

	markdown *glamour.TermRenderer

	// Bytes of the in-flight turn already echoed in streaming mode.
	echoed int

	// Trace lines already shown for the in-flight turn.
	tracesShown int

	// Last status line shown, to avoid repeating identical phases.
	lastStatus string
}

// NewConsoleRenderer creates a renderer appropriate for the current
// terminal. Markdown rendering activates only on a TTY.
func NewConsoleRenderer(quiet, verbose bool) *ConsoleRenderer {
	r := &ConsoleRenderer{
		deferred: IsStdoutTTY(),
		quiet:    quiet,
		verbose:  verbose,
	}
	if r.deferred {
		wrap := GetTerminalWidth()
		if wrap > 100 {
			wrap = 100
		}
		if md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wrap),
		); err == nil {
			r.markdown = md
		}
	}
	return r
}

var _ engine.Renderer = (*ConsoleRenderer)(nil)

// HistoryLoaded prints the tail of a restored transcript so the user
// has context after attach.
func (r *ConsoleRenderer) HistoryLoaded(s *model.Session) {
	if r.quiet || s == nil || s.Len() == 0 {
		return
	}

	turns := s.Turns
	const tail = 6
	if len(turns) > tail {
		turns = turns[len(turns)-tail:]
		fmt.Fprintln(os.Stderr, dimStyle.Render("  ... earlier turns omitted"))
	}
	for _, t := range turns {
		r.printHistoryTurn(t)
	}
	fmt.Fprintln(os.Stderr)
}

func (r *ConsoleRenderer) printHistoryTurn(t *model.Turn) {
	label := t.Role.DisplayName()
	content := strings.ReplaceAll(t.Content, "\n", " ")
	// UNICODE: rune-based truncation preserves multi-byte characters
	runes := []rune(content)
	if len(runes) > 100 {
		content = string(runes[:100]) + "..."
	}
	switch t.Role {
	case model.RoleUser:
		fmt.Fprintf(os.Stderr, "  %s %s\n", promptStyle.Render(label+":"), content)
	default:
		fmt.Fprintf(os.Stderr, "  %s %s\n", infoStyle.Render(label+":"), content)
	}
}

func (r *ConsoleRenderer) TurnStarted(t *model.Turn) {
	if t == nil {
		return
	}
	if t.Role == model.RoleAssistant && t.InProgress() {
		r.echoed = 0
		r.tracesShown = 0
		r.lastStatus = ""
	}
}

func (r *ConsoleRenderer) TurnUpdated(t *model.Turn) {
	if t == nil || t.Role != model.RoleAssistant {
		return
	}

	// Phase changes surface on stderr so they never mix into piped output.
	if t.Status != "" && t.Status != r.lastStatus && !r.quiet {
		fmt.Fprintf(os.Stderr, "%s %s\n", infoStyle.Render("[Status]"), t.Status)
		r.lastStatus = t.Status
	}

	if r.verbose {
		// Traces are append-only; print only the unseen ones.
		for ; r.tracesShown < len(t.Traces); r.tracesShown++ {
			fmt.Fprintf(os.Stderr, "%s %s\n", dimStyle.Render("[Trace]"), t.Traces[r.tracesShown])
		}
	}

	if r.deferred {
		return
	}
	// While streaming, content accumulates in the turn's stream buffer
	// and t.Content stays empty until finalize; DisplayContent is the
	// growing text in either case.
	content := t.DisplayContent()
	if len(content) > r.echoed {
		fmt.Print(content[r.echoed:])
		r.echoed = len(content)
	}
}

func (r *ConsoleRenderer) TurnFinalized(t *model.Turn) {
	if t == nil {
		return
	}

	switch t.State {
	case model.StateErrored:
		fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render("[Error]"), t.Content)
		return
	case model.StateCancelled:
		fmt.Fprintf(os.Stderr, "%s\n", warningStyle.Render(t.Content))
		return
	}

	if !r.quiet && t.Model != "" {
		fmt.Fprintf(os.Stderr, "%s %s\n", dimStyle.Render("[Model]"), badgeStyle.Render(t.Model))
	}

	if r.deferred {
		fmt.Print(r.renderFinal(t.DisplayContent()))
		fmt.Println()
		return
	}

	// Streaming mode: flush whatever the final event added beyond the
	// streamed tokens.
	if len(t.Content) > r.echoed {
		fmt.Print(t.Content[r.echoed:])
	}
	r.echoed = 0
	fmt.Println()
}

// renderFinal renders a settled answer: glamour when available, chroma
// fence highlighting as the styled fallback, raw text last.
func (r *ConsoleRenderer) renderFinal(content string) string {
	if r.markdown != nil {
		if out, err := r.markdown.Render(content); err == nil {
			return strings.TrimRight(out, "\n")
		}
	}
	if ColorsEnabled() {
		return highlightFences(content)
	}
	return content
}

func (r *ConsoleRenderer) Understanding(u model.UnderstandingSummary) {
	if r.quiet || u.IsEmpty() {
		return
	}
	fmt.Fprintln(os.Stderr, headerStyle.Render("[Understanding]"))
	if u.TLDR != "" {
		fmt.Fprintf(os.Stderr, "  %s\n", u.TLDR)
	}
	for _, p := range u.KeyPoints {
		fmt.Fprintf(os.Stderr, "  • %s\n", p)
	}
	for _, a := range u.ActionItems {
		fmt.Fprintf(os.Stderr, "  → %s\n", a)
	}
}

func (r *ConsoleRenderer) Notice(text string) {
	if r.quiet {
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", infoStyle.Render("[*]"), text)
}

func (r *ConsoleRenderer) SessionAdopted(sessionID string) {
	if r.verbose {
		fmt.Fprintf(os.Stderr, "%s session %s\n", dimStyle.Render("[*]"), sessionID)
	}
}
