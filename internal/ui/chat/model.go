// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the full-screen chat view.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"golang.org/x/text/unicode/norm"

	"github.com/halcyonlabs/halcyon-tui/internal/engine"
	"github.com/halcyonlabs/halcyon-tui/internal/model"
	"github.com/halcyonlabs/halcyon-tui/internal/storage"
	"github.com/halcyonlabs/halcyon-tui/internal/ui/styles"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// State represents the current state of the chat view.
type State int

const (
	StateReady     State = iota // Ready for input
	StateStreaming              // A turn is in flight
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	// State
	state State

	// Styling
	theme *styles.Theme

	// Dimensions
	width  int
	height int

	// Engine
	engine *engine.Engine
	gate   *renderGate

	// UI components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	// Markdown rendering, rebuilt on resize for word wrap
	markdown *glamour.TermRenderer

	// Transient display state
	notice        string
	understanding *model.UnderstandingSummary
	sessionID     string

	// Panel visibility, persisted as preferences
	showThoughts bool
	showTraces   bool
	prefs        *storage.PreferenceStore
}

// Options configures the chat model.
type Options struct {
	Theme        *styles.Theme
	Engine       *engine.Engine
	Gate         *renderGate
	Prefs        *storage.PreferenceStore
	ShowThoughts bool
	ShowTraces   bool
}

// New creates a new chat model.
func New(opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask anything..."
	ti.CharLimit = 8192
	ti.Focus()

	vp := viewport.New(80, 20)
	vp.SetContent("")

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / streamFPS,
	}

	showThoughts := opts.ShowThoughts
	showTraces := opts.ShowTraces
	if opts.Prefs != nil {
		if v := opts.Prefs.Get("ui.show_thoughts", ""); v != "" {
			showThoughts = v == "true"
		}
		if v := opts.Prefs.Get("ui.show_traces", ""); v != "" {
			showTraces = v == "true"
		}
	}

	return Model{
		state:        StateReady,
		theme:        opts.Theme,
		engine:       opts.Engine,
		gate:         opts.Gate,
		viewport:     vp,
		input:        ti,
		spinner:      sp,
		prefs:        opts.Prefs,
		showThoughts: showThoughts,
		showTraces:   showTraces,
	}
}

// NewGate creates the render gate shared between the model and the
// program renderer.
func NewGate() *renderGate {
	return &renderGate{}
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init initializes the model and kicks off attach-on-startup.
func (m Model) Init() tea.Cmd {
	eng := m.engine
	attach := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		attached, err := eng.Attach(ctx)
		if err != nil {
			return NoticeMsg{Text: "Could not restore the previous session."}
		}
		if attached {
			// The attached stream may already be dispatching tokens on
			// its own goroutine; read through the locked snapshot.
			if view, ok := eng.Tracker().ActiveView(); ok {
				return TurnStartedMsg{Turn: view}
			}
		}
		return nil
	}
	return tea.Batch(textinput.Blink, attach)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TurnStartedMsg:
		return m.handleTurnStarted(msg)

	case renderTickMsg:
		return m.handleRenderTick()

	case TurnFinalizedMsg:
		return m.handleTurnFinalized(msg)

	case UnderstandingMsg:
		s := msg.Summary
		m.understanding = &s
		m.updateViewport()
		return m, nil

	case NoticeMsg:
		m.notice = msg.Text
		return m, nil

	case SessionAdoptedMsg:
		m.sessionID = msg.SessionID
		return m, nil

	case HistoryLoadedMsg:
		m.updateViewport()
		m.viewport.GotoBottom()
		return m, nil

	case SubmitDoneMsg:
		if msg.Err != nil && errors.Is(msg.Err, engine.ErrTurnInFlight) {
			m.notice = "Wait for the current answer to finish."
		}
		return m, nil

	case spinner.TickMsg:
		if m.state == StateStreaming {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	default:
		var cmds []tea.Cmd
		if m.state == StateReady {
			var inputCmd tea.Cmd
			m.input, inputCmd = m.input.Update(msg)
			cmds = append(cmds, inputCmd)
		}
		var vpCmd tea.Cmd
		m.viewport, vpCmd = m.viewport.Update(msg)
		cmds = append(cmds, vpCmd)
		return m, tea.Batch(cmds...)
	}
}

// View renders the chat view.
func (m Model) View() string {
	return m.renderChat()
}

// =============================================================================
// MESSAGE HANDLERS
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	// Layout: header + viewport + notice + input + status bar.
	const reservedHeight = 6
	viewportHeight := m.height - reservedHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}
	m.viewport.Width = max(m.width, 1)
	m.viewport.Height = viewportHeight

	inputWidth := m.width - 8
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.Width = inputWidth

	if m.theme != nil {
		m.theme.SetSize(m.width, m.height)
	}

	// Rebuild the markdown renderer for the new wrap width.
	wrap := m.width - 10
	if wrap < 30 {
		wrap = 30
	}
	if r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	); err == nil {
		m.markdown = r
	}

	m.updateViewport()
	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, vpCmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keyStr := msg.String()

	if keyStr == "ctrl+q" {
		return m, tea.Quit
	}

	if m.state == StateStreaming {
		switch keyStr {
		case "ctrl+c", "esc":
			return m, m.cancelCmd()
		}
		return m.handleNavigationKeys(msg)
	}

	switch keyStr {
	case "ctrl+c":
		return m, tea.Quit

	case "ctrl+n":
		m.engine.NewSession()
		m.sessionID = ""
		m.understanding = nil
		m.notice = "Started a new session."
		m.updateViewport()
		return m, nil

	case "ctrl+t":
		m.showThoughts = !m.showThoughts
		m.savePanelPrefs()
		m.updateViewport()
		return m, nil

	case "ctrl+e":
		m.showTraces = !m.showTraces
		m.savePanelPrefs()
		m.updateViewport()
		return m, nil

	case "pgup", "pgdown", "ctrl+u", "ctrl+d", "home", "end":
		return m.handleNavigationKeys(msg)

	case "enter":
		if strings.TrimSpace(m.input.Value()) != "" {
			return m.submitInput()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleNavigationKeys handles viewport navigation keys.
func (m Model) handleNavigationKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "pgup", "ctrl+u":
		m.viewport.HalfViewUp()
	case "pgdown", "ctrl+d":
		m.viewport.HalfViewDown()
	case "up":
		m.viewport.LineUp(1)
	case "down":
		m.viewport.LineDown(1)
	case "home":
		m.viewport.GotoTop()
	case "end":
		m.viewport.GotoBottom()
	}
	return m, nil
}

func (m Model) handleTurnStarted(msg TurnStartedMsg) (tea.Model, tea.Cmd) {
	m.updateViewport()
	m.viewport.GotoBottom()

	if msg.Turn.Role == model.RoleAssistant && msg.Turn.InProgress() {
		m.state = StateStreaming
		m.notice = ""
		m.understanding = nil
		return m, tea.Batch(m.spinner.Tick, streamTickCmd())
	}
	return m, nil
}

func (m Model) handleRenderTick() (tea.Model, tea.Cmd) {
	if m.state != StateStreaming {
		return m, nil
	}
	if m.gate.TakeDirty() {
		m.updateViewport()
		m.viewport.GotoBottom()
	}
	return m, streamTickCmd()
}

func (m Model) handleTurnFinalized(msg TurnFinalizedMsg) (tea.Model, tea.Cmd) {
	// Drain any updates that raced the terminal event.
	m.gate.TakeDirty()
	m.state = StateReady
	m.updateViewport()
	m.viewport.GotoBottom()
	m.input.Focus()
	return m, textinput.Blink
}

// =============================================================================
// SUBMISSION AND CANCELLATION
// =============================================================================

func (m Model) submitInput() (tea.Model, tea.Cmd) {
	// UNICODE: NFC-normalize so composed and decomposed input compare
	// and render identically server-side.
	prompt := norm.NFC.String(strings.TrimSpace(m.input.Value()))
	m.input.Reset()
	m.notice = ""

	eng := m.engine
	submit := func() tea.Msg {
		err := eng.Submit(context.Background(), prompt)
		return SubmitDoneMsg{Err: err}
	}
	return m, submit
}

func (m Model) cancelCmd() tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		eng.Cancel(ctx)
		return nil
	}
}

// savePanelPrefs persists the panel visibility toggles.
func (m *Model) savePanelPrefs() {
	if m.prefs == nil {
		return
	}
	m.prefs.Patch(storage.Preferences{
		"ui.show_thoughts": boolString(m.showThoughts),
		"ui.show_traces":   boolString(m.showTraces),
	})
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// =============================================================================
// VIEWPORT UPDATE
// =============================================================================

func (m *Model) updateViewport() {
	m.viewport.SetContent(m.renderTranscript())
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
