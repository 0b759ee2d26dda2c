// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/halcyonlabs/halcyon-tui/internal/model"
	"github.com/halcyonlabs/halcyon-tui/internal/util"
)

// =============================================================================
// TOP-LEVEL LAYOUT
// =============================================================================

// renderChat assembles the full view: header, transcript viewport,
// notice line, input area, status bar.
func (m Model) renderChat() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderNotice())
	b.WriteString("\n")
	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	return b.String()
}

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("halcyon")
	badge := ""
	if m.sessionID != "" {
		badge = m.theme.SessionBadge.Render(" session " + util.TruncateRunes(m.sessionID, 12))
	}
	return m.theme.Header.Width(max(m.width, 1)).Render(title + badge)
}

func (m Model) renderNotice() string {
	if m.notice == "" {
		return ""
	}
	return m.theme.NoticeText.Render(m.notice)
}

func (m Model) renderInput() string {
	if m.state == StateStreaming {
		return m.theme.InputContainer.Render(
			m.theme.Spinner.Render(m.spinner.View()) + " " +
				m.theme.ThinkingText.Render("Answering... press Esc to cancel"))
	}
	return m.theme.InputContainer.Render(m.input.View())
}

func (m Model) renderStatusBar() string {
	shortcuts := []struct{ key, desc string }{
		{"Enter", "send"},
		{"Esc", "cancel"},
		{"Ctrl+N", "new session"},
		{"Ctrl+T", "thoughts"},
		{"Ctrl+E", "traces"},
		{"Ctrl+Q", "quit"},
	}

	var parts []string
	for _, s := range shortcuts {
		parts = append(parts, m.theme.ShortcutKey.Render(s.key)+" "+m.theme.ShortcutDesc.Render(s.desc))
	}
	return m.theme.StatusBar.Width(max(m.width, 1)).Render(strings.Join(parts, "  "))
}

// =============================================================================
// TRANSCRIPT RENDERING
// =============================================================================

// renderTranscript renders the turn history plus the understanding
// card. It paints from tracker snapshots: the engine goroutine keeps
// mutating the live turns, and the snapshot is taken under the same
// lock that guards those mutations.
func (m Model) renderTranscript() string {
	var sections []string
	for _, t := range m.engine.Tracker().Snapshot() {
		sections = append(sections, m.renderTurn(t))
	}
	if m.understanding != nil && !m.understanding.IsEmpty() {
		sections = append(sections, m.renderUnderstanding())
	}

	if len(sections) == 0 {
		return m.theme.ThinkingText.Render("\n  Start a conversation.\n")
	}
	return strings.Join(sections, "\n\n")
}

func (m Model) renderTurn(t model.TurnView) string {
	switch t.Role {
	case model.RoleUser:
		return m.renderUserTurn(t)
	case model.RoleSystem:
		return m.theme.SystemBubble.Render(t.Content)
	default:
		return m.renderAssistantTurn(t)
	}
}

func (m Model) renderUserTurn(t model.TurnView) string {
	label := m.theme.RoleLabel.Render(t.Role.DisplayName())
	bubble := m.theme.UserBubble.Render(t.Content)
	return lipgloss.JoinVertical(lipgloss.Right, label, bubble)
}

func (m Model) renderAssistantTurn(t model.TurnView) string {
	label := m.theme.RoleLabel.Render(t.Role.DisplayName())
	if t.Model != "" {
		label += " " + m.theme.ModelBadge.Render(t.Model)
	}

	var parts []string
	parts = append(parts, label)

	// Placeholder status while nothing has arrived.
	if t.State == model.StatePending {
		status := t.Status
		if status == "" {
			status = "Thinking..."
		}
		parts = append(parts, m.theme.StatusLine.Render(m.spinner.View()+" "+status))
		return lipgloss.JoinVertical(lipgloss.Left, parts...)
	}

	if m.showThoughts && len(t.Thoughts) > 0 {
		var lines []string
		lines = append(lines, m.theme.PanelHeader.Render("Reasoning"))
		for _, th := range t.Thoughts {
			lines = append(lines, m.theme.ThoughtLine.Render(th))
		}
		parts = append(parts, m.theme.ThoughtPanel.Render(strings.Join(lines, "\n")))
	}

	if m.showTraces && len(t.Traces) > 0 {
		var lines []string
		lines = append(lines, m.theme.PanelHeader.Render("Traces"))
		lines = append(lines, t.Traces...)
		parts = append(parts, m.theme.TracePanel.Render(strings.Join(lines, "\n")))
	}

	switch t.State {
	case model.StateErrored:
		parts = append(parts, m.theme.ErrorBox.Render(
			m.theme.ErrorTitle.Render("Error")+"\n"+t.Content))

	case model.StateCancelled:
		parts = append(parts, m.theme.NoticeText.Render(t.Content))

	case model.StateStreaming:
		// Raw text while streaming; markdown styling lands on finalize.
		parts = append(parts, m.theme.AssistantBubble.Render(t.Content))

	default:
		parts = append(parts, m.theme.AssistantBubble.Render(m.renderMarkdown(t.Content)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// renderMarkdown renders final content through glamour, falling back to
// the raw text when rendering fails.
func (m Model) renderMarkdown(content string) string {
	if m.markdown == nil || content == "" {
		return content
	}
	out, err := m.markdown.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

func (m Model) renderUnderstanding() string {
	u := m.understanding
	var lines []string
	lines = append(lines, m.theme.UnderstandHead.Render("Understanding"))
	if u.TLDR != "" {
		lines = append(lines, u.TLDR)
	}
	for _, p := range u.KeyPoints {
		lines = append(lines, "• "+p)
	}
	for _, a := range u.ActionItems {
		lines = append(lines, "→ "+a)
	}
	return m.theme.Understanding.Render(strings.Join(lines, "\n"))
}
