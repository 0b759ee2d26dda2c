// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Centralized styling for all halcyon CLI commands.
//
// Color handling:
// - Colors are automatically disabled for non-TTY output (piped, redirected)
// - Respects NO_COLOR environment variable (https://no-color.org/)
// - Supports FORCE_COLOR environment variable to override detection
package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/halcyonlabs/halcyon-tui/internal/ui/styles"
)

// init configures lipgloss color profile based on terminal capabilities.
func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES FOR ALL CLI COMMANDS
// =============================================================================

var (
	// promptStyle is used for the interactive input prompt
	promptStyle = lipgloss.NewStyle().
			Foreground(styles.Teal).
			Bold(true)

	// welcomeStyle is used for the chat welcome banner
	welcomeStyle = lipgloss.NewStyle().
			Foreground(styles.Indigo).
			Bold(true)

	// infoStyle is used for secondary informational text
	infoStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)

	// commandStyle is used for command names and confirmed values
	commandStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald)

	// warningStyle is used for warnings and cautions
	warningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	// errorStyle is used for error messages and failures
	errorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)

	// headerStyle is used for section headers in command output
	headerStyle = lipgloss.NewStyle().
			Foreground(styles.Teal).
			Bold(true)

	// dimStyle is used for de-emphasized text
	dimStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)

	// badgeStyle is used for model and session badges
	badgeStyle = lipgloss.NewStyle().
			Foreground(styles.IndigoDeep).
			Bold(true)
)

// =============================================================================
// HELPERS
// =============================================================================

// renderSeparator renders a horizontal separator line.
func renderSeparator(width int) string {
	if width <= 0 {
		width = 30
	}
	return infoStyle.Render(strings.Repeat("─", width))
}

// renderConditional renders text with style only when colors are enabled.
func renderConditional(style lipgloss.Style, text string) string {
	if !ColorsEnabled() {
		return text
	}
	return style.Render(text)
}
