// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"
	"testing"
)

func TestWrapText_ShortLinesUntouched(t *testing.T) {
	text := "short line"
	if got := WrapText(text, 40); got != text {
		t.Errorf("WrapText = %q", got)
	}
}

func TestWrapText_PreservesNewlines(t *testing.T) {
	text := "line one\nline two\nline three"
	if got := WrapText(text, 40); got != text {
		t.Errorf("WrapText = %q", got)
	}
}

func TestWrapText_WrapsAtWordBoundaries(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog again and again"
	got := WrapText(text, 20)

	for _, line := range strings.Split(got, "\n") {
		// Effective width is maxWidth-2 for margin.
		if len(line) > 18 {
			t.Errorf("line too long (%d): %q", len(line), line)
		}
	}
	// No words lost or split.
	if strings.Join(strings.Fields(got), " ") != text {
		t.Errorf("words mangled: %q", got)
	}
}

func TestWrapText_LongWordStandsAlone(t *testing.T) {
	text := "see https://example.com/a/very/long/path/that/exceeds/the/width ok"
	got := WrapText(text, 20)
	if !strings.Contains(got, "https://example.com/a/very/long/path/that/exceeds/the/width") {
		t.Errorf("long word must not be split: %q", got)
	}
}

func TestTTYRequiredError(t *testing.T) {
	err := &TTYRequiredError{Operation: "chat"}
	if !strings.Contains(err.Error(), "chat") {
		t.Errorf("error must name the operation: %v", err)
	}
	bare := &TTYRequiredError{}
	if bare.Error() == "" {
		t.Error("empty operation still needs a message")
	}
}
