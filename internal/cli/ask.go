// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single question command handler for the halcyon CLI.
//
// Handles "halcyon ask" which sends one question, prints the answer,
// and exits. The answer still flows through the streaming engine, so
// cancellation, fallback, and transcript caching behave exactly as in
// the interactive modes.
//
// Examples:
//   halcyon ask "What is the capital of France?"
//   cat error.log | halcyon ask
//   halcyon ask --json "List the HTTP safe methods"
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/text/unicode/norm"

	"github.com/halcyonlabs/halcyon-tui/internal/engine"
	"github.com/halcyonlabs/halcyon-tui/internal/model"
)

// askResult is the JSON output shape for --json mode.
type askResult struct {
	Answer    string `json:"answer"`
	Model     string `json:"model,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Turn      int    `json:"turn"`
	State     string `json:"state"`
}

// HandleAskCommand handles the "ask" command.
func HandleAskCommand(args Args) error {
	question := strings.TrimSpace(args.Query)

	// Piped input becomes the question when none was given on the
	// command line.
	if question == "" && !IsTTY() {
		reader := bufio.NewReader(os.Stdin)
		data, err := io.ReadAll(reader)
		if err == nil && len(data) > 0 {
			question = strings.TrimSpace(string(data))
			if !args.Quiet && !args.JSON {
				fmt.Fprintf(os.Stderr, "%s Read question from stdin (%d bytes)\n",
					infoStyle.Render("[+]"), len(data))
			}
		}
	}

	if question == "" {
		return fmt.Errorf("no question provided. Usage: halcyon ask \"your question\"")
	}

	// UNICODE: NFC-normalize so composed and decomposed input behave
	// identically server-side.
	question = norm.NFC.String(question)

	quiet := args.Quiet || args.JSON
	r := NewConsoleRenderer(quiet, args.Verbose)
	if args.JSON {
		// JSON mode owns stdout; suppress the incremental echo.
		r.deferred = true
		r.markdown = nil
	}

	eng, cleanup, err := buildEngine(args, r)
	if err != nil {
		return err
	}
	defer cleanup()

	if args.Fresh {
		eng.NewSession()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args.JSON {
		return askJSON(ctx, eng, question)
	}

	if err := eng.Submit(ctx, question); err != nil {
		return err
	}
	return nil
}

// askJSON runs the turn and prints the settled result as one JSON
// object, suitable for scripting.
func askJSON(ctx context.Context, eng *engine.Engine, question string) error {
	submitErr := eng.Submit(ctx, question)

	answer := eng.Tracker().Session().LastAnswer()
	if answer == nil {
		if submitErr != nil {
			return submitErr
		}
		return fmt.Errorf("no answer received")
	}

	out := askResult{
		Answer:    answer.Content,
		Model:     answer.Model,
		SessionID: eng.Tracker().SessionID(),
		Turn:      answer.Number,
		State:     answer.State.String(),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if answer.State == model.StateErrored {
		return fmt.Errorf("turn failed: %s", answer.Content)
	}
	return submitErr
}
