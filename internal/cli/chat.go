// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive console chat for the halcyon CLI.
//
// USABILITY: Markdown rendering and history for better CLI experience
//
// Handles "halcyon chat", a readline-style REPL against the same
// streaming engine the TUI uses. Useful over SSH, in screen readers,
// and anywhere a full-screen interface is unwanted.
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /new, /n            Start a new session
//   /sessions           List cached sessions
//   /history            Show the current transcript
//   /delete <id>        Delete a session
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel the current answer
//   Ctrl+D              Exit chat
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"
	"golang.org/x/text/unicode/norm"

	"github.com/halcyonlabs/halcyon-tui/internal/config"
	"github.com/halcyonlabs/halcyon-tui/internal/engine"
	"github.com/halcyonlabs/halcyon-tui/internal/model"
	"github.com/halcyonlabs/halcyon-tui/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
// USABILITY: Supports arrow keys for history navigation and line editing.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	cli := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	cli.LoadHistory()
	return cli
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
// Supports history navigation with arrow keys.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history with secure permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	// SECURITY: 0600, prompts may contain sensitive material
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChatCommand runs the interactive console chat loop.
func HandleChatCommand(args Args) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}

	r := NewConsoleRenderer(args.Quiet, args.Verbose)
	eng, cleanup, err := buildEngine(args, r)
	if err != nil {
		return err
	}
	defer cleanup()

	startTime := time.Now()
	queries := 0

	// Resume the previous session unless asked not to. Attach streams
	// any in-flight answer in the background; its events print through
	// the renderer while the prompt is up.
	if args.Fresh {
		eng.NewSession()
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		attached, err := eng.Attach(ctx)
		cancel()
		if err != nil && !args.Quiet {
			fmt.Fprintf(os.Stderr, "%s could not restore the previous session: %v\n",
				warningStyle.Render("[Warning]"), err)
		}
		if attached && !args.Quiet {
			fmt.Fprintln(os.Stderr, infoStyle.Render("[*] Reattached to an answer in progress."))
		}
	}

	if !args.Quiet {
		printWelcome(eng, args)
	}

	input := NewChatCLI()
	defer input.Close()

	// First Ctrl+C during generation cancels the answer. The prompt's
	// own Ctrl+C is handled by liner and exits the loop.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		for range sigChan {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			eng.Cancel(ctx)
			cancel()
		}
	}()

	for {
		line, err := input.ReadInput(promptStyle.Render("halcyon> "))
		if err != nil {
			// Ctrl+C at the prompt or EOF (Ctrl+D): exit gracefully.
			fmt.Println()
			printExitSummary(queries, startTime)
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			cont, err := handleSlashCommand(line, eng)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			if !cont {
				printExitSummary(queries, startTime)
				return nil
			}
			continue
		}

		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			printExitSummary(queries, startTime)
			return nil
		}

		// UNICODE: NFC-normalize before the prompt leaves the client
		prompt := norm.NFC.String(line)

		fmt.Println()
		if err := eng.Submit(context.Background(), prompt); err != nil {
			if errors.Is(err, engine.ErrTurnInFlight) {
				fmt.Fprintln(os.Stderr, warningStyle.Render("Wait for the current answer to finish."))
			} else {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			continue
		}
		queries++
		fmt.Println()
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (shouldContinue, error) where shouldContinue=false means exit.
func handleSlashCommand(cmd string, eng *engine.Engine) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	command := strings.ToLower(parts[0])
	rest := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		printChatHelp()
		return true, nil

	case "/new", "/n":
		eng.NewSession()
		fmt.Println(commandStyle.Render("[Started a new session]"))
		return true, nil

	case "/sessions":
		return true, printSessionList()

	case "/history":
		printTranscript(eng.Tracker().Snapshot())
		return true, nil

	case "/delete":
		if len(rest) == 0 {
			return true, fmt.Errorf("usage: /delete <session-id>")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := eng.DeleteSession(ctx, rest[0]); err != nil {
			return true, err
		}
		fmt.Printf("%s Deleted session %s\n", commandStyle.Render("[OK]"), rest[0])
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

// printWelcome prints the welcome banner.
func printWelcome(eng *engine.Engine, args Args) {
	cfg := config.Global()
	server := cfg.Server.BaseURL
	if args.Server != "" {
		server = args.Server
	}

	fmt.Println()
	fmt.Println(welcomeStyle.Render("halcyon console chat"))
	fmt.Println(renderSeparator(30))
	fmt.Printf("%s %s\n", infoStyle.Render("Server:"), commandStyle.Render(server))

	if id := eng.Tracker().SessionID(); id != "" {
		fmt.Printf("%s %s\n", infoStyle.Render("Session:"), commandStyle.Render(util.TruncateRunes(id, 12)))
	} else {
		fmt.Printf("%s %s\n", infoStyle.Render("Session:"), dimStyle.Render("new"))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

// printChatHelp prints available commands.
func printChatHelp() {
	fmt.Println()
	fmt.Println(headerStyle.Render("Available Commands"))
	fmt.Println(renderSeparator(20))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/new, /n", "Start a new session"},
		{"/sessions", "List cached sessions"},
		{"/history", "Show the current transcript"},
		{"/delete <id>", "Delete a session"},
		{"/quit, /q", "Exit chat"},
	}

	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-14s", c.cmd)),
			infoStyle.Render(c.desc))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Tip: Ctrl+C cancels the current answer, Ctrl+D exits"))
	fmt.Println()
}

// printTranscript prints the in-memory transcript. It works from
// snapshots: an attached stream may still be appending on its own
// goroutine while the prompt is up.
func printTranscript(turns []model.TurnView) {
	if len(turns) == 0 {
		fmt.Println(infoStyle.Render("[No messages yet]"))
		return
	}

	fmt.Println()
	fmt.Println(headerStyle.Render("Transcript"))
	fmt.Println(renderSeparator(25))
	fmt.Println()

	for _, t := range turns {
		var role string
		switch t.Role {
		case model.RoleUser:
			role = promptStyle.Render("You")
		case model.RoleAssistant:
			role = badgeStyle.Render("AI")
		default:
			role = warningStyle.Render("System")
		}

		// UNICODE: rune-based truncation preserves multi-byte characters
		content := strings.ReplaceAll(t.Content, "\n", " ")
		content = util.TruncateRunes(content, 100)

		fmt.Printf("  %d. %s: %s\n", t.Number, role, content)
	}

	fmt.Println()
}

// printExitSummary prints the session summary on exit.
func printExitSummary(queries int, startTime time.Time) {
	if queries == 0 {
		fmt.Println(infoStyle.Render("Goodbye!"))
		return
	}

	elapsed := time.Since(startTime).Round(time.Second)

	fmt.Println()
	fmt.Println(headerStyle.Render("Session Summary"))
	fmt.Println(renderSeparator(15))
	fmt.Printf("  %s %d\n", infoStyle.Render("Questions:"), queries)
	fmt.Printf("  %s %s\n", infoStyle.Render("Duration:"), elapsed.String())
	fmt.Println()
	fmt.Println(infoStyle.Render("Goodbye!"))
}
