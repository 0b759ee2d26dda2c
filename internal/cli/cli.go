// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command handlers for halcyon.
//
// CLI: Comprehensive help and examples for all commands
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/halcyonlabs/halcyon-tui/internal/client"
	"github.com/halcyonlabs/halcyon-tui/internal/config"
	"github.com/halcyonlabs/halcyon-tui/internal/engine"
	"github.com/halcyonlabs/halcyon-tui/internal/history"
	"github.com/halcyonlabs/halcyon-tui/internal/storage"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.2.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdSessions
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Server     string // Override server base URL
	Plain      bool   // Force the plain console chat instead of the TUI
	Quiet      bool
	Verbose    bool
	JSON       bool // Output in JSON format (ask)
	NoFallback bool // Disable the synchronous fallback request
	Fresh      bool // Start a new session instead of resuming

	// Command-specific
	Query      string
	Subcommand string

	// Raw args remaining after flag parsing
	Raw []string
}

const usageText = `halcyon - terminal client for conversational AI sessions

Halcyon keeps a durable conversation with an AI server: answers stream
in live, interrupted sessions reattach on startup, and transcripts are
cached locally for instant reload.

Usage:
  halcyon                      Start the TUI (default)
  halcyon ask "question"       Ask a single question and exit
  halcyon chat                 Interactive console chat (no TUI)
  halcyon sessions [subcmd]    Manage cached sessions
  halcyon config [show|path]   Configuration
  halcyon version              Show version
  halcyon help                 Show this help

Session Commands:
  halcyon sessions list              List cached sessions
  halcyon sessions show <id>         Print a cached transcript
  halcyon sessions delete <id>       Delete a session (server and cache)
    --confirm                        Required confirmation flag
  halcyon sessions clear --confirm   Drop the whole local cache

Global Flags:
  --server URL     Server base URL (default http://localhost:8080)
  --plain          Plain console chat instead of the TUI
  --fresh          Start a new session instead of resuming the last one
  --no-fallback    Never retry a failed stream as a one-shot request
  --json           JSON output (ask only)
  -q, --quiet      Minimal output
  -v, --verbose    Verbose output (trace events, session changes)

Environment:
  HALCYON_SERVER         Overrides the server base URL
  HALCYON_PLAIN          Non-empty forces plain console mode
  NO_COLOR               Disables colored output

Examples:
  halcyon
  halcyon ask "Summarize RFC 9110 in three bullets"
  cat report.txt | halcyon ask
  halcyon chat --server http://10.0.0.5:8080
  halcyon sessions delete 4f1f6c --confirm
`

// Parse parses os.Args style arguments into a command and Args.
func Parse(argv []string) (Command, Args) {
	args := Args{}
	var positional []string

	i := 0
	for i < len(argv) {
		arg := argv[i]
		switch {
		case arg == "--server" || arg == "-s":
			if i+1 < len(argv) {
				args.Server = argv[i+1]
				i++
			}
		case strings.HasPrefix(arg, "--server="):
			args.Server = strings.TrimPrefix(arg, "--server=")
		case arg == "--plain":
			args.Plain = true
		case arg == "--fresh":
			args.Fresh = true
		case arg == "--no-fallback":
			args.NoFallback = true
		case arg == "--json":
			args.JSON = true
		case arg == "--quiet" || arg == "-q":
			args.Quiet = true
		case arg == "--verbose" || arg == "-v":
			args.Verbose = true
		case arg == "--confirm":
			// Passed through to subcommand handling via Raw.
			positional = append(positional, arg)
		case arg == "--help" || arg == "-h":
			return CmdHelp, args
		case arg == "--version":
			return CmdVersion, args
		default:
			positional = append(positional, arg)
		}
		i++
	}

	args.Raw = positional
	if len(positional) == 0 {
		if args.Plain {
			return CmdChat, args
		}
		return CmdTUI, args
	}

	cmd := positional[0]
	rest := positional[1:]
	if len(rest) > 0 {
		args.Subcommand = rest[0]
	}

	switch cmd {
	case "ask":
		args.Query = strings.Join(rest, " ")
		return CmdAsk, args
	case "chat":
		return CmdChat, args
	case "sessions", "session":
		args.Raw = rest
		return CmdSessions, args
	case "config":
		args.Raw = rest
		return CmdConfig, args
	case "version":
		return CmdVersion, args
	case "help":
		return CmdHelp, args
	default:
		// Bare text is treated as a question: "halcyon how do I ..."
		args.Query = strings.Join(positional, " ")
		return CmdAsk, args
	}
}

// Run dispatches every command except the TUI, which the caller owns.
func Run(cmd Command, args Args) error {
	switch cmd {
	case CmdAsk:
		return HandleAskCommand(args)
	case CmdChat:
		return HandleChatCommand(args)
	case CmdSessions:
		return HandleSessionsCommand(args)
	case CmdConfig:
		return HandleConfigCommand(args)
	case CmdVersion:
		fmt.Printf("halcyon %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		return nil
	case CmdHelp:
		fmt.Print(usageText)
		return nil
	default:
		return fmt.Errorf("unknown command")
	}
}

// =============================================================================
// SHARED CONSTRUCTION
// =============================================================================

// buildEngine assembles the client, stores, cache, and engine for a CLI
// command. The returned cleanup closes the transcript cache.
func buildEngine(args Args, r engine.Renderer) (*engine.Engine, func(), error) {
	cfg := config.Global()
	if args.Server != "" {
		cfg.Server.BaseURL = args.Server
	}

	c := client.New(cfg.Server.BaseURL)

	pointers, err := storage.NewPointerStore()
	if err != nil {
		return nil, nil, fmt.Errorf("session pointer store: %w", err)
	}

	// A broken cache degrades to server-only history, it never blocks
	// the conversation.
	var cache *history.Cache
	if path, err := history.DefaultPath(); err == nil {
		if db, err := history.Open(path); err == nil {
			cache = db
		} else if !args.Quiet {
			fmt.Fprintf(os.Stderr, "%s transcript cache unavailable: %v\n",
				warningStyle.Render("[Warning]"), err)
		}
	}

	eng := engine.New(engine.Options{
		Client:          c,
		Renderer:        r,
		Pointers:        pointers,
		Cache:           cache,
		FallbackEnabled: cfg.Stream.FallbackEnabled && !args.NoFallback,
	})

	cleanup := func() {
		if cache != nil {
			cache.Close()
		}
	}
	return eng, cleanup, nil
}

// HandleConfigCommand handles "config show" and "config path".
func HandleConfigCommand(args Args) error {
	sub := args.Subcommand
	if sub == "" {
		sub = "show"
	}

	switch sub {
	case "path":
		path, err := config.ConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil

	case "show":
		cfg := config.Global()
		fmt.Println(headerStyle.Render("halcyon configuration"))
		fmt.Println(renderSeparator(30))
		fmt.Printf("  %s %s\n", infoStyle.Render("Server:"), cfg.Server.BaseURL)
		fmt.Printf("  %s %ds\n", infoStyle.Render("Timeout:"), cfg.Server.TimeoutSecs)
		fmt.Printf("  %s %d\n", infoStyle.Render("Max retries:"), cfg.Server.MaxRetries)
		fmt.Printf("  %s %v\n", infoStyle.Render("Fallback:"), cfg.Stream.FallbackEnabled)
		fmt.Printf("  %s %s\n", infoStyle.Render("Theme:"), cfg.UI.Theme)
		fmt.Printf("  %s %v\n", infoStyle.Render("Plain mode:"), cfg.UI.Plain)
		return nil

	default:
		return fmt.Errorf("unknown config subcommand: %s (try show, path)", sub)
	}
}
