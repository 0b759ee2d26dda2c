// halcyon - a terminal client for conversational AI sessions.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/halcyonlabs/halcyon-tui/internal/cli"
	"github.com/halcyonlabs/halcyon-tui/internal/client"
	"github.com/halcyonlabs/halcyon-tui/internal/config"
	"github.com/halcyonlabs/halcyon-tui/internal/engine"
	"github.com/halcyonlabs/halcyon-tui/internal/history"
	"github.com/halcyonlabs/halcyon-tui/internal/storage"
	"github.com/halcyonlabs/halcyon-tui/internal/ui/chat"
	"github.com/halcyonlabs/halcyon-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.2.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with the cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse(os.Args[1:])

	// The TUI needs a real terminal. Degrade to the console chat when
	// asked to, and to a helpful error when piped.
	if cmd == cli.CmdTUI {
		cfg := config.Global()
		if args.Plain || cfg.UI.Plain {
			cmd = cli.CmdChat
		} else if !cli.IsTTY() || !cli.IsStdoutTTY() {
			fmt.Fprintln(os.Stderr, "halcyon: not a terminal; try `halcyon ask` or `halcyon chat --plain`")
			os.Exit(1)
		}
	}

	if cmd == cli.CmdTUI {
		runTUI(args)
		return
	}

	if err := cli.Run(cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runTUI wires the engine to the Bubble Tea program and runs it.
func runTUI(args cli.Args) {
	cfg := config.Global()
	if args.Server != "" {
		cfg.Server.BaseURL = args.Server
	}

	// The TUI owns the screen; engine and transport logs go to a file
	// instead of corrupting the frame.
	if f, err := tea.LogToFile(logPath(), "halcyon"); err == nil {
		defer f.Close()
	} else {
		log.SetOutput(os.Stderr)
	}

	apiClient := client.New(cfg.Server.BaseURL)

	pointers, err := storage.NewPointerStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: session pointer store: %v\n", err)
		os.Exit(1)
	}

	prefs, err := storage.NewPreferenceStore()
	if err != nil {
		log.Printf("preference store unavailable: %v", err)
		prefs = nil
	}

	// A broken transcript cache degrades to server-side history.
	var cache *history.Cache
	if path, err := history.DefaultPath(); err == nil {
		if db, err := history.Open(path); err == nil {
			cache = db
			defer cache.Close()
		} else {
			log.Printf("transcript cache unavailable: %v", err)
		}
	}

	// The engine's renderer must exist before the program does; the
	// deferred sender is bound once tea.NewProgram returns.
	deferred := &chat.DeferredSender{}
	gate := chat.NewGate()
	renderer := chat.NewProgramRenderer(deferred, gate)

	eng := engine.New(engine.Options{
		Client:          apiClient,
		Renderer:        renderer,
		Pointers:        pointers,
		Cache:           cache,
		FallbackEnabled: cfg.Stream.FallbackEnabled && !args.NoFallback,
	})

	if args.Fresh {
		eng.NewSession()
	}

	theme := styles.NewTheme()
	m := chat.New(chat.Options{
		Theme:  theme,
		Engine: eng,
		Gate:   gate,
		Prefs:  prefs,
	})

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	deferred.Bind(p)

	// Live-reload the config file; only display toggles apply without a
	// restart, the transport keeps its startup settings.
	if w, err := config.Watch(func(next *config.Config) {
		log.Printf("configuration reloaded (server=%s)", next.Server.BaseURL)
	}); err == nil {
		defer w.Close()
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running halcyon: %v\n", err)
		os.Exit(1)
	}
}

// logPath returns the debug log location next to the config file.
func logPath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		return os.DevNull
	}
	return dir + string(os.PathSeparator) + "halcyon.log"
}
