// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		argv []string
		cmd  Command
		want func(t *testing.T, args Args)
	}{
		{
			name: "no args is the TUI",
			argv: nil,
			cmd:  CmdTUI,
		},
		{
			name: "plain alone degrades to chat",
			argv: []string{"--plain"},
			cmd:  CmdChat,
		},
		{
			name: "ask with a question",
			argv: []string{"ask", "what", "is", "this"},
			cmd:  CmdAsk,
			want: func(t *testing.T, args Args) {
				if args.Query != "what is this" {
					t.Errorf("query = %q", args.Query)
				}
			},
		},
		{
			name: "bare text is a question",
			argv: []string{"how", "do", "I", "exit", "vim"},
			cmd:  CmdAsk,
			want: func(t *testing.T, args Args) {
				if args.Query != "how do I exit vim" {
					t.Errorf("query = %q", args.Query)
				}
			},
		},
		{
			name: "server flag with separate value",
			argv: []string{"chat", "--server", "http://10.0.0.5:8080"},
			cmd:  CmdChat,
			want: func(t *testing.T, args Args) {
				if args.Server != "http://10.0.0.5:8080" {
					t.Errorf("server = %q", args.Server)
				}
			},
		},
		{
			name: "server flag with equals form",
			argv: []string{"--server=http://x:1", "ask", "q"},
			cmd:  CmdAsk,
			want: func(t *testing.T, args Args) {
				if args.Server != "http://x:1" {
					t.Errorf("server = %q", args.Server)
				}
			},
		},
		{
			name: "ask flags",
			argv: []string{"ask", "q", "--json", "--fresh", "--no-fallback", "-q", "-v"},
			cmd:  CmdAsk,
			want: func(t *testing.T, args Args) {
				if !args.JSON || !args.Fresh || !args.NoFallback || !args.Quiet || !args.Verbose {
					t.Errorf("flags: %+v", args)
				}
			},
		},
		{
			name: "sessions passes the rest through",
			argv: []string{"sessions", "delete", "abc123", "--confirm"},
			cmd:  CmdSessions,
			want: func(t *testing.T, args Args) {
				if !reflect.DeepEqual(args.Raw, []string{"delete", "abc123", "--confirm"}) {
					t.Errorf("raw = %v", args.Raw)
				}
			},
		},
		{
			name: "session singular alias",
			argv: []string{"session", "list"},
			cmd:  CmdSessions,
		},
		{
			name: "config subcommand",
			argv: []string{"config", "path"},
			cmd:  CmdConfig,
			want: func(t *testing.T, args Args) {
				if args.Subcommand != "path" {
					t.Errorf("subcommand = %q", args.Subcommand)
				}
			},
		},
		{
			name: "version command",
			argv: []string{"version"},
			cmd:  CmdVersion,
		},
		{
			name: "version flag",
			argv: []string{"--version"},
			cmd:  CmdVersion,
		},
		{
			name: "help flag short",
			argv: []string{"-h"},
			cmd:  CmdHelp,
		},
		{
			name: "help command",
			argv: []string{"help"},
			cmd:  CmdHelp,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cmd, args := Parse(c.argv)
			if cmd != c.cmd {
				t.Fatalf("command = %v, want %v", cmd, c.cmd)
			}
			if c.want != nil {
				c.want(t, args)
			}
		})
	}
}

func TestParse_ServerFlagWithoutValue(t *testing.T) {
	// A dangling --server must not panic or eat a command.
	cmd, args := Parse([]string{"--server"})
	if cmd != CmdTUI {
		t.Errorf("command = %v", cmd)
	}
	if args.Server != "" {
		t.Errorf("server = %q", args.Server)
	}
}
