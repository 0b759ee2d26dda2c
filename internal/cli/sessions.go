// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// sessions.go - Session management command handlers for the halcyon CLI.
//
// Command: sessions
//
// Examples:
//   halcyon sessions list
//   halcyon sessions show 4f1f6c
//   halcyon sessions delete 4f1f6c --confirm
//   halcyon sessions clear --confirm
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/halcyonlabs/halcyon-tui/internal/history"
	"github.com/halcyonlabs/halcyon-tui/internal/model"
	"github.com/halcyonlabs/halcyon-tui/internal/util"
)

// HandleSessionsCommand dispatches the "sessions" subcommands.
func HandleSessionsCommand(args Args) error {
	sub := ""
	rest := args.Raw
	if len(rest) > 0 {
		sub = strings.ToLower(rest[0])
		rest = rest[1:]
	}
	confirmed := false
	var ids []string
	for _, a := range rest {
		if a == "--confirm" {
			confirmed = true
		} else {
			ids = append(ids, a)
		}
	}

	switch sub {
	case "", "list":
		return printSessionList()

	case "show":
		if len(ids) == 0 {
			return fmt.Errorf("usage: halcyon sessions show <id>")
		}
		return printCachedTranscript(ids[0])

	case "delete":
		if len(ids) == 0 {
			return fmt.Errorf("usage: halcyon sessions delete <id> --confirm")
		}
		if !confirmed {
			return fmt.Errorf("deleting a session is permanent; re-run with --confirm")
		}
		return deleteSession(args, ids[0])

	case "clear":
		if !confirmed {
			return fmt.Errorf("clearing the cache is permanent; re-run with --confirm")
		}
		return clearCache()

	default:
		return fmt.Errorf("unknown sessions subcommand: %s (try list, show, delete, clear)", sub)
	}
}

// openCache opens the transcript cache for a one-shot command.
func openCache() (*history.Cache, error) {
	path, err := history.DefaultPath()
	if err != nil {
		return nil, fmt.Errorf("cache path: %w", err)
	}
	cache, err := history.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript cache: %w", err)
	}
	return cache, nil
}

// printSessionList lists cached sessions, newest first.
func printSessionList() error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessions, err := cache.List(ctx)
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println(infoStyle.Render("[No cached sessions]"))
		return nil
	}

	fmt.Println()
	fmt.Println(headerStyle.Render("Cached Sessions"))
	fmt.Println(renderSeparator(40))
	for _, s := range sessions {
		age := formatAge(s.UpdatedAt)
		fmt.Printf("  %s  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-14s", util.TruncateRunes(s.SessionID, 12))),
			dimStyle.Render(fmt.Sprintf("%3d turns, %s", s.TurnCount, age)),
			infoStyle.Render(s.Preview))
	}
	fmt.Println()
	return nil
}

// printCachedTranscript prints a full cached transcript.
func printCachedTranscript(sessionID string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	turns, err := cache.LoadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return fmt.Errorf("no cached transcript for session %s", sessionID)
	}

	fmt.Println()
	fmt.Printf("%s %s\n", headerStyle.Render("Session"), commandStyle.Render(sessionID))
	fmt.Println(renderSeparator(40))
	for _, t := range turns {
		label := model.Role(t.Role).DisplayName()
		switch model.Role(t.Role) {
		case model.RoleUser:
			fmt.Printf("\n%s\n%s\n", promptStyle.Render(label), t.Content)
		default:
			if t.Model != "" {
				label += " " + badgeStyle.Render(t.Model)
			}
			fmt.Printf("\n%s\n%s\n", infoStyle.Render(label), t.Content)
		}
	}
	fmt.Println()
	return nil
}

// deleteSession removes a session from the server and the local cache.
func deleteSession(args Args, sessionID string) error {
	r := NewConsoleRenderer(true, false)
	eng, cleanup, err := buildEngine(args, r)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := eng.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	fmt.Printf("%s Deleted session %s\n", commandStyle.Render("[OK]"), sessionID)
	return nil
}

// clearCache drops the whole local transcript cache. Server state is
// untouched.
func clearCache() error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := cache.Clear(ctx); err != nil {
		return err
	}
	fmt.Println(commandStyle.Render("[OK] Local transcript cache cleared"))
	return nil
}

// formatAge renders a timestamp as a short relative age.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
