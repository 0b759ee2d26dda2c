// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history provides a local SQLite cache of finalized
// transcripts so reloads can render prior turns without waiting on the
// server's history endpoint.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrSessionNotFound = errors.New("session not cached")
	ErrDatabaseError   = errors.New("database error")
)

// =============================================================================
// TRANSCRIPT CACHE
// =============================================================================

// CachedTurn is one finalized turn as persisted in the cache.
type CachedTurn struct {
	SessionID string
	Number    int
	Role      string
	Content   string
	Markup    string
	Model     string
	CreatedAt time.Time
}

// SessionSummary describes one cached session for listings.
type SessionSummary struct {
	SessionID string
	TurnCount int
	Preview   string
	UpdatedAt time.Time
}

// Cache is the transcript cache. Only finalized turns are stored;
// in-flight state never touches disk.
type Cache struct {
	db *sql.DB
}

// DefaultPath returns the cache database path under the user's home
// directory.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".halcyon", "transcripts.db"), nil
}

// Open opens (creating if needed) the cache at the given path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	c := &Cache{db: db}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// initSchema creates the cache tables.
func (c *Cache) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		session_id TEXT NOT NULL,
		number     INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL DEFAULT '',
		markup     TEXT NOT NULL DEFAULT '',
		model      TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, number, role)
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("%w: failed to create schema: %v", ErrDatabaseError, err)
	}
	return nil
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// SaveTurn upserts a finalized turn. The (session, number, role) key
// makes replayed finals idempotent.
func (c *Cache) SaveTurn(ctx context.Context, t CachedTurn) error {
	if t.SessionID == "" {
		return nil
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO turns (session_id, number, role, content, markup, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, number, role) DO UPDATE SET
			content = excluded.content,
			markup  = excluded.markup,
			model   = excluded.model`,
		t.SessionID, t.Number, t.Role, t.Content, t.Markup, t.Model, t.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("%w: failed to save turn: %v", ErrDatabaseError, err)
	}
	return nil
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// LoadSession returns all cached turns for a session in turn order,
// user turns before assistant turns within a number.
func (c *Cache) LoadSession(ctx context.Context, sessionID string) ([]CachedTurn, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT session_id, number, role, content, markup, model, created_at
		FROM turns WHERE session_id = ?
		ORDER BY number ASC, created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load session: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var turns []CachedTurn
	for rows.Next() {
		var t CachedTurn
		var createdAt int64
		if err := rows.Scan(&t.SessionID, &t.Number, &t.Role, &t.Content, &t.Markup, &t.Model, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan turn: %v", ErrDatabaseError, err)
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if len(turns) == 0 {
		return nil, ErrSessionNotFound
	}

	// Within a turn number the user prompt renders before the answer.
	sort.SliceStable(turns, func(i, j int) bool {
		if turns[i].Number != turns[j].Number {
			return turns[i].Number < turns[j].Number
		}
		return turns[i].Role == "user" && turns[j].Role != "user"
	})
	return turns, nil
}

// =============================================================================
// LIST / DELETE OPERATIONS
// =============================================================================

// List returns summaries of all cached sessions, most recent first.
func (c *Cache) List(ctx context.Context) ([]SessionSummary, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT session_id, COUNT(*), MAX(created_at)
		FROM turns GROUP BY session_id
		ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list sessions: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var summaries []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var updated int64
		if err := rows.Scan(&s.SessionID, &s.TurnCount, &updated); err != nil {
			return nil, fmt.Errorf("%w: failed to scan summary: %v", ErrDatabaseError, err)
		}
		s.UpdatedAt = time.Unix(updated, 0)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	for i := range summaries {
		summaries[i].Preview = c.preview(ctx, summaries[i].SessionID)
	}
	return summaries, nil
}

// preview returns the first user prompt of a session, truncated.
func (c *Cache) preview(ctx context.Context, sessionID string) string {
	var content string
	err := c.db.QueryRowContext(ctx, `
		SELECT content FROM turns
		WHERE session_id = ? AND role = 'user'
		ORDER BY number ASC LIMIT 1`, sessionID).Scan(&content)
	if err != nil {
		return ""
	}
	content = strings.ReplaceAll(content, "\n", " ")
	runes := []rune(content)
	if len(runes) > 60 {
		content = string(runes[:57]) + "..."
	}
	return content
}

// Delete removes a session's cached turns.
func (c *Cache) Delete(ctx context.Context, sessionID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("%w: failed to delete session: %v", ErrDatabaseError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Clear drops all cached transcripts.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM turns`); err != nil {
		return fmt.Errorf("%w: failed to clear cache: %v", ErrDatabaseError, err)
	}
	return nil
}
