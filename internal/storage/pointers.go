// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the durable client-side state for halcyon:
// the session pointer that survives restarts and the per-client
// preference map.
//
// RELIABILITY: every operation degrades gracefully. A missing or
// corrupted file never fails the caller; reads fall back to zero values
// and failed writes are logged and dropped. Session continuity is a
// convenience, not a correctness requirement.
package storage

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	"github.com/halcyonlabs/halcyon-tui/internal/util"
)

// =============================================================================
// SESSION POINTER
// =============================================================================

// SessionPointer is the durable record of where the client left off:
// the last adopted session id and, per session, the number of the last
// answer turn the user has seen.
type SessionPointer struct {
	// LastSessionID is the most recently adopted server session id.
	LastSessionID string `json:"last_session_id"`

	// LastRead maps session id -> number of the last finalized answer
	// turn rendered for the user. Used on reload to mark where history
	// ends and fresh content begins.
	LastRead map[string]int `json:"last_read,omitempty"`
}

// PointerStore persists the session pointer as a single JSON file.
type PointerStore struct {
	// Path is the pointer file location.
	// Default: ~/.halcyon/session.json
	Path string
}

// NewPointerStore creates a store rooted under the user's home
// directory.
func NewPointerStore() (*PointerStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Join(homeDir, ".halcyon")
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	return &PointerStore{Path: filepath.Join(baseDir, "session.json")}, nil
}

// NewPointerStoreWithPath creates a store at a custom file path.
func NewPointerStoreWithPath(path string) (*PointerStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &PointerStore{Path: path}, nil
}

// Load reads the pointer. A missing or corrupted file yields an empty
// pointer, never an error.
func (s *PointerStore) Load() SessionPointer {
	var p SessionPointer

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return p
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("session pointer corrupted, starting fresh: %v", err)
		return SessionPointer{}
	}
	if p.LastRead == nil {
		p.LastRead = make(map[string]int)
	}
	return p
}

// SetSession records the adopted session id and persists.
func (s *PointerStore) SetSession(sessionID string) {
	p := s.Load()
	p.LastSessionID = sessionID
	s.save(p)
}

// SetLastRead records the last-read answer turn for a session and
// persists.
func (s *PointerStore) SetLastRead(sessionID string, turn int) {
	if sessionID == "" {
		return
	}
	p := s.Load()
	if p.LastRead == nil {
		p.LastRead = make(map[string]int)
	}
	p.LastRead[sessionID] = turn
	s.save(p)
}

// Forget removes a session's pointer state, clearing the last-session
// id when it matches.
func (s *PointerStore) Forget(sessionID string) {
	p := s.Load()
	if p.LastSessionID == sessionID {
		p.LastSessionID = ""
	}
	delete(p.LastRead, sessionID)
	s.save(p)
}

// Clear removes the pointer file entirely.
func (s *PointerStore) Clear() {
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to clear session pointer: %v", err)
	}
}

// save writes the pointer. Failures are logged and swallowed.
func (s *PointerStore) save(p SessionPointer) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		log.Printf("failed to marshal session pointer: %v", err)
		return
	}
	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(s.Path, data, 0644); err != nil {
		log.Printf("failed to persist session pointer: %v", err)
	}
}
