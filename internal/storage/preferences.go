// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	"github.com/halcyonlabs/halcyon-tui/internal/util"
)

// =============================================================================
// CLIENT PREFERENCES
// =============================================================================

// Preferences is the flat client-side preference map. Keys are opaque
// strings owned by the UI layers (theme, panel collapse state, last
// used command, ...); the store only persists them.
type Preferences map[string]string

// PreferenceStore persists the preference map as a single JSON file.
type PreferenceStore struct {
	// Path is the preference file location.
	// Default: ~/.halcyon/preferences.json
	Path string
}

// NewPreferenceStore creates a store rooted under the user's home
// directory.
func NewPreferenceStore() (*PreferenceStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Join(homeDir, ".halcyon")
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	return &PreferenceStore{Path: filepath.Join(baseDir, "preferences.json")}, nil
}

// NewPreferenceStoreWithPath creates a store at a custom file path.
func NewPreferenceStoreWithPath(path string) (*PreferenceStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &PreferenceStore{Path: path}, nil
}

// Load reads the preference map. A missing or corrupted file yields an
// empty map, never an error.
func (s *PreferenceStore) Load() Preferences {
	prefs := make(Preferences)

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return prefs
	}
	if err := json.Unmarshal(data, &prefs); err != nil {
		log.Printf("preferences corrupted, starting fresh: %v", err)
		return make(Preferences)
	}
	return prefs
}

// Get returns the stored value for key, or the fallback when unset.
func (s *PreferenceStore) Get(key, fallback string) string {
	if v, ok := s.Load()[key]; ok {
		return v
	}
	return fallback
}

// Patch merges the given entries into the stored map and persists.
// Existing keys not named in the patch are untouched; an empty value
// deletes its key.
func (s *PreferenceStore) Patch(entries Preferences) {
	prefs := s.Load()
	for k, v := range entries {
		if v == "" {
			delete(prefs, k)
			continue
		}
		prefs[k] = v
	}
	s.save(prefs)
}

// Set stores a single key.
func (s *PreferenceStore) Set(key, value string) {
	s.Patch(Preferences{key: value})
}

// save writes the map. Failures are logged and swallowed.
func (s *PreferenceStore) save(prefs Preferences) {
	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		log.Printf("failed to marshal preferences: %v", err)
		return
	}
	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(s.Path, data, 0644); err != nil {
		log.Printf("failed to persist preferences: %v", err)
	}
}
