// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for halcyon.
//
// Configuration is TOML with sensible defaults and environment variable
// overrides, loaded from ~/.halcyon/config.toml.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete halcyon configuration.
type Config struct {
	// Version of the config schema.
	Version string `toml:"version"`

	// Server configuration
	Server ServerConfig `toml:"server"`

	// Stream configuration
	Stream StreamConfig `toml:"stream"`

	// UI configuration
	UI UIConfig `toml:"ui"`
}

// ServerConfig contains chat server connection configuration.
type ServerConfig struct {
	// BaseURL is the chat server base URL
	BaseURL string `toml:"base_url"`
	// TimeoutSecs is the synchronous request timeout in seconds
	TimeoutSecs int `toml:"timeout_secs"`
	// MaxRetries is the retry budget for the synchronous fallback path
	MaxRetries int `toml:"max_retries"`
}

// StreamConfig contains streaming behavior configuration.
type StreamConfig struct {
	// FallbackEnabled enables the synchronous fallback when the
	// streaming transport fails
	FallbackEnabled bool `toml:"fallback_enabled"`
	// BatchTokens is the token batch size before a repaint
	BatchTokens int `toml:"batch_tokens"`
	// MaxFPS caps repaints per second during streaming
	MaxFPS int `toml:"max_fps"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme"`
	// ShowThoughts shows the auxiliary reasoning panel
	ShowThoughts bool `toml:"show_thoughts"`
	// ShowTraces shows retrieval/tool trace panels
	ShowTraces bool `toml:"show_traces"`
	// CompactMode uses a more compact layout
	CompactMode bool `toml:"compact_mode"`
	// Plain forces the line-mode REPL instead of the full-screen UI
	Plain bool `toml:"plain"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Server: ServerConfig{
			BaseURL:     "http://localhost:8080",
			TimeoutSecs: 60,
			MaxRetries:  3,
		},

		Stream: StreamConfig{
			FallbackEnabled: true,
			BatchTokens:     8,
			MaxFPS:          30,
		},

		UI: UIConfig{
			Theme:        "dark",
			ShowThoughts: true,
			ShowTraces:   true,
			CompactMode:  false,
			Plain:        false,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the halcyon configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".halcyon"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load loads configuration from the config file, falling back to
// defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path with
// validation. A missing file yields defaults, not an error.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, statErr := os.Stat(path); statErr == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the default TOML file.
// SECURITY: Config files are created 0600 (owner read/write only).
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# halcyon configuration file")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Server.BaseURL != "" {
		if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Scheme == "" {
			errs = append(errs, ValidationError{
				Field:   "server.base_url",
				Message: fmt.Sprintf("invalid URL '%s'", c.Server.BaseURL),
			})
		}
	}

	if c.Server.TimeoutSecs < 1 || c.Server.TimeoutSecs > 600 {
		errs = append(errs, ValidationError{
			Field:   "server.timeout_secs",
			Message: fmt.Sprintf("must be 1-600, got %d", c.Server.TimeoutSecs),
		})
	}

	if c.Server.MaxRetries < 0 || c.Server.MaxRetries > 10 {
		errs = append(errs, ValidationError{
			Field:   "server.max_retries",
			Message: fmt.Sprintf("must be 0-10, got %d", c.Server.MaxRetries),
		})
	}

	if c.Stream.BatchTokens < 1 || c.Stream.BatchTokens > 256 {
		errs = append(errs, ValidationError{
			Field:   "stream.batch_tokens",
			Message: fmt.Sprintf("must be 1-256, got %d", c.Stream.BatchTokens),
		})
	}

	if c.Stream.MaxFPS < 1 || c.Stream.MaxFPS > 120 {
		errs = append(errs, ValidationError{
			Field:   "stream.max_fps",
			Message: fmt.Sprintf("must be 1-120, got %d", c.Stream.MaxFPS),
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults sets default values for any missing configuration fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = defaults.Server.BaseURL
	}
	if c.Server.TimeoutSecs == 0 {
		c.Server.TimeoutSecs = defaults.Server.TimeoutSecs
	}
	if c.Server.MaxRetries == 0 {
		c.Server.MaxRetries = defaults.Server.MaxRetries
	}
	if c.Stream.BatchTokens == 0 {
		c.Stream.BatchTokens = defaults.Stream.BatchTokens
	}
	if c.Stream.MaxFPS == 0 {
		c.Stream.MaxFPS = defaults.Stream.MaxFPS
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// Timeout returns the synchronous request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Server.TimeoutSecs) * time.Second
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - HALCYON_SERVER: overrides server.base_url
//   - HALCYON_TIMEOUT_SECS: overrides server.timeout_secs
//   - HALCYON_THEME: overrides ui.theme
//   - HALCYON_PLAIN: set to "1" or "true" to force the line-mode REPL
//   - HALCYON_NO_FALLBACK: set to "1" or "true" to disable the
//     synchronous fallback path
func (c *Config) ApplyEnvOverrides() {
	if server := os.Getenv("HALCYON_SERVER"); server != "" {
		c.Server.BaseURL = server
	}
	if timeout := os.Getenv("HALCYON_TIMEOUT_SECS"); timeout != "" {
		if secs, err := strconv.Atoi(timeout); err == nil && secs > 0 {
			c.Server.TimeoutSecs = secs
		}
	}
	if theme := os.Getenv("HALCYON_THEME"); theme != "" {
		c.UI.Theme = theme
	}
	if plain := os.Getenv("HALCYON_PLAIN"); plain != "" {
		c.UI.Plain = plain == "1" || strings.ToLower(plain) == "true"
	}
	if noFallback := os.Getenv("HALCYON_NO_FALLBACK"); noFallback != "" {
		disabled := noFallback == "1" || strings.ToLower(noFallback) == "true"
		c.Stream.FallbackEnabled = !disabled
	}
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state between tests.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
