// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for moot.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.moot/config.toml
//   - ~/.moot/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mootlabs/moot-tui/internal/model"
	"github.com/mootlabs/moot-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete moot configuration.
type Config struct {
	// General settings
	Version      string `toml:"version" json:"version"`
	DefaultModel string `toml:"default_model" json:"default_model"`

	// Completion API configuration
	API APIConfig `toml:"api" json:"api"`

	// Shared store configuration
	Store StoreConfig `toml:"store" json:"store"`

	// Realtime subscription configuration
	Realtime RealtimeConfig `toml:"realtime" json:"realtime"`

	// Identity shown to other room members
	User UserConfig `toml:"user" json:"user"`

	// Local cache configuration
	Cache CacheConfig `toml:"cache" json:"cache"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// APIConfig contains completion endpoint configuration.
type APIConfig struct {
	// Endpoint is the URL of the streaming completion endpoint
	Endpoint string `toml:"endpoint" json:"endpoint"`
	// PluginEndpoint is the URL of the non-streaming plugin endpoint
	PluginEndpoint string `toml:"plugin_endpoint" json:"plugin_endpoint"`
	// Key is the completion API key
	Key string `toml:"key" json:"key"`
	// PluginKeys maps plugin names to their API keys
	PluginKeys map[string]string `toml:"plugin_keys" json:"plugin_keys"`
	// DefaultTemperature is the sampling temperature for new conversations
	DefaultTemperature float64 `toml:"default_temperature" json:"default_temperature"`
}

// StoreConfig contains shared store (REST) configuration.
type StoreConfig struct {
	// URL is the base URL of the store's REST interface
	URL string `toml:"url" json:"url"`
	// Key is the store API key, sent with every request
	Key string `toml:"key" json:"key"`
}

// RealtimeConfig contains the realtime subscription configuration.
type RealtimeConfig struct {
	// URL is the websocket URL of the realtime server
	URL string `toml:"url" json:"url"`
	// Room is the id of the room to join on startup
	Room string `toml:"room" json:"room"`
	// SubscribeTimeoutSecs is how long to wait for a subscribe ack.
	// Valid range is 1-60 seconds; values outside are clamped.
	SubscribeTimeoutSecs int `toml:"subscribe_timeout_secs" json:"subscribe_timeout_secs"`
	// MaxSubscribeAttempts is how many times a dropped subscription is
	// retried before it is reported as timed out. Range 1-10, clamped.
	MaxSubscribeAttempts int `toml:"max_subscribe_attempts" json:"max_subscribe_attempts"`
}

// UserConfig contains the identity broadcast over presence.
type UserConfig struct {
	// Name is the display name shown to other room members
	Name string `toml:"name" json:"name"`
	// Color is the hex color used for this user's presence marker.
	// Empty means a color is picked from the palette at startup.
	Color string `toml:"color" json:"color"`
}

// CacheConfig contains local cache configuration.
type CacheConfig struct {
	// Enabled controls whether the local snapshot cache is active
	Enabled bool `toml:"enabled" json:"enabled"`
	// Path is the cache database path (empty = ~/.moot/cache.db)
	Path string `toml:"path" json:"path"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// ShowTimestamps displays message timestamps in the transcript
	ShowTimestamps bool `toml:"show_timestamps" json:"show_timestamps"`
	// CompactMode uses a more compact transcript layout
	CompactMode bool `toml:"compact_mode" json:"compact_mode"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version:      "1.0.0",
		DefaultModel: model.DefaultModelID,

		API: APIConfig{
			Endpoint:           "http://127.0.0.1:8080/api/chat",
			PluginEndpoint:     "http://127.0.0.1:8080/api/plugin",
			PluginKeys:         map[string]string{},
			DefaultTemperature: model.DefaultTemperature,
		},

		Store: StoreConfig{
			URL: "http://127.0.0.1:8080/rest/v1",
		},

		Realtime: RealtimeConfig{
			URL:                  "ws://127.0.0.1:8080/realtime/v1",
			Room:                 "lobby",
			SubscribeTimeoutSecs: 10,
			MaxSubscribeAttempts: 5,
		},

		User: UserConfig{
			Name: defaultUserName(),
		},

		Cache: CacheConfig{
			Enabled: true,
		},

		UI: UIConfig{
			Theme:          "dark",
			ShowTimestamps: false,
			CompactMode:    false,
		},
	}
}

// defaultUserName derives a display name from the OS user.
func defaultUserName() string {
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	if name := os.Getenv("USERNAME"); name != "" {
		return name
	}
	return "anonymous"
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the moot configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".moot"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// CachePath returns the configured cache database path, or the default
// under the config directory when unset.
func (c *Config) CachePath() (string, error) {
	if c.Cache.Path != "" {
		return c.Cache.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache.db"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// Config files should be 0600 (owner read/write only) to protect API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}

	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	// Try TOML first
	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	// Try JSON as fallback
	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	cfg, err = finishLoad(cfg)
	if err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finishLoad(cfg)
}

// finishLoad applies env overrides, defaults, and validation.
func finishLoad(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# moot configuration file")
	fmt.Fprintln(file, "# Generated by moot - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// SaveJSON saves the configuration to a JSON file.
// Atomic write with fsync prevents a half-written config on crash.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
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

	// Endpoint URLs must parse and carry a scheme.
	for _, ep := range []struct{ field, value string }{
		{"api.endpoint", c.API.Endpoint},
		{"api.plugin_endpoint", c.API.PluginEndpoint},
		{"store.url", c.Store.URL},
	} {
		u, err := url.Parse(ep.value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   ep.field,
				Message: fmt.Sprintf("invalid URL '%s'", ep.value),
			})
		}
	}

	// The realtime URL must be a websocket URL.
	if u, err := url.Parse(c.Realtime.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, ValidationError{
			Field:   "realtime.url",
			Message: fmt.Sprintf("invalid websocket URL '%s', scheme must be ws or wss", c.Realtime.URL),
		})
	}

	if c.Realtime.Room == "" {
		errs = append(errs, ValidationError{
			Field:   "realtime.room",
			Message: "room id must not be empty",
		})
	}

	if c.API.DefaultTemperature < 0 || c.API.DefaultTemperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "api.default_temperature",
			Message: fmt.Sprintf("must be between 0.0 and 2.0, got %g", c.API.DefaultTemperature),
		})
	}

	if c.User.Color != "" && !validHexColor(c.User.Color) {
		errs = append(errs, ValidationError{
			Field:   "user.color",
			Message: fmt.Sprintf("invalid hex color '%s', expected #RRGGBB", c.User.Color),
		})
	}

	// Validate UI theme
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

// validHexColor reports whether s is a #RRGGBB color.
func validHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// SetDefaults sets default values for any missing or zero-value
// configuration fields, clamping out-of-range values.
func (c *Config) SetDefaults() {
	defaults := Default()

	// General defaults
	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.DefaultModel == "" {
		c.DefaultModel = defaults.DefaultModel
	}

	// API defaults
	if c.API.Endpoint == "" {
		c.API.Endpoint = defaults.API.Endpoint
	}
	if c.API.PluginEndpoint == "" {
		c.API.PluginEndpoint = defaults.API.PluginEndpoint
	}
	if c.API.PluginKeys == nil {
		c.API.PluginKeys = map[string]string{}
	}
	if c.API.DefaultTemperature == 0 {
		c.API.DefaultTemperature = defaults.API.DefaultTemperature
	}

	// Store defaults
	if c.Store.URL == "" {
		c.Store.URL = defaults.Store.URL
	}

	// Realtime defaults. Timeout and attempt counts are clamped rather
	// than rejected so a hand-edited config still starts.
	if c.Realtime.URL == "" {
		c.Realtime.URL = defaults.Realtime.URL
	}
	if c.Realtime.Room == "" {
		c.Realtime.Room = defaults.Realtime.Room
	}
	if c.Realtime.SubscribeTimeoutSecs < 1 {
		c.Realtime.SubscribeTimeoutSecs = defaults.Realtime.SubscribeTimeoutSecs
	}
	if c.Realtime.SubscribeTimeoutSecs > 60 {
		c.Realtime.SubscribeTimeoutSecs = 60
	}
	if c.Realtime.MaxSubscribeAttempts < 1 {
		c.Realtime.MaxSubscribeAttempts = defaults.Realtime.MaxSubscribeAttempts
	}
	if c.Realtime.MaxSubscribeAttempts > 10 {
		c.Realtime.MaxSubscribeAttempts = 10
	}

	// User defaults
	if c.User.Name == "" {
		c.User.Name = defaults.User.Name
	}

	// UI defaults
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies MOOT_* environment variables on top of the
// loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	// MOOT_MODEL
	if m := os.Getenv("MOOT_MODEL"); m != "" {
		c.DefaultModel = m
	}

	// MOOT_API_KEY
	if key := os.Getenv("MOOT_API_KEY"); key != "" {
		c.API.Key = key
	}

	// MOOT_API_ENDPOINT
	if ep := os.Getenv("MOOT_API_ENDPOINT"); ep != "" {
		c.API.Endpoint = ep
	}

	// MOOT_PLUGIN_ENDPOINT
	if ep := os.Getenv("MOOT_PLUGIN_ENDPOINT"); ep != "" {
		c.API.PluginEndpoint = ep
	}

	// MOOT_STORE_URL / MOOT_STORE_KEY
	if u := os.Getenv("MOOT_STORE_URL"); u != "" {
		c.Store.URL = u
	}
	if key := os.Getenv("MOOT_STORE_KEY"); key != "" {
		c.Store.Key = key
	}

	// MOOT_REALTIME_URL
	if u := os.Getenv("MOOT_REALTIME_URL"); u != "" {
		c.Realtime.URL = u
	}

	// MOOT_ROOM
	if room := os.Getenv("MOOT_ROOM"); room != "" {
		c.Realtime.Room = room
	}

	// MOOT_NAME
	if name := os.Getenv("MOOT_NAME"); name != "" {
		c.User.Name = name
	}
}
