// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for moot.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - APIConfig: Completion endpoint settings and keys
//   - RealtimeConfig: Websocket subscription settings
//   - UserConfig: Identity broadcast over presence
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (MOOT_*)
//   - ~/.moot/config.toml
//   - ~/.moot/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Access settings:
//
//	endpoint := cfg.API.Endpoint
//	room := cfg.Realtime.Room
//
// A Watcher can be attached to the config file to pick up edits to the
// display name, color, and API key without restarting.
package config
