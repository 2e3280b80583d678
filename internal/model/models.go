// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for rooms, conversations,
// messages, and presence.
package model

import (
	"fmt"
	"strings"
)

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo contains detailed information about a completion model.
// Used for model selection and display in the UI.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// MaxLength is the maximum prompt length in characters
	MaxLength int `json:"maxLength"`

	// TokenLimit is the model's context window size
	TokenLimit int `json:"tokenLimit"`
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// Models is the registry of known completion models.
var Models = map[string]ModelInfo{
	"gpt-3.5-turbo": {
		ID:         "gpt-3.5-turbo",
		Name:       "GPT-3.5",
		MaxLength:  12000,
		TokenLimit: 4000,
	},
	"gpt-4": {
		ID:         "gpt-4",
		Name:       "GPT-4",
		MaxLength:  24000,
		TokenLimit: 8000,
	},
	"gpt-4-32k": {
		ID:         "gpt-4-32k",
		Name:       "GPT-4-32K",
		MaxLength:  96000,
		TokenLimit: 32000,
	},
}

// DefaultModelID is used when no model is configured.
const DefaultModelID = "gpt-3.5-turbo"

// GetModelInfo returns info for a model ID, falling back to a generic
// entry for unknown models so selection never fails.
func GetModelInfo(id string) ModelInfo {
	if info, ok := Models[id]; ok {
		return info
	}
	return ModelInfo{
		ID:         id,
		Name:       id,
		MaxLength:  12000,
		TokenLimit: 4000,
	}
}

// FindModel resolves a user-entered name to a registered model.
// Matches on exact ID first, then case-insensitive display name.
func FindModel(name string) (ModelInfo, error) {
	if info, ok := Models[name]; ok {
		return info, nil
	}
	for _, info := range Models {
		if strings.EqualFold(info.Name, name) {
			return info, nil
		}
	}
	return ModelInfo{}, fmt.Errorf("unknown model: %s", name)
}
