// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for rooms, conversations,
// messages, and presence.
package model

import (
	"sort"
)

// =============================================================================
// PRESENCE TYPE
// =============================================================================

// Presence is one participant's ephemeral state in a room. It exists only
// while that participant is connected and is never persisted.
type Presence struct {
	// Key identifies a single client session, not a user: the same person
	// in two terminals appears twice.
	Key string `json:"key"`

	Name  string `json:"name"`
	Color string `json:"color"`

	// SelectedConversationID is the conversation the participant is
	// currently viewing. Empty if none.
	SelectedConversationID string `json:"selectedConversationId,omitempty"`
}

// PresenceColors is the palette a session's color is picked from.
var PresenceColors = []string{
	"#F56565", // red
	"#ED8936", // orange
	"#ECC94B", // yellow
	"#48BB78", // green
	"#38B2AC", // teal
	"#4299E1", // blue
	"#9F7AEA", // purple
	"#ED64A6", // pink
}

// =============================================================================
// ROSTER TYPE
// =============================================================================

// Roster is the set of participants currently in a room, keyed by session
// key. Each sync from the presence channel replaces the roster wholesale;
// there are no incremental joins or leaves to track.
type Roster map[string]Presence

// Replace swaps the entire roster for a new snapshot.
func (r *Roster) Replace(snapshot map[string]Presence) {
	next := make(Roster, len(snapshot))
	for key, p := range snapshot {
		p.Key = key
		next[key] = p
	}
	*r = next
}

// Viewing returns the participants viewing the given conversation,
// ordered by name for stable rendering.
func (r Roster) Viewing(conversationID string) []Presence {
	var out []Presence
	for _, p := range r {
		if p.SelectedConversationID == conversationID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// All returns every participant ordered by name.
func (r Roster) All() []Presence {
	out := make([]Presence, 0, len(r))
	for _, p := range r {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Count returns the number of connected sessions.
func (r Roster) Count() int {
	return len(r)
}
