// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for rooms, conversations,
// messages, and presence.
package model

import (
	"sort"
	"time"
)

// =============================================================================
// ROOM TYPE
// =============================================================================

// Room is a shared space. Every conversation belongs to exactly one room
// and every participant joins exactly one room per session.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// =============================================================================
// CONVERSATION SET
// =============================================================================

// ConversationSet is the ordered collection of a room's conversations as
// one participant sees it. Order is creation time, oldest first, matching
// the room bootstrap query.
type ConversationSet struct {
	items []*Conversation
}

// NewConversationSet builds a set from a bootstrap load, sorting by
// creation time and dropping soft-deleted entries.
func NewConversationSet(convs []*Conversation) *ConversationSet {
	s := &ConversationSet{}
	for _, c := range convs {
		if c.Deleted {
			continue
		}
		s.items = append(s.items, c)
	}
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.items[i].CreatedAt.Before(s.items[j].CreatedAt)
	})
	return s
}

// Get returns the conversation with the given ID, or nil.
func (s *ConversationSet) Get(id string) *Conversation {
	for _, c := range s.items {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Has reports whether the set contains the given conversation ID.
func (s *ConversationSet) Has(id string) bool {
	return s.Get(id) != nil
}

// Add appends a conversation. A conversation already present by ID is
// ignored so remote echoes of local inserts never duplicate.
func (s *ConversationSet) Add(conv *Conversation) bool {
	if s.Has(conv.ID) {
		return false
	}
	s.items = append(s.items, conv)
	return true
}

// Upsert replaces the conversation with a matching ID, or appends it if
// unknown. The stored pointer is replaced, not mutated.
func (s *ConversationSet) Upsert(conv *Conversation) {
	for i, c := range s.items {
		if c.ID == conv.ID {
			s.items[i] = conv
			return
		}
	}
	s.items = append(s.items, conv)
}

// Remove drops the conversation with the given ID. Returns false if the
// ID was not present.
func (s *ConversationSet) Remove(id string) bool {
	for i, c := range s.items {
		if c.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// Last returns the most recently created conversation, or nil if empty.
// New conversations inherit its model and temperature.
func (s *ConversationSet) Last() *Conversation {
	if len(s.items) == 0 {
		return nil
	}
	return s.items[len(s.items)-1]
}

// All returns the conversations in creation order. The slice is shared;
// callers must not mutate it.
func (s *ConversationSet) All() []*Conversation {
	return s.items
}

// Len returns the number of conversations.
func (s *ConversationSet) Len() int {
	return len(s.items)
}
