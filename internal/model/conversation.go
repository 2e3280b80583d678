// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for rooms, conversations,
// messages, and presence.
package model

import (
	"time"
)

// NameDeriveLen is the number of runes of the first message kept when a
// conversation auto-derives its name.
const NameDeriveLen = 30

// DefaultName is the name of a conversation before it derives one.
const DefaultName = "New Conversation"

// DefaultTemperature is used when a conversation does not specify one.
const DefaultTemperature = 1.0

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a shared chat conversation with its message log and
// generation settings. All participants in a room see the same set of
// conversations; Deleted conversations are kept remotely but hidden.
type Conversation struct {
	// Identity
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RoomID    string    `json:"roomId"`
	CreatedAt time.Time `json:"createdAt"`

	// Message log
	Messages []*Message `json:"messages"`

	// Generation settings
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt,omitempty"`
	Temperature float64 `json:"temperature"`

	// Shared flags
	Loading bool `json:"loading"` // a turn is in flight somewhere in the room
	Deleted bool `json:"deleted"` // soft-deleted, hidden from lists
}

// NewConversation creates a new empty conversation for a room with a
// client-generated ID.
func NewConversation(roomID, model string, temperature float64) *Conversation {
	return &Conversation{
		ID:          NewID(),
		Name:        DefaultName,
		RoomID:      roomID,
		CreatedAt:   time.Now(),
		Messages:    make([]*Message, 0),
		Model:       model,
		Temperature: temperature,
	}
}

// =============================================================================
// LOG OPERATIONS
// =============================================================================

// Append adds a message to the end of the log.
func (c *Conversation) Append(msg *Message) {
	c.Messages = append(c.Messages, msg)
}

// ReplaceLast replaces the content of the last message with the full
// accumulated content so far. No-op on an empty log.
func (c *Conversation) ReplaceLast(content string) {
	if len(c.Messages) == 0 {
		return
	}
	c.Messages[len(c.Messages)-1].Content = content
}

// Last returns the most recent message, or nil if the log is empty.
func (c *Conversation) Last() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// LastUserMessage returns the most recent user message, or nil.
func (c *Conversation) LastUserMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i]
		}
	}
	return nil
}

// TruncateLast drops the last n messages from the log. Used when a user
// edits an earlier message or regenerates a response: everything from the
// edited message onward is discarded before the resend.
func (c *Conversation) TruncateLast(n int) {
	if n <= 0 {
		return
	}
	if n >= len(c.Messages) {
		c.Messages = c.Messages[:0]
		return
	}
	c.Messages = c.Messages[:len(c.Messages)-n]
}

// Clear removes all messages from the conversation.
func (c *Conversation) Clear() {
	c.Messages = make([]*Message, 0)
}

// MergeRemoteInsert appends a message that arrived over the change feed.
// Idempotent: a message whose ID is already present is ignored, so a
// participant's own writes echoing back never duplicate.
func (c *Conversation) MergeRemoteInsert(msg *Message) bool {
	if msg.ID != "" && c.HasMessage(msg.ID) {
		return false
	}
	c.Messages = append(c.Messages, msg)
	return true
}

// MergeRemoteUpdate replaces the content and done flag of the message with
// the given ID. Returns false if no such message exists locally.
func (c *Conversation) MergeRemoteUpdate(msg *Message) bool {
	for _, m := range c.Messages {
		if m.ID == msg.ID {
			m.Content = msg.Content
			m.Done = msg.Done
			return true
		}
	}
	return false
}

// HasMessage reports whether a message with the given ID is in the log.
func (c *Conversation) HasMessage(id string) bool {
	for _, m := range c.Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// NAME MANAGEMENT
// =============================================================================

// DeriveName sets the conversation name from the first user message. Only
// fires while the log holds exactly one message, so the name is derived
// once and never overwritten by later turns.
func (c *Conversation) DeriveName() {
	if len(c.Messages) != 1 {
		return
	}
	content := c.Messages[0].Content
	runes := []rune(content)
	if len(runes) > NameDeriveLen {
		content = string(runes[:NameDeriveLen]) + "..."
	}
	c.Name = content
}

// =============================================================================
// HELPERS
// =============================================================================

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = make([]*Message, len(c.Messages))
	for i, msg := range c.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return &clone
}
