// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for rooms, conversations,
// messages, and presence.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
//
// ID is assigned by the remote store on insert; locally created messages
// carry an empty ID until the store echoes one back. Done marks a message
// whose content is final (a completed assistant turn or any user message).
type Message struct {
	ID             string    `json:"id,omitempty"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	SenderName     string    `json:"senderName,omitempty"`
	Done           bool      `json:"isDone"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewUserMessage creates a user message. User messages are final on creation.
func NewUserMessage(conversationID, content, senderName string) *Message {
	return &Message{
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        content,
		SenderName:     senderName,
		Done:           true,
		CreatedAt:      time.Now(),
	}
}

// NewAssistantMessage creates a provisional (in-flight) assistant message.
func NewAssistantMessage(conversationID, content string) *Message {
	return &Message{
		ConversationID: conversationID,
		Role:           RoleAssistant,
		Content:        content,
		CreatedAt:      time.Now(),
	}
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// Clone returns a copy of the message.
func (m *Message) Clone() *Message {
	cp := *m
	return &cp
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// NewID creates a client-generated identifier. Used for conversations and
// presence keys; message ids come from the remote store.
func NewID() string {
	return uuid.NewString()
}
