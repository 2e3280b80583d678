// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for rooms, conversations,
// messages, and presence.
//
// This package defines the core domain types shared by the sync engine,
// the remote store client, and the UI.
//
// # Key Types
//
//   - Room: A shared space holding conversations and participants
//   - Conversation: A message log with generation settings, visible to
//     every participant in the room
//   - Message: Single message with role, content, and completion state
//   - Presence: One participant's ephemeral state (name, color, focus)
//
// # Usage
//
// Create a conversation and append a message:
//
//	conv := model.NewConversation(roomID, "gpt-4", 1.0)
//	conv.Append(model.NewUserMessage(conv.ID, "Hello!", "ada"))
//	conv.DeriveName()
package model
