// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store implements the remote store client.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/mootlabs/moot-tui/internal/model"
)

// =============================================================================
// WIRE ROWS
// =============================================================================

// MessageRow is the message table's wire representation.
type MessageRow struct {
	ID             string    `json:"id,omitempty"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	SenderName     string    `json:"senderName,omitempty"`
	IsDone         bool      `json:"isDone"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
}

// ConversationRow is the conversation table's wire representation. The
// Messages field is only populated on embedded selects.
type ConversationRow struct {
	ID          string       `json:"id"`
	RoomID      string       `json:"roomId"`
	Name        string       `json:"name"`
	Model       string       `json:"model"`
	Prompt      string       `json:"prompt"`
	Temperature float64      `json:"temperature"`
	Loading     bool         `json:"loading"`
	Deleted     bool         `json:"deleted"`
	CreatedAt   time.Time    `json:"createdAt,omitempty"`
	Messages    []MessageRow `json:"message,omitempty"`
}

// MessageToRow converts a message to its wire row.
func MessageToRow(m *model.Message) MessageRow {
	return MessageRow{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role.String(),
		Content:        m.Content,
		SenderName:     m.SenderName,
		IsDone:         m.Done,
		CreatedAt:      m.CreatedAt,
	}
}

// RowToMessage converts a wire row to a message.
func RowToMessage(r MessageRow) *model.Message {
	return &model.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Role:           model.Role(r.Role),
		Content:        r.Content,
		SenderName:     r.SenderName,
		Done:           r.IsDone,
		CreatedAt:      r.CreatedAt,
	}
}

// ConversationToRow converts a conversation to its wire row. Messages are
// persisted through the message table, never inline.
func ConversationToRow(c *model.Conversation) ConversationRow {
	return ConversationRow{
		ID:          c.ID,
		RoomID:      c.RoomID,
		Name:        c.Name,
		Model:       c.Model,
		Prompt:      c.Prompt,
		Temperature: c.Temperature,
		Loading:     c.Loading,
		Deleted:     c.Deleted,
		CreatedAt:   c.CreatedAt,
	}
}

// RowToConversation converts a wire row, including embedded messages,
// to a conversation with its log in creation order.
func RowToConversation(r ConversationRow) *model.Conversation {
	conv := &model.Conversation{
		ID:          r.ID,
		RoomID:      r.RoomID,
		Name:        r.Name,
		Model:       r.Model,
		Prompt:      r.Prompt,
		Temperature: r.Temperature,
		Loading:     r.Loading,
		Deleted:     r.Deleted,
		CreatedAt:   r.CreatedAt,
		Messages:    make([]*model.Message, 0, len(r.Messages)),
	}
	rows := append([]MessageRow(nil), r.Messages...)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	for _, mr := range rows {
		conv.Messages = append(conv.Messages, RowToMessage(mr))
	}
	return conv
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// UpsertMessage writes a message row, merging on id when it already
// exists. Returns the stored row, which carries the server-assigned id
// for first-time inserts.
func (c *Client) UpsertMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	var rows []MessageRow
	if err := c.upsert(ctx, "message", MessageToRow(msg), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return msg.Clone(), nil
	}
	return RowToMessage(rows[0]), nil
}

// InsertMessage adds a new message row and returns it with its id.
func (c *Client) InsertMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	var rows []MessageRow
	if err := c.insert(ctx, "message", MessageToRow(msg), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return msg.Clone(), nil
	}
	return RowToMessage(rows[0]), nil
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// InsertConversation adds a new conversation row.
func (c *Client) InsertConversation(ctx context.Context, conv *model.Conversation) error {
	return c.insert(ctx, "conversation", ConversationToRow(conv), nil)
}

// UpdateConversation patches a conversation row by id.
func (c *Client) UpdateConversation(ctx context.Context, conv *model.Conversation) error {
	return c.update(ctx, "conversation", eq("id", conv.ID), ConversationToRow(conv))
}

// SetConversationLoading mirrors the in-flight flag so other participants
// see the turn.
func (c *Client) SetConversationLoading(ctx context.Context, id string, loading bool) error {
	return c.update(ctx, "conversation", eq("id", id), map[string]bool{"loading": loading})
}

// SoftDeleteConversation hides a conversation without destroying its rows.
func (c *Client) SoftDeleteConversation(ctx context.Context, id string) error {
	return c.update(ctx, "conversation", eq("id", id), map[string]bool{"deleted": true})
}

// SelectRoomConversations loads a room's conversations with their
// messages embedded, oldest first.
func (c *Client) SelectRoomConversations(ctx context.Context, roomID string) ([]*model.Conversation, error) {
	filter := "select=*,message(*)&" + eq("roomId", roomID) + "&order=createdAt.asc"
	var rows []ConversationRow
	if err := c.selectRows(ctx, "conversation", filter, &rows); err != nil {
		return nil, err
	}
	out := make([]*model.Conversation, 0, len(rows))
	for _, r := range rows {
		out = append(out, RowToConversation(r))
	}
	return out, nil
}
