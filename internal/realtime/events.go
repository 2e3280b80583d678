// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package realtime implements the websocket channel client for change
// feeds and presence.
//
// All traffic rides one socket as JSON envelopes, multiplexed by topic.
// Change envelopes are parsed and validated here, at the subscription
// boundary, into a closed set of event types; the rest of the program
// never sees a raw payload.
package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/mootlabs/moot-tui/internal/model"
	"github.com/mootlabs/moot-tui/internal/store"
)

// =============================================================================
// ERRORS
// =============================================================================

// SubscriptionError represents a channel that failed to reach or keep a
// healthy subscription.
type SubscriptionError struct {
	Topic    string
	TimedOut bool
	Err      error
}

// Error implements the error interface.
func (e *SubscriptionError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("subscription %s timed out", e.Topic)
	}
	return fmt.Sprintf("subscription %s failed: %v", e.Topic, e.Err)
}

// Unwrap returns the underlying error.
func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// =============================================================================
// WIRE ENVELOPE
// =============================================================================

// Envelope is the wire frame for every message on the socket.
type envelope struct {
	Type   string                    `json:"type"`            // subscribe, subscribed, change, presence, track, error
	Topic  string                    `json:"topic,omitempty"` // table topic or presence channel name
	Table  string                    `json:"table,omitempty"` // message | conversation
	Event  string                    `json:"event,omitempty"` // INSERT | UPDATE
	Record json.RawMessage           `json:"record,omitempty"`
	Key    string                    `json:"key,omitempty"`
	State  map[string]model.Presence `json:"state,omitempty"`
	Error  string                    `json:"error,omitempty"`
}

const (
	typeSubscribe  = "subscribe"
	typeSubscribed = "subscribed"
	typeChange     = "change"
	typePresence   = "presence"
	typeTrack      = "track"
	typeError      = "error"

	tableMessage      = "message"
	tableConversation = "conversation"

	eventInsert = "INSERT"
	eventUpdate = "UPDATE"
)

// =============================================================================
// CHANGE EVENT UNION
// =============================================================================

// Event is one decoded change-feed event. The set of implementations is
// closed; consumers switch on the concrete type.
type Event interface {
	isEvent()
}

// MessageInserted carries a new message row.
type MessageInserted struct {
	Message *model.Message
}

// ConversationInserted carries a new conversation row.
type ConversationInserted struct {
	Conversation *model.Conversation
}

// ConversationUpdated carries a changed conversation row that is still
// live.
type ConversationUpdated struct {
	Conversation *model.Conversation
}

// ConversationSoftDeleted carries the id of a conversation whose deleted
// flag was set.
type ConversationSoftDeleted struct {
	ID string
}

func (MessageInserted) isEvent()         {}
func (ConversationInserted) isEvent()    {}
func (ConversationUpdated) isEvent()     {}
func (ConversationSoftDeleted) isEvent() {}

// parseChange validates a change envelope and maps it onto the event
// union. Unknown tables, unknown events, and undecodable records are all
// rejected here so downstream code only handles well-formed events.
func parseChange(env envelope) (Event, error) {
	switch env.Table {
	case tableMessage:
		if env.Event != eventInsert {
			return nil, fmt.Errorf("unsupported message event %q", env.Event)
		}
		var row store.MessageRow
		if err := json.Unmarshal(env.Record, &row); err != nil {
			return nil, fmt.Errorf("decode message record: %w", err)
		}
		if row.ID == "" {
			return nil, fmt.Errorf("message record without id")
		}
		return MessageInserted{Message: store.RowToMessage(row)}, nil

	case tableConversation:
		var row store.ConversationRow
		if err := json.Unmarshal(env.Record, &row); err != nil {
			return nil, fmt.Errorf("decode conversation record: %w", err)
		}
		if row.ID == "" {
			return nil, fmt.Errorf("conversation record without id")
		}
		switch env.Event {
		case eventInsert:
			return ConversationInserted{Conversation: store.RowToConversation(row)}, nil
		case eventUpdate:
			if row.Deleted {
				return ConversationSoftDeleted{ID: row.ID}, nil
			}
			return ConversationUpdated{Conversation: store.RowToConversation(row)}, nil
		default:
			return nil, fmt.Errorf("unsupported conversation event %q", env.Event)
		}

	default:
		return nil, fmt.Errorf("unknown table %q", env.Table)
	}
}
