// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache provides the local durable cache of room state.
//
// The remote store is the source of truth; this cache only makes
// restarts fast and keeps the last-read state available while offline.
// Conversations are stored as JSON snapshots keyed by id, plus the
// selected conversation per room.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/mootlabs/moot-tui/internal/model"
)

// ErrNotCached indicates the requested entry is not in the cache.
var ErrNotCached = errors.New("not cached")

// =============================================================================
// CACHE
// =============================================================================

// Cache is a SQLite-backed snapshot store.
type Cache struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS conversation_cache (
	id         TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversation_cache_room
	ON conversation_cache(room_id);

CREATE TABLE IF NOT EXISTS selected_conversation (
	room_id         TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL
);
`

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// =============================================================================
// CONVERSATION SNAPSHOTS
// =============================================================================

// SaveConversation writes a conversation snapshot, replacing any
// previous one.
func (c *Cache) SaveConversation(conv *model.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	_, err = c.db.Exec(`
		INSERT INTO conversation_cache (id, room_id, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			room_id = excluded.room_id,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		conv.ID, conv.RoomID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to cache conversation: %w", err)
	}
	return nil
}

// LoadConversation reads one conversation snapshot.
func (c *Cache) LoadConversation(id string) (*model.Conversation, error) {
	var data string
	err := c.db.QueryRow(
		`SELECT data FROM conversation_cache WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached conversation: %w", err)
	}

	var conv model.Conversation
	if err := json.Unmarshal([]byte(data), &conv); err != nil {
		return nil, fmt.Errorf("failed to decode cached conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations reads all cached snapshots for a room, oldest first.
func (c *Cache) ListConversations(roomID string) ([]*model.Conversation, error) {
	rows, err := c.db.Query(
		`SELECT data FROM conversation_cache WHERE room_id = ?`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached conversations: %w", err)
	}
	defer rows.Close()

	var out []*model.Conversation
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan cached conversation: %w", err)
		}
		var conv model.Conversation
		if err := json.Unmarshal([]byte(data), &conv); err != nil {
			// One corrupt snapshot should not hide the rest.
			continue
		}
		out = append(out, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list cached conversations: %w", err)
	}

	set := model.NewConversationSet(out)
	return set.All(), nil
}

// DeleteConversation drops a snapshot.
func (c *Cache) DeleteConversation(id string) error {
	_, err := c.db.Exec(`DELETE FROM conversation_cache WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cached conversation: %w", err)
	}
	return nil
}

// =============================================================================
// SELECTED CONVERSATION
// =============================================================================

// SaveSelected records which conversation is open in a room.
func (c *Cache) SaveSelected(roomID, conversationID string) error {
	_, err := c.db.Exec(`
		INSERT INTO selected_conversation (room_id, conversation_id)
		VALUES (?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			conversation_id = excluded.conversation_id`,
		roomID, conversationID)
	if err != nil {
		return fmt.Errorf("failed to cache selection: %w", err)
	}
	return nil
}

// LoadSelected returns the last open conversation id for a room.
func (c *Cache) LoadSelected(roomID string) (string, error) {
	var id string
	err := c.db.QueryRow(
		`SELECT conversation_id FROM selected_conversation WHERE room_id = ?`,
		roomID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotCached
	}
	if err != nil {
		return "", fmt.Errorf("failed to read cached selection: %w", err)
	}
	return id, nil
}
