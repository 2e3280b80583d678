// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store implements the remote store client.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mootlabs/moot-tui/internal/model"
)

// =============================================================================
// MESSAGE OPERATION TESTS
// =============================================================================

func TestClient_UpsertMessage_CapturesServerID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/message" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if prefer := r.Header.Get("Prefer"); prefer != "resolution=merge-duplicates,return=representation" {
			t.Errorf("Prefer = %q", prefer)
		}
		body, _ := io.ReadAll(r.Body)
		var row MessageRow
		if err := json.Unmarshal(body, &row); err != nil {
			t.Errorf("body not a row: %v", err)
		}
		row.ID = "srv-42"
		json.NewEncoder(w).Encode([]MessageRow{row})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon-key")
	msg := model.NewAssistantMessage("c1", "partial")
	stored, err := c.UpsertMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("UpsertMessage() error: %v", err)
	}
	if stored.ID != "srv-42" {
		t.Errorf("stored.ID = %q, want srv-42", stored.ID)
	}
	if stored.Content != "partial" {
		t.Errorf("stored.Content = %q", stored.Content)
	}
}

func TestClient_UpsertMessage_FailureIsPersistenceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "row level security", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon-key")
	_, err := c.UpsertMessage(context.Background(), model.NewUserMessage("c1", "hi", "ada"))

	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *PersistenceError", err)
	}
	if perr.Status != http.StatusForbidden || perr.Table != "message" {
		t.Errorf("PersistenceError = %+v", perr)
	}
}

// =============================================================================
// CONVERSATION OPERATION TESTS
// =============================================================================

func TestClient_SelectRoomConversations(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("roomId") != "eq.room-1" {
			t.Errorf("roomId filter = %q", q.Get("roomId"))
		}
		if q.Get("order") != "createdAt.asc" {
			t.Errorf("order = %q", q.Get("order"))
		}
		json.NewEncoder(w).Encode([]ConversationRow{
			{
				ID: "c1", RoomID: "room-1", Name: "first", Model: "gpt-4",
				Temperature: 1.0, CreatedAt: base,
				Messages: []MessageRow{
					// Embedded rows arrive unordered; load must sort them.
					{ID: "m2", ConversationID: "c1", Role: "assistant", Content: "a", IsDone: true, CreatedAt: base.Add(2 * time.Second)},
					{ID: "m1", ConversationID: "c1", Role: "user", Content: "q", IsDone: true, CreatedAt: base.Add(time.Second)},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon-key")
	convs, err := c.SelectRoomConversations(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("SelectRoomConversations() error: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("len = %d, want 1", len(convs))
	}
	conv := convs[0]
	if conv.MessageCount() != 2 {
		t.Fatalf("MessageCount() = %d, want 2", conv.MessageCount())
	}
	if conv.Messages[0].ID != "m1" || conv.Messages[1].ID != "m2" {
		t.Errorf("messages not in creation order: %s, %s", conv.Messages[0].ID, conv.Messages[1].ID)
	}
}

func TestClient_SoftDeleteConversation(t *testing.T) {
	var patched map[string]bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		if r.URL.Query().Get("id") != "eq.c1" {
			t.Errorf("id filter = %q", r.URL.Query().Get("id"))
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &patched)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon-key")
	if err := c.SoftDeleteConversation(context.Background(), "c1"); err != nil {
		t.Fatalf("SoftDeleteConversation() error: %v", err)
	}
	if !patched["deleted"] {
		t.Errorf("patch body = %v, want deleted=true", patched)
	}
}

func TestClient_SetConversationLoading(t *testing.T) {
	var patched map[string]bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &patched)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon-key")
	if err := c.SetConversationLoading(context.Background(), "c1", true); err != nil {
		t.Fatalf("SetConversationLoading() error: %v", err)
	}
	if loading, ok := patched["loading"]; !ok || !loading {
		t.Errorf("patch body = %v, want loading=true", patched)
	}
}
