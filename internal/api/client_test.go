// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the client for the completion endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mootlabs/moot-tui/internal/model"
	"github.com/mootlabs/moot-tui/internal/stream"
)

func chatRequest() *ChatRequest {
	return &ChatRequest{
		Model:       model.GetModelInfo("gpt-4"),
		Messages:    []ChatMessage{{Role: "user", Content: "hi"}},
		Prompt:      "You are helpful.",
		Temperature: 1.0,
	}
}

// =============================================================================
// STREAM TESTS
// =============================================================================

func TestClient_Stream_SendsRequestShape(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("request body not JSON: %v", err)
		}
		io.WriteString(w, "Hello")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "sk-test")
	body, err := c.Stream(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()

	if string(data) != "Hello" {
		t.Errorf("body = %q, want %q", data, "Hello")
	}
	for _, field := range []string{"model", "messages", "key", "prompt", "temperature"} {
		if _, ok := received[field]; !ok {
			t.Errorf("request missing field %q", field)
		}
	}
	if received["key"] != "sk-test" {
		t.Errorf("key = %v, want sk-test", received["key"])
	}
}

func TestClient_SetKey_AppliesToNextRequest(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "sk-old")
	c.SetKey("sk-new")

	body, err := c.Stream(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	body.Close()

	if received["key"] != "sk-new" {
		t.Errorf("key = %v, want sk-new", received["key"])
	}
}

func TestClient_Stream_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "sk-test")
	_, err := c.Stream(context.Background(), chatRequest())

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Stream() error = %v, want *TransportError", err)
	}
	if terr.Status != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want %d", terr.Status, http.StatusServiceUnavailable)
	}
}

func TestClient_Stream_ConnectionFailure(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "http://127.0.0.1:1", "sk-test")
	_, err := c.Stream(context.Background(), chatRequest())

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Stream() error = %v, want *TransportError", err)
	}
	if terr.Status != 0 {
		t.Errorf("Status = %d, want 0 for connection failure", terr.Status)
	}
}

// =============================================================================
// PLUGIN TESTS
// =============================================================================

func TestClient_AskPlugin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"answer": "42"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "sk-test")
	answer, err := c.AskPlugin(context.Background(), &PluginRequest{ChatRequest: *chatRequest()})
	if err != nil {
		t.Fatalf("AskPlugin() error: %v", err)
	}
	if answer != "42" {
		t.Errorf("answer = %q, want %q", answer, "42")
	}
}

func TestClient_AskPlugin_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json at all")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, "sk-test")
	_, err := c.AskPlugin(context.Background(), &PluginRequest{ChatRequest: *chatRequest()})

	var derr *stream.DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("AskPlugin() error = %v, want *stream.DecodeError", err)
	}
}

func TestToChatMessages(t *testing.T) {
	msgs := []*model.Message{
		model.NewUserMessage("c1", "question", "ada"),
		model.NewAssistantMessage("c1", "answer"),
	}
	wire := ToChatMessages(msgs)
	if len(wire) != 2 {
		t.Fatalf("len = %d, want 2", len(wire))
	}
	if wire[0].Role != "user" || wire[1].Role != "assistant" {
		t.Errorf("roles = %q, %q", wire[0].Role, wire[1].Role)
	}
}
