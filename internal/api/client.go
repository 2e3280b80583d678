// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the client for the completion endpoint.
//
// A turn is a single POST: the response body is either a plain text
// stream (normal chat) or one JSON object (plugin-assisted chat). The
// caller owns reading the body; this package only establishes the
// exchange and maps failures onto the error taxonomy.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mootlabs/moot-tui/internal/model"
	"github.com/mootlabs/moot-tui/internal/stream"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

const (
	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// maxErrorBody caps how much of an error response is read for the message.
	maxErrorBody = 8 * 1024

	// maxPluginBody caps the plugin response size.
	maxPluginBody = 10 * 1024 * 1024
)

// ErrNotConfigured indicates the API key is not set.
var ErrNotConfigured = errors.New("API key not configured")

// TransportError represents a failed exchange with the completion
// endpoint: a connection failure or a non-2xx status. Always fatal to the
// turn that caused it, never to the session.
type TransportError struct {
	Status  int // 0 when the request never got a response
	Message string
	Err     error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("completion request failed (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("completion request failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatMessage is a message as the completion endpoint expects it.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a completion request.
type ChatRequest struct {
	Model       model.ModelInfo `json:"model"`
	Messages    []ChatMessage   `json:"messages"`
	Key         string          `json:"key"`
	Prompt      string          `json:"prompt"`
	Temperature float64         `json:"temperature"`
}

// PluginRequest is the body of a plugin-assisted completion request.
type PluginRequest struct {
	ChatRequest
	PluginKeys map[string]string `json:"pluginKeys,omitempty"`
}

// pluginResponse is the single JSON object a plugin endpoint returns.
type pluginResponse struct {
	Answer string `json:"answer"`
}

// ToChatMessages converts a conversation log to the wire format.
func ToChatMessages(msgs []*model.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessage{Role: m.Role.String(), Content: m.Content})
	}
	return out
}

// =============================================================================
// CLIENT
// =============================================================================

// streamingClient has no overall timeout; streams are bounded by context.
var streamingClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// Client talks to the completion endpoint.
type Client struct {
	endpoint       string
	pluginEndpoint string
	httpClient     *http.Client

	mu     sync.Mutex
	apiKey string // swappable at runtime via SetKey
}

// NewClient creates a client for the given endpoints.
func NewClient(endpoint, pluginEndpoint, apiKey string) *Client {
	return &Client{
		endpoint:       endpoint,
		pluginEndpoint: pluginEndpoint,
		apiKey:         apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// IsConfigured reports whether an API key is available.
func (c *Client) IsConfigured() bool {
	return c.key() != ""
}

// SetKey replaces the API key. Takes effect on the next request; used
// when the config file is edited while the client is running.
func (c *Client) SetKey(key string) {
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()
}

func (c *Client) key() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apiKey
}

// Stream starts a streaming completion and returns the response body.
// The caller must drain it through a stream.Reader, which closes it.
func (c *Client) Stream(ctx context.Context, req *ChatRequest) (io.ReadCloser, error) {
	req.Key = c.key()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := streamingClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &TransportError{Status: resp.StatusCode, Message: string(msg)}
	}

	return resp.Body, nil
}

// AskPlugin performs a plugin-assisted completion. The whole answer comes
// back in one JSON object rather than a stream.
func (c *Client) AskPlugin(ctx context.Context, req *PluginRequest) (string, error) {
	req.Key = c.key()

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pluginEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &TransportError{Status: resp.StatusCode, Message: string(msg)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPluginBody))
	if err != nil {
		return "", &TransportError{Err: err}
	}

	var parsed pluginResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &stream.DecodeError{Err: err}
	}

	return parsed.Answer, nil
}
