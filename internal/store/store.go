// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store implements the remote store client.
//
// The store is a PostgREST-style REST API over the shared tables
// (conversation, message). Writes are best-effort from the engine's point
// of view: a failed persistence call is reported as a *PersistenceError
// and logged by the caller, but the local session keeps going.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

// PersistenceError represents a failed read or write against the remote
// store. Op names the operation, Table the table it targeted.
type PersistenceError struct {
	Op     string
	Table  string
	Status int
	Err    error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("store %s %s failed (HTTP %d)", e.Op, e.Table, e.Status)
	}
	return fmt.Sprintf("store %s %s failed: %v", e.Op, e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// =============================================================================
// CLIENT
// =============================================================================

// DefaultTimeout bounds store requests.
const DefaultTimeout = 15 * time.Second

// Client talks to the remote store's REST interface.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a store client. baseURL is the REST root, e.g.
// "https://project.example.co/rest/v1".
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// do executes one REST call. filter is a raw query string ("" for none),
// prefer sets the Prefer header, out receives the decoded response rows
// when non-nil.
func (c *Client) do(ctx context.Context, method, table, filter, prefer string, body, out any) error {
	endpoint := c.baseURL + "/" + url.PathEscape(table)
	if filter != "" {
		endpoint += "?" + filter
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &PersistenceError{Op: method, Table: table, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &PersistenceError{Op: method, Table: table, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &PersistenceError{Op: method, Table: table, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &PersistenceError{Op: method, Table: table, Status: resp.StatusCode}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &PersistenceError{Op: method, Table: table, Err: err}
		}
	}
	return nil
}

// insert adds rows and returns the stored representation.
func (c *Client) insert(ctx context.Context, table string, row, out any) error {
	return c.do(ctx, http.MethodPost, table, "", "return=representation", row, out)
}

// upsert inserts or merges rows by primary key, returning the stored row.
func (c *Client) upsert(ctx context.Context, table string, row, out any) error {
	return c.do(ctx, http.MethodPost, table, "",
		"resolution=merge-duplicates,return=representation", row, out)
}

// update patches rows matched by filter.
func (c *Client) update(ctx context.Context, table, filter string, row any) error {
	return c.do(ctx, http.MethodPatch, table, filter, "", row, nil)
}

// selectRows reads rows matched by filter into out.
func (c *Client) selectRows(ctx context.Context, table, filter string, out any) error {
	return c.do(ctx, http.MethodGet, table, filter, "", nil, out)
}

func eq(column, value string) string {
	return column + "=eq." + url.QueryEscape(value)
}
