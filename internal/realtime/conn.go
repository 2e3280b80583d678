// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package realtime implements the websocket channel client for change
// feeds and presence.
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// =============================================================================
// CONNECTION
// =============================================================================

const (
	// writeTimeout bounds a single socket write.
	writeTimeout = 5 * time.Second

	// sendBuffer is the outbound queue depth before writes are dropped.
	sendBuffer = 256

	// maxFrameSize bounds inbound frames.
	maxFrameSize = 1 * 1024 * 1024
)

// Conn owns one websocket to the realtime server and fans envelopes out
// to the channels subscribed on it. Channels register by topic; frames
// for unknown topics are logged and dropped.
type Conn struct {
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	channels     map[string]*Channel
	closed       bool
	onDisconnect func(err error)
}

// SetOnDisconnect registers a callback invoked once when the read pump
// exits for any reason other than an explicit Close.
func (c *Conn) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// Dial connects to the realtime server.
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, &SubscriptionError{Topic: "connect", Err: err}
	}
	ws.SetReadLimit(maxFrameSize)

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		conn:     ws,
		send:     make(chan []byte, sendBuffer),
		ctx:      runCtx,
		cancel:   cancel,
		channels: make(map[string]*Channel),
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

// Channel returns the channel for a topic, creating it if needed.
func (c *Conn) Channel(topic string) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.channels[topic]; ok {
		return ch
	}
	ch := newChannel(c, topic)
	c.channels[topic] = ch
	return ch
}

// Close tears the socket down. Channels transition to Closed.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	channels := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
	for _, ch := range channels {
		ch.setState(StateClosed)
	}
}

func (c *Conn) readPump() {
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			notify := c.onDisconnect
			channels := make([]*Channel, 0, len(c.channels))
			for _, ch := range c.channels {
				channels = append(channels, ch)
			}
			c.mu.Unlock()

			if !closed {
				for _, ch := range channels {
					ch.setState(StateDisconnected)
				}
				if notify != nil {
					notify(err)
				}
			}
			c.cancel()
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("realtime: dropping undecodable frame: %v", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Conn) dispatch(env envelope) {
	c.mu.Lock()
	ch, ok := c.channels[env.Topic]
	c.mu.Unlock()
	if !ok {
		log.Printf("realtime: frame for unknown topic %q", env.Topic)
		return
	}
	ch.handle(env)
}

func (c *Conn) writePump() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// sendJSON queues an envelope for writing. Drops on a full queue rather
// than blocking the caller.
func (c *Conn) sendJSON(env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("realtime: failed to marshal envelope: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("realtime: dropping outbound %s frame, queue full", env.Type)
	}
}
