// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package realtime implements the websocket channel client for change
// feeds and presence.
package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mootlabs/moot-tui/internal/model"
)

// =============================================================================
// CHANNEL STATE
// =============================================================================

// ChannelState is the lifecycle state of one topic subscription.
type ChannelState int

const (
	StateIdle ChannelState = iota
	StateConnecting
	StateSubscribed
	StateTimedOut
	StateDisconnected
	StateClosed
)

// String returns the state name.
func (s ChannelState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateTimedOut:
		return "timed_out"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultSubscribeTimeout is how long one subscribe attempt may wait
	// for its acknowledgement.
	DefaultSubscribeTimeout = 10 * time.Second

	// DefaultMaxAttempts bounds subscribe retries. After the last attempt
	// the channel stays TimedOut and the caller surfaces it to the user.
	DefaultMaxAttempts = 5

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps the backoff.
	retryMaxDelay = 10 * time.Second
)

// backoffDelay returns the wait before retry attempt n (1-based).
func backoffDelay(attempt int) time.Duration {
	delay := retryBaseDelay << (attempt - 1)
	if delay > retryMaxDelay || delay <= 0 {
		return retryMaxDelay
	}
	return delay
}

// =============================================================================
// CHANNEL
// =============================================================================

// Channel is one topic subscription on a Conn. Handlers are set before
// Subscribe and are invoked from the connection's read pump, one frame
// at a time.
type Channel struct {
	conn  *Conn
	topic string

	// OnEvent receives each decoded change event.
	OnEvent func(Event)

	// OnPresence receives the full presence snapshot on every sync.
	OnPresence func(map[string]model.Presence)

	// OnStateChange observes lifecycle transitions.
	OnStateChange func(ChannelState)

	SubscribeTimeout time.Duration
	MaxAttempts      int

	mu    sync.Mutex
	state ChannelState
	ack   chan struct{}
}

func newChannel(conn *Conn, topic string) *Channel {
	return &Channel{
		conn:             conn,
		topic:            topic,
		SubscribeTimeout: DefaultSubscribeTimeout,
		MaxAttempts:      DefaultMaxAttempts,
	}
}

// Topic returns the channel's topic.
func (ch *Channel) Topic() string {
	return ch.topic
}

// State returns the current lifecycle state.
func (ch *Channel) State() ChannelState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

func (ch *Channel) setState(s ChannelState) {
	ch.mu.Lock()
	if ch.state == s {
		ch.mu.Unlock()
		return
	}
	ch.state = s
	notify := ch.OnStateChange
	ch.mu.Unlock()

	if notify != nil {
		notify(s)
	}
}

// Subscribe joins the topic, retrying with exponential backoff when the
// server does not acknowledge in time. Returns nil once subscribed; a
// *SubscriptionError with TimedOut set after the attempts are exhausted.
func (ch *Channel) Subscribe(ctx context.Context) error {
	attempts := ch.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(attempt - 1)
			log.Printf("realtime: retrying %s subscription in %v (attempt %d/%d)",
				ch.topic, delay, attempt, attempts)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		ch.setState(StateConnecting)

		ack := make(chan struct{}, 1)
		ch.mu.Lock()
		ch.ack = ack
		ch.mu.Unlock()

		ch.conn.sendJSON(envelope{Type: typeSubscribe, Topic: ch.topic})

		select {
		case <-ack:
			ch.setState(StateSubscribed)
			return nil
		case <-time.After(ch.SubscribeTimeout):
			ch.setState(StateTimedOut)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return &SubscriptionError{Topic: ch.topic, TimedOut: true}
}

// Track publishes this session's presence state on the topic. Presence
// is ephemeral: it is never retried or persisted, the next Track simply
// supersedes it.
func (ch *Channel) Track(p model.Presence) {
	ch.conn.sendJSON(envelope{
		Type:  typeTrack,
		Topic: ch.topic,
		Key:   p.Key,
		State: map[string]model.Presence{p.Key: p},
	})
}

// handle processes one inbound envelope for this topic.
func (ch *Channel) handle(env envelope) {
	switch env.Type {
	case typeSubscribed:
		ch.mu.Lock()
		ack := ch.ack
		ch.ack = nil
		ch.mu.Unlock()
		if ack != nil {
			select {
			case ack <- struct{}{}:
			default:
			}
		}

	case typeChange:
		ev, err := parseChange(env)
		if err != nil {
			// Malformed frames are a server bug; skip them rather than
			// poisoning the session.
			log.Printf("realtime: dropping change on %s: %v", ch.topic, err)
			return
		}
		ch.mu.Lock()
		handler := ch.OnEvent
		ch.mu.Unlock()
		if handler != nil {
			handler(ev)
		}

	case typePresence:
		ch.mu.Lock()
		handler := ch.OnPresence
		ch.mu.Unlock()
		if handler != nil {
			handler(env.State)
		}

	case typeError:
		log.Printf("realtime: server error on %s: %s", ch.topic, env.Error)

	default:
		log.Printf("realtime: unknown frame type %q on %s", env.Type, ch.topic)
	}
}
