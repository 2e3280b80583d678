// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine implements the room session: the shared state store,
// the optimistic send pipeline, the remote change subscriber, and the
// presence tracker.
package engine

import (
	"context"
	"log"

	"github.com/mootlabs/moot-tui/internal/model"
	"github.com/mootlabs/moot-tui/internal/realtime"
)

// =============================================================================
// EVENT APPLICATION
// =============================================================================

// ApplyEvent merges one change-feed event into the session. Events for
// conversations this session does not know are dropped; they belong to
// other rooms or arrived before their conversation row.
func (s *Session) ApplyEvent(ev realtime.Event) {
	switch e := ev.(type) {
	case realtime.MessageInserted:
		s.applyMessageInserted(e.Message)
	case realtime.ConversationInserted:
		s.applyConversationInserted(e.Conversation)
	case realtime.ConversationUpdated:
		s.applyConversationUpdated(e.Conversation)
	case realtime.ConversationSoftDeleted:
		s.applyConversationSoftDeleted(e.ID)
	}
}

func (s *Session) applyMessageInserted(msg *model.Message) {
	s.mu.Lock()
	conv := s.conversations.Get(msg.ConversationID)
	if conv == nil {
		s.mu.Unlock()
		return
	}
	// Our own writes echo back over the feed; skip this turn's rows by
	// id. Anyone else's message merges even while a turn is streaming,
	// and MergeRemoteInsert drops replays of rows already in the log.
	if msg.ID != "" && (msg.ID == s.turnUserMsgID || msg.ID == s.turnAssistantMsgID) {
		s.mu.Unlock()
		return
	}
	merged := conv.MergeRemoteInsert(msg)
	s.mu.Unlock()

	if merged {
		s.notify()
	}
}

func (s *Session) applyConversationInserted(conv *model.Conversation) {
	if conv.RoomID != s.room.ID {
		return
	}
	s.mu.Lock()
	added := s.conversations.Add(conv)
	s.mu.Unlock()

	if added {
		s.notify()
	}
}

// applyConversationUpdated takes the remote row's settings but keeps the
// local message log; message rows flow through their own feed.
func (s *Session) applyConversationUpdated(remote *model.Conversation) {
	if remote.RoomID != s.room.ID {
		return
	}
	s.mu.Lock()
	conv := s.conversations.Get(remote.ID)
	if conv == nil {
		s.conversations.Add(remote)
		s.mu.Unlock()
		s.notify()
		return
	}
	conv.Name = remote.Name
	conv.Model = remote.Model
	conv.Prompt = remote.Prompt
	conv.Temperature = remote.Temperature
	conv.Loading = remote.Loading
	if conv.IsEmpty() && len(remote.Messages) > 0 {
		conv.Messages = remote.Messages
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) applyConversationSoftDeleted(id string) {
	s.mu.Lock()
	removed := s.conversations.Remove(id)
	if removed && s.selectedID == id {
		s.selectedID = ""
		s.self.SelectedConversationID = ""
		if last := s.conversations.Last(); last != nil {
			s.selectedID = last.ID
			s.self.SelectedConversationID = last.ID
		}
	}
	s.mu.Unlock()

	if removed {
		s.notify()
	}
}

// =============================================================================
// PRESENCE APPLICATION
// =============================================================================

// ApplyPresence replaces the roster with a sync snapshot.
func (s *Session) ApplyPresence(snapshot map[string]model.Presence) {
	s.mu.Lock()
	s.roster.Replace(snapshot)
	s.mu.Unlock()
	s.notify()
}

// =============================================================================
// CHANNEL HEALTH
// =============================================================================

// HandleChannelState surfaces subscription health to the user. A timed
// out channel means silently stale state, so its toast is persistent.
func (s *Session) HandleChannelState(topic string, state realtime.ChannelState) {
	switch state {
	case realtime.StateTimedOut:
		s.toast(ToastPersistent, "Realtime connection timed out; changes from others may not appear. Restart to reconnect.")
	case realtime.StateDisconnected:
		s.toast(ToastError, "Realtime connection lost")
	}
	log.Printf("engine: channel %s is %s", topic, state)
}

// =============================================================================
// SUBSCRIBER WIRING
// =============================================================================

// PresenceTopic names the room's presence channel.
func PresenceTopic(roomID string) string {
	return "moot-" + roomID
}

// Subscriber binds a realtime connection's channels to a session.
type Subscriber struct {
	session  *Session
	messages *realtime.Channel
	convs    *realtime.Channel
	presence *realtime.Channel
}

// NewSubscriber creates the three channels for a room on conn.
func NewSubscriber(session *Session, conn *realtime.Conn) *Subscriber {
	b := &Subscriber{
		session:  session,
		messages: conn.Channel("message"),
		convs:    conn.Channel("conversation"),
		presence: conn.Channel(PresenceTopic(session.Room().ID)),
	}

	b.messages.OnEvent = session.ApplyEvent
	b.messages.OnStateChange = func(st realtime.ChannelState) {
		session.HandleChannelState(b.messages.Topic(), st)
	}
	b.convs.OnEvent = session.ApplyEvent
	b.convs.OnStateChange = func(st realtime.ChannelState) {
		session.HandleChannelState(b.convs.Topic(), st)
	}
	b.presence.OnPresence = session.ApplyPresence
	b.presence.OnStateChange = func(st realtime.ChannelState) {
		session.HandleChannelState(b.presence.Topic(), st)
	}

	conn.SetOnDisconnect(func(err error) {
		log.Printf("engine: realtime disconnected: %v", err)
	})
	return b
}

// Start subscribes all channels and announces this session's presence.
// Subscription failures are surfaced via channel state callbacks; Start
// returns the first one for the caller's log.
func (b *Subscriber) Start(ctx context.Context) error {
	var firstErr error
	for _, ch := range []*realtime.Channel{b.messages, b.convs, b.presence} {
		if err := ch.Subscribe(ctx); err != nil {
			log.Printf("engine: subscribe %s: %v", ch.Topic(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	b.TrackSelf()
	return firstErr
}

// TrackSelf publishes the session's current presence state. Called on
// join and after every conversation switch.
func (b *Subscriber) TrackSelf() {
	b.presence.Track(b.session.Self())
}
