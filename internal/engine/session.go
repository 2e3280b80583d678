// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine implements the room session: the shared state store,
// the optimistic send pipeline, the remote change subscriber, and the
// presence tracker.
//
// One Session exists per joined room. All state mutations funnel through
// its mutex, whether they originate from the local user, an in-flight
// stream, or the change feed; handlers therefore always observe a
// consistent snapshot.
package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"

	"github.com/mootlabs/moot-tui/internal/api"
	"github.com/mootlabs/moot-tui/internal/model"
	"github.com/mootlabs/moot-tui/internal/stream"
)

// =============================================================================
// DEPENDENCY INTERFACES
// =============================================================================

// Store is the remote persistence surface the session writes through.
type Store interface {
	UpsertMessage(ctx context.Context, msg *model.Message) (*model.Message, error)
	InsertConversation(ctx context.Context, conv *model.Conversation) error
	UpdateConversation(ctx context.Context, conv *model.Conversation) error
	SetConversationLoading(ctx context.Context, id string, loading bool) error
	SoftDeleteConversation(ctx context.Context, id string) error
	SelectRoomConversations(ctx context.Context, roomID string) ([]*model.Conversation, error)
}

// Completer is the completion endpoint surface.
type Completer interface {
	Stream(ctx context.Context, req *api.ChatRequest) (io.ReadCloser, error)
	AskPlugin(ctx context.Context, req *api.PluginRequest) (string, error)
}

// Cache is the local durable cache.
type Cache interface {
	SaveConversation(conv *model.Conversation) error
	SaveSelected(roomID, conversationID string) error
}

// ToastLevel classifies a user-facing notification.
type ToastLevel int

const (
	ToastInfo ToastLevel = iota
	ToastError
	// ToastPersistent stays on screen until dismissed. Used for channel
	// timeouts, which leave the session silently stale otherwise.
	ToastPersistent
)

// =============================================================================
// SESSION
// =============================================================================

// ErrTurnInFlight is returned when a send overlaps an unfinished turn.
var ErrTurnInFlight = errors.New("a turn is already in flight")

// ErrNoConversation is returned when an operation needs a selected
// conversation and none exists.
var ErrNoConversation = errors.New("no conversation selected")

// Session is one participant's live view of a room.
type Session struct {
	mu sync.Mutex

	room          model.Room
	conversations *model.ConversationSet
	selectedID    string
	roster        model.Roster

	self      model.Presence
	turnState TurnState
	stop      *stream.StopFlag

	// Server ids of the running turn's own rows, captured as their
	// upserts return. The change feed echoes our writes back; these let
	// the subscriber skip exactly them and nothing else.
	turnUserMsgID      string
	turnAssistantMsgID string

	store     Store
	completer Completer
	cache     Cache

	prompt  string
	plugins map[string]string // plugin keys; non-empty enables the plugin path

	onUpdate func()
	onToast  func(level ToastLevel, msg string)
}

// Config carries the dependencies and identity for a session.
type Config struct {
	Room      model.Room
	Self      model.Presence
	Store     Store
	Completer Completer
	Cache     Cache
	Prompt    string
	Plugins   map[string]string

	// OnUpdate is invoked after every state change; the UI uses it to
	// schedule a redraw. May be nil.
	OnUpdate func()

	// OnToast surfaces user-facing notifications. May be nil.
	OnToast func(level ToastLevel, msg string)
}

// NewSession creates a session for a room. Call Bootstrap before use.
func NewSession(cfg Config) *Session {
	return &Session{
		room:          cfg.Room,
		conversations: model.NewConversationSet(nil),
		roster:        model.Roster{},
		self:          cfg.Self,
		stop:          stream.NewStopFlag(),
		store:         cfg.Store,
		completer:     cfg.Completer,
		cache:         cfg.Cache,
		prompt:        cfg.Prompt,
		plugins:       cfg.Plugins,
		onUpdate:      cfg.OnUpdate,
		onToast:       cfg.OnToast,
	}
}

// Bootstrap loads the room's conversations from the remote store and
// selects the most recent one. An empty room starts with a fresh
// conversation that is created remotely on first send.
func (s *Session) Bootstrap(ctx context.Context) error {
	convs, err := s.store.SelectRoomConversations(ctx, s.room.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conversations = model.NewConversationSet(convs)
	if last := s.conversations.Last(); last != nil {
		s.selectedID = last.ID
		s.self.SelectedConversationID = last.ID
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// BootstrapLocal installs a cached snapshot of the room, used when the
// remote store is unreachable at startup. The next successful Bootstrap
// replaces it wholesale.
func (s *Session) BootstrapLocal(convs []*model.Conversation) {
	s.mu.Lock()
	s.conversations = model.NewConversationSet(convs)
	if last := s.conversations.Last(); last != nil {
		s.selectedID = last.ID
		s.self.SelectedConversationID = last.ID
	}
	s.mu.Unlock()

	s.notify()
}

// =============================================================================
// SNAPSHOT ACCESSORS
// =============================================================================

// Room returns the joined room.
func (s *Session) Room() model.Room {
	return s.room
}

// Selected returns a deep copy of the selected conversation, or nil.
func (s *Session) Selected() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.conversations.Get(s.selectedID)
	if conv == nil {
		return nil
	}
	return conv.Clone()
}

// SelectedID returns the selected conversation id, or "".
func (s *Session) SelectedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedID
}

// Conversations returns deep copies of the visible conversations in
// creation order.
func (s *Session) Conversations() []*model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Conversation, 0, s.conversations.Len())
	for _, c := range s.conversations.All() {
		out = append(out, c.Clone())
	}
	return out
}

// Roster returns the current participant roster.
func (s *Session) Roster() model.Roster {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(model.Roster, len(s.roster))
	for k, p := range s.roster {
		out[k] = p
	}
	return out
}

// Self returns this session's presence state.
func (s *Session) Self() model.Presence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// TurnState returns the send pipeline's current state.
func (s *Session) TurnState() TurnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnState
}

// StopFlag exposes the shared abort flag; the UI raises it on the stop
// key.
func (s *Session) StopFlag() *stream.StopFlag {
	return s.stop
}

// UpdateSelf applies a changed display name or color, keeping the
// session key and selected conversation. Empty values leave the current
// ones in place; the caller re-tracks presence so the room sees the
// change.
func (s *Session) UpdateSelf(name, color string) {
	s.mu.Lock()
	if name != "" {
		s.self.Name = name
	}
	if color != "" {
		s.self.Color = color
	}
	s.mu.Unlock()
	s.notify()
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// Select switches the viewed conversation, mirrors the focus change to
// presence via the returned presence state, and caches the choice.
func (s *Session) Select(id string) (model.Presence, error) {
	s.mu.Lock()
	conv := s.conversations.Get(id)
	if conv == nil {
		s.mu.Unlock()
		return model.Presence{}, ErrNoConversation
	}
	s.selectedID = id
	s.self.SelectedConversationID = id
	self := s.self
	snapshot := conv.Clone()
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.SaveSelected(s.room.ID, id); err != nil {
			log.Printf("engine: cache selected conversation: %v", err)
		}
		if err := s.cache.SaveConversation(snapshot); err != nil {
			log.Printf("engine: cache conversation: %v", err)
		}
	}

	s.notify()
	return self, nil
}

// NewConversation creates a conversation inheriting settings from the
// most recent one, adds it optimistically, and inserts it remotely.
func (s *Session) NewConversation(ctx context.Context) (*model.Conversation, error) {
	s.mu.Lock()
	modelID := model.DefaultModelID
	temperature := model.DefaultTemperature
	if last := s.conversations.Last(); last != nil {
		modelID = last.Model
		temperature = last.Temperature
	}
	conv := model.NewConversation(s.room.ID, modelID, temperature)
	conv.Prompt = s.prompt
	s.conversations.Add(conv)
	s.selectedID = conv.ID
	s.self.SelectedConversationID = conv.ID
	snapshot := conv.Clone()
	s.mu.Unlock()

	s.notify()

	if err := s.store.InsertConversation(ctx, snapshot); err != nil {
		s.toast(ToastError, "Could not create the conversation")
		log.Printf("engine: insert conversation: %v", err)
		return snapshot, err
	}
	return snapshot, nil
}

// Delete soft-deletes a conversation everywhere and moves the selection
// off it.
func (s *Session) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	removed := s.conversations.Remove(id)
	if s.selectedID == id {
		s.selectedID = ""
		s.self.SelectedConversationID = ""
		if last := s.conversations.Last(); last != nil {
			s.selectedID = last.ID
			s.self.SelectedConversationID = last.ID
		}
	}
	s.mu.Unlock()

	if !removed {
		return ErrNoConversation
	}
	s.notify()

	if err := s.store.SoftDeleteConversation(ctx, id); err != nil {
		log.Printf("engine: soft delete conversation: %v", err)
		return err
	}
	return nil
}

// ClearMessages empties the selected conversation's log locally and
// remotely.
func (s *Session) ClearMessages(ctx context.Context) error {
	s.mu.Lock()
	conv := s.conversations.Get(s.selectedID)
	if conv == nil {
		s.mu.Unlock()
		return ErrNoConversation
	}
	conv.Clear()
	snapshot := conv.Clone()
	s.mu.Unlock()

	s.notify()

	if err := s.store.UpdateConversation(ctx, snapshot); err != nil {
		log.Printf("engine: clear conversation: %v", err)
		return err
	}
	return nil
}

// SetModel changes the selected conversation's model.
func (s *Session) SetModel(ctx context.Context, modelID string) error {
	s.mu.Lock()
	conv := s.conversations.Get(s.selectedID)
	if conv == nil {
		s.mu.Unlock()
		return ErrNoConversation
	}
	conv.Model = modelID
	snapshot := conv.Clone()
	s.mu.Unlock()

	s.notify()

	if err := s.store.UpdateConversation(ctx, snapshot); err != nil {
		log.Printf("engine: update conversation model: %v", err)
		return err
	}
	return nil
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (s *Session) notify() {
	if s.onUpdate != nil {
		s.onUpdate()
	}
}

func (s *Session) toast(level ToastLevel, msg string) {
	if s.onToast != nil {
		s.onToast(level, msg)
	}
}
