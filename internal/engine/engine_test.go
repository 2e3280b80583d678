// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine implements the room session: the shared state store,
// the optimistic send pipeline, the remote change subscriber, and the
// presence tracker.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mootlabs/moot-tui/internal/api"
	"github.com/mootlabs/moot-tui/internal/model"
	"github.com/mootlabs/moot-tui/internal/realtime"
	"github.com/mootlabs/moot-tui/internal/stream"
)

// =============================================================================
// FAKES
// =============================================================================

// fakeStore records writes and hands out sequential server ids.
type fakeStore struct {
	mu            sync.Mutex
	nextID        int
	upserts       []model.Message
	convUpdates   []model.Conversation
	convInserts   []model.Conversation
	loadingCalls  []bool
	softDeletes   []string
	bootstrap     []*model.Conversation
	upsertErr     error
	bootstrapErr  error
}

func (f *fakeStore) UpsertMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	stored := msg.Clone()
	if stored.ID == "" {
		f.nextID++
		stored.ID = fmt.Sprintf("srv-%d", f.nextID)
	}
	f.upserts = append(f.upserts, *stored)
	return stored, nil
}

func (f *fakeStore) InsertConversation(ctx context.Context, conv *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convInserts = append(f.convInserts, *conv.Clone())
	return nil
}

func (f *fakeStore) UpdateConversation(ctx context.Context, conv *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convUpdates = append(f.convUpdates, *conv.Clone())
	return nil
}

func (f *fakeStore) SetConversationLoading(ctx context.Context, id string, loading bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadingCalls = append(f.loadingCalls, loading)
	return nil
}

func (f *fakeStore) SoftDeleteConversation(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.softDeletes = append(f.softDeletes, id)
	return nil
}

func (f *fakeStore) SelectRoomConversations(ctx context.Context, roomID string) ([]*model.Conversation, error) {
	if f.bootstrapErr != nil {
		return nil, f.bootstrapErr
	}
	return f.bootstrap, nil
}

func (f *fakeStore) messageUpserts() []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.upserts...)
}

// fragmentBody yields one fragment per read, invoking hook before each.
type fragmentBody struct {
	fragments []string
	pos       int
	hook      func(i int)
	err       error
}

func (b *fragmentBody) Read(p []byte) (int, error) {
	if b.pos >= len(b.fragments) {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	if b.hook != nil {
		b.hook(b.pos)
	}
	n := copy(p, b.fragments[b.pos])
	b.pos++
	return n, nil
}

func (b *fragmentBody) Close() error { return nil }

// fakeCompleter serves a scripted stream or plugin answer.
type fakeCompleter struct {
	body      *fragmentBody
	streamErr error
	answer    string
	pluginErr error
}

func (f *fakeCompleter) Stream(ctx context.Context, req *api.ChatRequest) (io.ReadCloser, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return f.body, nil
}

func (f *fakeCompleter) AskPlugin(ctx context.Context, req *api.PluginRequest) (string, error) {
	if f.pluginErr != nil {
		return "", f.pluginErr
	}
	return f.answer, nil
}

type fakeCache struct {
	mu       sync.Mutex
	saved    []model.Conversation
	selected []string
}

func (f *fakeCache) SaveConversation(conv *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, *conv.Clone())
	return nil
}

func (f *fakeCache) SaveSelected(roomID, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = append(f.selected, conversationID)
	return nil
}

type toast struct {
	level ToastLevel
	msg   string
}

func newTestSession(store *fakeStore, completer *fakeCompleter, plugins map[string]string) (*Session, *fakeCache, *[]toast) {
	cache := &fakeCache{}
	toasts := &[]toast{}
	var mu sync.Mutex
	s := NewSession(Config{
		Room:      model.Room{ID: "room-1"},
		Self:      model.Presence{Key: "sess-1", Name: "ada", Color: "#4299E1"},
		Store:     store,
		Completer: completer,
		Cache:     cache,
		Prompt:    "You are helpful.",
		Plugins:   plugins,
		OnToast: func(level ToastLevel, msg string) {
			mu.Lock()
			defer mu.Unlock()
			*toasts = append(*toasts, toast{level, msg})
		},
	})
	return s, cache, toasts
}

func seedConversation(s *Session) *model.Conversation {
	conv := model.NewConversation("room-1", "gpt-4", 1.0)
	s.mu.Lock()
	s.conversations.Add(conv)
	s.selectedID = conv.ID
	s.self.SelectedConversationID = conv.ID
	s.mu.Unlock()
	return conv
}

// =============================================================================
// SEND PIPELINE TESTS
// =============================================================================

func TestSend_StreamingTurn(t *testing.T) {
	store := &fakeStore{}
	completer := &fakeCompleter{body: &fragmentBody{fragments: []string{"The ", "answer ", "is 42."}}}
	s, cache, _ := newTestSession(store, completer, nil)
	seedConversation(s)

	err := s.Send(context.Background(), "What is the answer?", 0)
	require.NoError(t, err)

	conv := s.Selected()
	require.Equal(t, 2, conv.MessageCount())

	user, assistant := conv.Messages[0], conv.Messages[1]
	assert.Equal(t, model.RoleUser, user.Role)
	assert.Equal(t, "What is the answer?", user.Content)
	assert.Equal(t, "ada", user.SenderName)
	assert.NotEmpty(t, user.ID, "user message should carry its server id")

	assert.Equal(t, model.RoleAssistant, assistant.Role)
	assert.Equal(t, "The answer is 42.", assistant.Content)
	assert.True(t, assistant.Done)
	assert.NotEmpty(t, assistant.ID)

	// First turn derives the name from the user message.
	assert.Equal(t, "What is the answer?", conv.Name)
	assert.False(t, conv.Loading)
	assert.Equal(t, TurnIdle, s.TurnState())

	// Every fragment was mirrored with the full accumulated content,
	// provisional rows first, a done row last.
	upserts := store.messageUpserts()
	require.GreaterOrEqual(t, len(upserts), 5) // user + 3 fragments + finalize
	var assistantRows []model.Message
	for _, u := range upserts {
		if u.Role == model.RoleAssistant {
			assistantRows = append(assistantRows, u)
		}
	}
	assert.Equal(t, "The ", assistantRows[0].Content)
	assert.False(t, assistantRows[0].Done)
	last := assistantRows[len(assistantRows)-1]
	assert.Equal(t, "The answer is 42.", last.Content)
	assert.True(t, last.Done)
	for _, row := range assistantRows[1:] {
		assert.Equal(t, last.ID, row.ID, "fragment mirrors reuse the captured server id")
	}

	// Finalize wrote the conversation to the local cache.
	require.NotEmpty(t, cache.saved)
	assert.Equal(t, conv.ID, cache.saved[len(cache.saved)-1].ID)
}

func TestSend_EditAndResendTruncates(t *testing.T) {
	store := &fakeStore{}
	completer := &fakeCompleter{body: &fragmentBody{fragments: []string{"better answer"}}}
	s, _, _ := newTestSession(store, completer, nil)
	conv := seedConversation(s)

	s.mu.Lock()
	conv.Append(model.NewUserMessage(conv.ID, "old question", "ada"))
	conv.Append(model.NewAssistantMessage(conv.ID, "old answer"))
	s.mu.Unlock()

	err := s.Send(context.Background(), "new question", 2)
	require.NoError(t, err)

	got := s.Selected()
	require.Equal(t, 2, got.MessageCount())
	assert.Equal(t, "new question", got.Messages[0].Content)
	assert.Equal(t, "better answer", got.Messages[1].Content)
}

func TestRegenerate(t *testing.T) {
	store := &fakeStore{}
	completer := &fakeCompleter{body: &fragmentBody{fragments: []string{"take two"}}}
	s, _, _ := newTestSession(store, completer, nil)
	conv := seedConversation(s)

	s.mu.Lock()
	conv.Append(model.NewUserMessage(conv.ID, "question", "ada"))
	conv.Append(model.NewAssistantMessage(conv.ID, "first try"))
	s.mu.Unlock()

	require.NoError(t, s.Regenerate(context.Background()))

	got := s.Selected()
	require.Equal(t, 2, got.MessageCount())
	assert.Equal(t, "question", got.Messages[0].Content)
	assert.Equal(t, "take two", got.Messages[1].Content)
}

func TestSend_AbortKeepsPartialUndone(t *testing.T) {
	store := &fakeStore{}
	body := &fragmentBody{fragments: []string{"partial ", "answer", " never seen"}}
	completer := &fakeCompleter{body: body}
	s, _, _ := newTestSession(store, completer, nil)
	seedConversation(s)

	// Raise the stop flag while the second fragment is being read; the
	// reader notices at the next fragment boundary.
	body.hook = func(i int) {
		if i == 1 {
			s.Stop()
		}
	}

	err := s.Send(context.Background(), "question", 0)
	require.NoError(t, err)

	conv := s.Selected()
	require.Equal(t, 2, conv.MessageCount())
	assistant := conv.Messages[1]
	assert.Equal(t, "partial answer", assistant.Content)
	assert.False(t, assistant.Done, "a stopped answer is never marked done")
	assert.False(t, conv.Loading)
	assert.Equal(t, TurnAborted, s.TurnState())

	// The partial row still reached the store, also not done.
	upserts := store.messageUpserts()
	last := upserts[len(upserts)-1]
	assert.Equal(t, model.RoleAssistant, last.Role)
	assert.Equal(t, "partial answer", last.Content)
	assert.False(t, last.Done)
}

func TestSend_TransportFailureKeepsUserMessage(t *testing.T) {
	store := &fakeStore{}
	completer := &fakeCompleter{streamErr: &api.TransportError{Status: 503, Message: "overloaded"}}
	s, _, toasts := newTestSession(store, completer, nil)
	seedConversation(s)

	err := s.Send(context.Background(), "question", 0)
	require.Error(t, err)
	var terr *api.TransportError
	assert.ErrorAs(t, err, &terr)

	conv := s.Selected()
	require.Equal(t, 1, conv.MessageCount(), "optimistic user message survives the failure")
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
	assert.False(t, conv.Loading)
	assert.Equal(t, TurnFailed, s.TurnState())
	require.NotEmpty(t, *toasts)
	assert.Equal(t, ToastError, (*toasts)[0].level)
}

func TestSend_DecodeFailureDiscardsProvisional(t *testing.T) {
	store := &fakeStore{}
	body := &fragmentBody{
		fragments: []string{"good start"},
		err:       &stream.DecodeError{Err: errors.New("bad bytes")},
	}
	s, _, _ := newTestSession(store, &fakeCompleter{body: body}, nil)
	seedConversation(s)

	err := s.Send(context.Background(), "question", 0)
	require.Error(t, err)
	var derr *stream.DecodeError
	assert.ErrorAs(t, err, &derr)

	conv := s.Selected()
	require.Equal(t, 1, conv.MessageCount(), "provisional assistant message discarded")
	assert.Equal(t, TurnFailed, s.TurnState())
}

func TestSend_PluginTurn(t *testing.T) {
	store := &fakeStore{}
	completer := &fakeCompleter{answer: "plugin says hi"}
	s, _, _ := newTestSession(store, completer, map[string]string{"searchKey": "k"})
	seedConversation(s)

	require.NoError(t, s.Send(context.Background(), "search something", 0))

	conv := s.Selected()
	require.Equal(t, 2, conv.MessageCount())
	assistant := conv.Messages[1]
	assert.Equal(t, "plugin says hi", assistant.Content)
	assert.True(t, assistant.Done)
	assert.Equal(t, TurnIdle, s.TurnState())
}

func TestSend_RejectsOverlappingTurn(t *testing.T) {
	store := &fakeStore{}
	s, _, _ := newTestSession(store, &fakeCompleter{}, nil)
	seedConversation(s)

	s.mu.Lock()
	s.turnState = TurnStreaming
	s.mu.Unlock()

	err := s.Send(context.Background(), "question", 0)
	assert.ErrorIs(t, err, ErrTurnInFlight)
}

func TestSend_LoadingFlagMirroredDuringTurn(t *testing.T) {
	store := &fakeStore{}
	body := &fragmentBody{fragments: []string{"x"}}
	s, _, _ := newTestSession(store, &fakeCompleter{body: body}, nil)
	seedConversation(s)

	var loadingMidTurn bool
	body.hook = func(int) {
		loadingMidTurn = s.Selected().Loading
	}

	require.NoError(t, s.Send(context.Background(), "question", 0))
	assert.True(t, loadingMidTurn, "loading flag set while streaming")

	// The conversation mirror during commit carried loading=true and the
	// finalize cleared it remotely.
	require.NotEmpty(t, store.convUpdates)
	assert.True(t, store.convUpdates[0].Loading)
	require.NotEmpty(t, store.loadingCalls)
	assert.False(t, store.loadingCalls[len(store.loadingCalls)-1])
}

// =============================================================================
// SUBSCRIBER TESTS
// =============================================================================

func TestApplyEvent_MessageInsert(t *testing.T) {
	s, _, _ := newTestSession(&fakeStore{}, &fakeCompleter{}, nil)
	conv := seedConversation(s)
	other := model.NewConversation("room-1", "gpt-4", 1.0)
	s.mu.Lock()
	s.conversations.Add(other)
	s.mu.Unlock()

	msg := model.NewUserMessage(other.ID, "from bob", "bob")
	msg.ID = "m-remote"
	s.ApplyEvent(realtime.MessageInserted{Message: msg})

	s.mu.Lock()
	merged := s.conversations.Get(other.ID).MessageCount()
	s.mu.Unlock()
	assert.Equal(t, 1, merged)

	// Same row again: idempotent.
	s.ApplyEvent(realtime.MessageInserted{Message: msg.Clone()})
	s.mu.Lock()
	merged = s.conversations.Get(other.ID).MessageCount()
	s.mu.Unlock()
	assert.Equal(t, 1, merged)

	// Unknown conversation: dropped.
	orphan := model.NewUserMessage("conv-unknown", "lost", "eve")
	orphan.ID = "m-orphan"
	s.ApplyEvent(realtime.MessageInserted{Message: orphan})
	assert.Equal(t, 0, s.Selected().MessageCount())
	_ = conv
}

func TestApplyEvent_OwnEchoSkippedMidTurn(t *testing.T) {
	s, _, _ := newTestSession(&fakeStore{}, &fakeCompleter{}, nil)
	conv := seedConversation(s)

	s.mu.Lock()
	s.turnState = TurnStreaming
	s.turnUserMsgID = "srv-user"
	s.turnAssistantMsgID = "srv-assistant"
	s.mu.Unlock()

	userEcho := model.NewUserMessage(conv.ID, "our question", "ada")
	userEcho.ID = "srv-user"
	s.ApplyEvent(realtime.MessageInserted{Message: userEcho})

	echo := model.NewAssistantMessage(conv.ID, "echo of our own stream")
	echo.ID = "srv-assistant"
	s.ApplyEvent(realtime.MessageInserted{Message: echo})

	assert.Equal(t, 0, s.Selected().MessageCount())
}

func TestApplyEvent_ThirdPartyMergesMidTurn(t *testing.T) {
	s, _, _ := newTestSession(&fakeStore{}, &fakeCompleter{}, nil)
	conv := seedConversation(s)

	s.mu.Lock()
	s.turnState = TurnStreaming
	s.turnUserMsgID = "srv-user"
	s.turnAssistantMsgID = "srv-assistant"
	s.mu.Unlock()

	// Another participant writes to the open conversation while our
	// turn is streaming; it must land, not be dropped.
	msg := model.NewUserMessage(conv.ID, "bob interjects", "bob")
	msg.ID = "srv-bob"
	s.ApplyEvent(realtime.MessageInserted{Message: msg})

	got := s.Selected()
	require.Equal(t, 1, got.MessageCount())
	assert.Equal(t, "bob interjects", got.Messages[0].Content)
}

func TestApplyEvent_ConversationLifecycle(t *testing.T) {
	s, _, _ := newTestSession(&fakeStore{}, &fakeCompleter{}, nil)
	seedConversation(s)

	remote := model.NewConversation("room-1", "gpt-4", 1.0)
	remote.Name = "from bob"
	s.ApplyEvent(realtime.ConversationInserted{Conversation: remote})
	assert.Len(t, s.Conversations(), 2)

	// Insert for another room is filtered.
	foreign := model.NewConversation("room-9", "gpt-4", 1.0)
	s.ApplyEvent(realtime.ConversationInserted{Conversation: foreign})
	assert.Len(t, s.Conversations(), 2)

	// Update changes settings but keeps the local log.
	s.mu.Lock()
	s.conversations.Get(remote.ID).Append(model.NewUserMessage(remote.ID, "local", "ada"))
	s.mu.Unlock()
	updated := remote.Clone()
	updated.Name = "renamed"
	updated.Loading = true
	updated.Messages = nil
	s.ApplyEvent(realtime.ConversationUpdated{Conversation: updated})

	s.mu.Lock()
	got := s.conversations.Get(remote.ID)
	name, loading, count := got.Name, got.Loading, got.MessageCount()
	s.mu.Unlock()
	assert.Equal(t, "renamed", name)
	assert.True(t, loading)
	assert.Equal(t, 1, count, "local log preserved across settings update")
}

func TestApplyEvent_SoftDeleteMovesSelection(t *testing.T) {
	s, _, _ := newTestSession(&fakeStore{}, &fakeCompleter{}, nil)
	first := seedConversation(s)
	second := model.NewConversation("room-1", "gpt-4", 1.0)
	s.mu.Lock()
	s.conversations.Add(second)
	s.selectedID = second.ID
	s.mu.Unlock()

	s.ApplyEvent(realtime.ConversationSoftDeleted{ID: second.ID})

	assert.Len(t, s.Conversations(), 1)
	assert.Equal(t, first.ID, s.SelectedID(), "selection falls back to the remaining conversation")
}

func TestApplyPresence_FullReplace(t *testing.T) {
	s, _, _ := newTestSession(&fakeStore{}, &fakeCompleter{}, nil)

	s.ApplyPresence(map[string]model.Presence{
		"k1": {Name: "ada"},
		"k2": {Name: "bob"},
	})
	assert.Equal(t, 2, s.Roster().Count())

	s.ApplyPresence(map[string]model.Presence{
		"k2": {Name: "bob"},
	})
	roster := s.Roster()
	assert.Equal(t, 1, roster.Count())
	_, gone := roster["k1"]
	assert.False(t, gone)
}

func TestHandleChannelState_TimeoutIsPersistentToast(t *testing.T) {
	s, _, toasts := newTestSession(&fakeStore{}, &fakeCompleter{}, nil)

	s.HandleChannelState("message", realtime.StateTimedOut)

	require.NotEmpty(t, *toasts)
	assert.Equal(t, ToastPersistent, (*toasts)[0].level)
}

// =============================================================================
// SESSION OPERATION TESTS
// =============================================================================

func TestBootstrap_SelectsMostRecent(t *testing.T) {
	older := model.NewConversation("room-1", "gpt-4", 1.0)
	newer := model.NewConversation("room-1", "gpt-4", 1.0)
	newer.CreatedAt = older.CreatedAt.Add(1)
	store := &fakeStore{bootstrap: []*model.Conversation{older, newer}}

	s, _, _ := newTestSession(store, &fakeCompleter{}, nil)
	require.NoError(t, s.Bootstrap(context.Background()))

	assert.Equal(t, newer.ID, s.SelectedID())
	assert.Equal(t, newer.ID, s.Self().SelectedConversationID)
}

func TestNewConversation_InheritsSettings(t *testing.T) {
	store := &fakeStore{}
	s, _, _ := newTestSession(store, &fakeCompleter{}, nil)
	prev := seedConversation(s)
	s.mu.Lock()
	prev.Model = "gpt-4-32k"
	prev.Temperature = 0.3
	s.mu.Unlock()

	conv, err := s.NewConversation(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "gpt-4-32k", conv.Model)
	assert.Equal(t, 0.3, conv.Temperature)
	assert.Equal(t, model.DefaultName, conv.Name)
	assert.Equal(t, conv.ID, s.SelectedID())
	require.Len(t, store.convInserts, 1)
	assert.Equal(t, conv.ID, store.convInserts[0].ID)
}

func TestSelect_UpdatesPresenceAndCache(t *testing.T) {
	s, cache, _ := newTestSession(&fakeStore{}, &fakeCompleter{}, nil)
	first := seedConversation(s)
	second := model.NewConversation("room-1", "gpt-4", 1.0)
	s.mu.Lock()
	s.conversations.Add(second)
	s.mu.Unlock()

	self, err := s.Select(second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, self.SelectedConversationID)
	require.NotEmpty(t, cache.selected)
	assert.Equal(t, second.ID, cache.selected[len(cache.selected)-1])

	_, err = s.Select("nope")
	assert.ErrorIs(t, err, ErrNoConversation)
	_ = first
}

func TestUpdateSelf(t *testing.T) {
	s, _, _ := newTestSession(&fakeStore{}, &fakeCompleter{}, nil)
	conv := seedConversation(s)

	s.UpdateSelf("grace", "#ED64A6")

	self := s.Self()
	assert.Equal(t, "grace", self.Name)
	assert.Equal(t, "#ED64A6", self.Color)
	assert.Equal(t, "sess-1", self.Key, "session key survives identity edits")
	assert.Equal(t, conv.ID, self.SelectedConversationID)

	// Empty values keep the current identity.
	s.UpdateSelf("", "")
	self = s.Self()
	assert.Equal(t, "grace", self.Name)
	assert.Equal(t, "#ED64A6", self.Color)
}

func TestDelete_SoftDeletesRemotely(t *testing.T) {
	store := &fakeStore{}
	s, _, _ := newTestSession(store, &fakeCompleter{}, nil)
	conv := seedConversation(s)

	require.NoError(t, s.Delete(context.Background(), conv.ID))

	assert.Empty(t, s.Conversations())
	assert.Equal(t, "", s.SelectedID())
	require.Len(t, store.softDeletes, 1)
	assert.Equal(t, conv.ID, store.softDeletes[0])
}
