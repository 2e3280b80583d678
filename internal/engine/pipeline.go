// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine implements the room session: the shared state store,
// the optimistic send pipeline, the remote change subscriber, and the
// presence tracker.
package engine

import (
	"context"
	"errors"
	"log"

	"github.com/mootlabs/moot-tui/internal/api"
	"github.com/mootlabs/moot-tui/internal/model"
	"github.com/mootlabs/moot-tui/internal/stream"
)

// =============================================================================
// TURN STATE MACHINE
// =============================================================================

// TurnState tracks the send pipeline through a turn. Exactly one turn
// runs at a time; Send rejects overlap with ErrTurnInFlight.
//
//	Idle → Committing → AwaitingStream → Streaming → Finalizing → Idle
//
// Aborted and Failed are resting states reached from any in-flight
// state; the next Send leaves them.
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnCommitting
	TurnAwaitingStream
	TurnStreaming
	TurnFinalizing
	TurnAborted
	TurnFailed
)

// String returns the state name.
func (t TurnState) String() string {
	switch t {
	case TurnIdle:
		return "idle"
	case TurnCommitting:
		return "committing"
	case TurnAwaitingStream:
		return "awaiting_stream"
	case TurnStreaming:
		return "streaming"
	case TurnFinalizing:
		return "finalizing"
	case TurnAborted:
		return "aborted"
	case TurnFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// canStartTurn reports whether a new Send may begin from this state.
func (t TurnState) canStartTurn() bool {
	return t == TurnIdle || t == TurnAborted || t == TurnFailed
}

func (s *Session) setTurn(t TurnState) {
	s.mu.Lock()
	s.turnState = t
	s.mu.Unlock()
	s.notify()
}

// =============================================================================
// SEND
// =============================================================================

// Send runs one optimistic turn: commit the user message locally, mirror
// it to the store, stream the completion into a provisional assistant
// message, and finalize. deleteCount > 0 drops that many trailing
// messages first (editing an earlier message, regenerating).
//
// Blocks until the turn settles; the UI runs it in a tea.Cmd.
func (s *Session) Send(ctx context.Context, content string, deleteCount int) error {
	s.mu.Lock()
	if !s.turnState.canStartTurn() {
		s.mu.Unlock()
		return ErrTurnInFlight
	}
	conv := s.conversations.Get(s.selectedID)
	if conv == nil {
		s.mu.Unlock()
		return ErrNoConversation
	}

	s.turnState = TurnCommitting
	s.stop.Clear()
	s.turnUserMsgID = ""
	s.turnAssistantMsgID = ""

	if deleteCount > 0 {
		conv.TruncateLast(deleteCount)
	}
	userMsg := model.NewUserMessage(conv.ID, content, s.self.Name)
	conv.Append(userMsg)
	conv.DeriveName()
	conv.Loading = true
	req := s.buildRequest(conv)
	convSnapshot := conv.Clone()
	s.mu.Unlock()
	s.notify()

	// Remote writes are best-effort: the turn continues on failure and
	// other participants catch up from later writes.
	if stored, err := s.store.UpsertMessage(ctx, userMsg.Clone()); err != nil {
		log.Printf("engine: persist user message: %v", err)
	} else if stored.ID != "" {
		s.mu.Lock()
		userMsg.ID = stored.ID
		s.turnUserMsgID = stored.ID
		s.mu.Unlock()
	}
	if err := s.store.UpdateConversation(ctx, convSnapshot); err != nil {
		log.Printf("engine: mirror conversation: %v", err)
	}

	if len(s.plugins) > 0 {
		return s.runPluginTurn(ctx, req)
	}
	return s.runStreamTurn(ctx, req)
}

// Regenerate re-runs the last user message, dropping it and everything
// after it before the resend.
func (s *Session) Regenerate(ctx context.Context) error {
	s.mu.Lock()
	conv := s.conversations.Get(s.selectedID)
	if conv == nil {
		s.mu.Unlock()
		return ErrNoConversation
	}
	lastUser := conv.LastUserMessage()
	if lastUser == nil {
		s.mu.Unlock()
		return ErrNoConversation
	}
	content := lastUser.Content
	deleteCount := 0
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		deleteCount++
		if conv.Messages[i] == lastUser {
			break
		}
	}
	s.mu.Unlock()

	return s.Send(ctx, content, deleteCount)
}

// Stop raises the shared abort flag. The in-flight stream notices at the
// next fragment boundary and finalizes with the partial content.
func (s *Session) Stop() {
	s.stop.Set()
}

// =============================================================================
// STREAMING TURN
// =============================================================================

func (s *Session) runStreamTurn(ctx context.Context, req *api.ChatRequest) error {
	s.setTurn(TurnAwaitingStream)

	body, err := s.completer.Stream(ctx, req)
	if err != nil {
		return s.failTurn(err)
	}

	reader := stream.NewReader(body, s.stop)
	acc := stream.NewAccumulator()
	var assistant *model.Message

	streamErr := reader.Process(ctx, func(fragment string) {
		full := acc.Add(fragment)

		s.mu.Lock()
		conv := s.conversations.Get(s.selectedID)
		if conv == nil {
			s.mu.Unlock()
			return
		}
		if assistant == nil {
			assistant = model.NewAssistantMessage(conv.ID, full)
			conv.Append(assistant)
			s.turnState = TurnStreaming
		} else {
			conv.ReplaceLast(full)
		}
		snapshot := assistant.Clone()
		s.mu.Unlock()
		s.notify()

		// Mirror every fragment so other participants stream along.
		if stored, err := s.store.UpsertMessage(ctx, snapshot); err != nil {
			log.Printf("engine: mirror fragment: %v", err)
		} else if assistant.ID == "" && stored.ID != "" {
			s.mu.Lock()
			assistant.ID = stored.ID
			s.turnAssistantMsgID = stored.ID
			s.mu.Unlock()
		}
	})

	switch {
	case streamErr == nil:
		return s.finalizeTurn(ctx, assistant, TurnIdle)
	case errors.Is(streamErr, stream.ErrAborted):
		// The partial content stays in the log, but the answer was cut
		// short, so it is never marked done.
		return s.finalizeTurn(ctx, assistant, TurnAborted)
	default:
		s.discardProvisional(assistant)
		return s.failTurn(streamErr)
	}
}

// =============================================================================
// PLUGIN TURN
// =============================================================================

func (s *Session) runPluginTurn(ctx context.Context, req *api.ChatRequest) error {
	s.setTurn(TurnAwaitingStream)

	answer, err := s.completer.AskPlugin(ctx, &api.PluginRequest{
		ChatRequest: *req,
		PluginKeys:  s.plugins,
	})
	if err != nil {
		return s.failTurn(err)
	}

	s.mu.Lock()
	conv := s.conversations.Get(s.selectedID)
	if conv == nil {
		s.mu.Unlock()
		return s.failTurn(ErrNoConversation)
	}
	assistant := model.NewAssistantMessage(conv.ID, answer)
	conv.Append(assistant)
	s.turnState = TurnStreaming
	s.mu.Unlock()
	s.notify()

	return s.finalizeTurn(ctx, assistant, TurnIdle)
}

// =============================================================================
// TURN COMPLETION
// =============================================================================

// finalizeTurn mirrors the assistant's final row, caches the
// conversation, and clears the loading flag. A completed turn marks the
// message done; an aborted one leaves Done false so every participant
// sees the answer was cut short.
func (s *Session) finalizeTurn(ctx context.Context, assistant *model.Message, resting TurnState) error {
	s.setTurn(TurnFinalizing)

	s.mu.Lock()
	conv := s.conversations.Get(s.selectedID)
	var msgSnapshot *model.Message
	var convSnapshot *model.Conversation
	if assistant != nil {
		if resting != TurnAborted {
			assistant.Done = true
		}
		msgSnapshot = assistant.Clone()
	}
	if conv != nil {
		conv.Loading = false
		convSnapshot = conv.Clone()
	}
	s.mu.Unlock()
	s.notify()

	if msgSnapshot != nil {
		if stored, err := s.store.UpsertMessage(ctx, msgSnapshot); err != nil {
			log.Printf("engine: finalize message: %v", err)
		} else if assistant.ID == "" && stored.ID != "" {
			s.mu.Lock()
			assistant.ID = stored.ID
			s.turnAssistantMsgID = stored.ID
			s.mu.Unlock()
		}
	}
	if convSnapshot != nil {
		if err := s.store.SetConversationLoading(ctx, convSnapshot.ID, false); err != nil {
			log.Printf("engine: clear loading flag: %v", err)
		}
		if s.cache != nil {
			if err := s.cache.SaveConversation(convSnapshot); err != nil {
				log.Printf("engine: cache conversation: %v", err)
			}
		}
	}

	s.setTurn(resting)
	return nil
}

// discardProvisional removes a half-streamed assistant message after a
// fatal stream failure.
func (s *Session) discardProvisional(assistant *model.Message) {
	if assistant == nil {
		return
	}
	s.mu.Lock()
	conv := s.conversations.Get(s.selectedID)
	if conv != nil && conv.Last() == assistant {
		conv.TruncateLast(1)
	}
	s.mu.Unlock()
	s.notify()
}

// failTurn settles a turn that could not produce an answer. The user
// message stays in the log; loading clears everywhere.
func (s *Session) failTurn(err error) error {
	s.mu.Lock()
	conv := s.conversations.Get(s.selectedID)
	var convID string
	if conv != nil {
		conv.Loading = false
		convID = conv.ID
	}
	s.turnState = TurnFailed
	s.mu.Unlock()
	s.notify()

	if convID != "" {
		if perr := s.store.SetConversationLoading(context.Background(), convID, false); perr != nil {
			log.Printf("engine: clear loading flag: %v", perr)
		}
	}

	s.toast(ToastError, err.Error())
	log.Printf("engine: turn failed: %v", err)
	return err
}

// buildRequest snapshots a conversation into a completion request.
// Caller holds the session mutex.
func (s *Session) buildRequest(conv *model.Conversation) *api.ChatRequest {
	prompt := conv.Prompt
	if prompt == "" {
		prompt = s.prompt
	}
	temperature := conv.Temperature
	if temperature == 0 {
		temperature = model.DefaultTemperature
	}
	return &api.ChatRequest{
		Model:       model.GetModelInfo(conv.Model),
		Messages:    api.ToChatMessages(conv.Messages),
		Prompt:      prompt,
		Temperature: temperature,
	}
}
