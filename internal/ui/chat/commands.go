// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file holds the command creators that run session operations on
// the Bubble Tea command goroutine pool. Each command performs one
// session call and reports the result as an opDoneMsg; streaming
// progress itself arrives separately through SessionUpdatedMsg.
package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mootlabs/moot-tui/internal/engine"
	"github.com/mootlabs/moot-tui/internal/ui/components"
)

// opTimeout bounds non-streaming store operations.
const opTimeout = 15 * time.Second

// sendCmd runs a full send turn: commit, stream, finalize. The turn can
// run for as long as the completion streams, so no timeout is applied;
// Esc aborts it through the stop flag instead.
func (m *Model) sendCmd(content string, deleteCount int) tea.Cmd {
	session := m.session
	return func() tea.Msg {
		return opDoneMsg{err: session.Send(context.Background(), content, deleteCount)}
	}
}

// regenerateCmd re-runs the last exchange.
func (m *Model) regenerateCmd() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		return opDoneMsg{err: session.Regenerate(context.Background())}
	}
}

// newConversationCmd creates and selects a fresh conversation.
func (m *Model) newConversationCmd() tea.Cmd {
	session := m.session
	sub := m.sub
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		_, err := session.NewConversation(ctx)
		if err == nil && sub != nil {
			sub.TrackSelf()
		}
		return opDoneMsg{err: err}
	}
}

// selectConversationCmd switches to another conversation and broadcasts
// the new selection over presence.
func (m *Model) selectConversationCmd(id string) tea.Cmd {
	session := m.session
	sub := m.sub
	return func() tea.Msg {
		_, err := session.Select(id)
		if err == nil && sub != nil {
			sub.TrackSelf()
		}
		return opDoneMsg{err: err}
	}
}

// deleteConversationCmd soft-deletes the selected conversation.
func (m *Model) deleteConversationCmd(id string) tea.Cmd {
	session := m.session
	sub := m.sub
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		err := session.Delete(ctx, id)
		if err == nil && sub != nil {
			sub.TrackSelf()
		}
		return opDoneMsg{err: err}
	}
}

// clearMessagesCmd wipes the selected conversation's transcript.
func (m *Model) clearMessagesCmd() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return opDoneMsg{err: session.ClearMessages(ctx)}
	}
}

// streamTickCmd keeps the viewport following new fragments while a
// turn is in flight.
func streamTickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return streamTickMsg{Time: t}
	})
}

// toastKind maps an engine toast level to a component kind.
func toastKind(level engine.ToastLevel) components.ToastKind {
	switch level {
	case engine.ToastError:
		return components.ToastKindError
	case engine.ToastPersistent:
		return components.ToastKindPersistent
	default:
		return components.ToastKindInfo
	}
}
