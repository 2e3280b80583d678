// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mootlabs/moot-tui/internal/engine"
	"github.com/mootlabs/moot-tui/internal/ui/components"
)

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refreshTranscript()
		m.ready = true

	case tea.KeyMsg:
		model, cmd, handled := m.handleKey(msg)
		if handled {
			return model, cmd
		}
		// Unhandled keys go to the text input.
		var inputCmd tea.Cmd
		m.input, inputCmd = m.input.Update(msg)
		cmds = append(cmds, inputCmd)

	case SessionUpdatedMsg:
		m.refreshTranscript()
		if m.scrollCtl.ShouldScroll() {
			m.viewport.GotoBottom()
		}
		if m.turnInFlight() {
			cmds = append(cmds, streamTickCmd())
		}

	case SessionToastMsg:
		m.toasts.Add(toastKind(msg.Level), msg.Text)

	case streamTickMsg:
		// During a turn the engine posts SessionUpdatedMsg per fragment,
		// but the throttle may have swallowed the scroll. Catch up here.
		if m.turnInFlight() {
			if m.scrollCtl.ShouldScroll() {
				m.viewport.GotoBottom()
			}
			cmds = append(cmds, streamTickCmd())
		} else if m.scrollCtl.AtBottom() {
			m.viewport.GotoBottom()
		}

	case opDoneMsg:
		if msg.err != nil {
			m.handleOpError(msg.err)
		}

	case components.ToastTickMsg:
		m.toasts.Tick()
		cmds = append(cmds, components.ToastTickCmd())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleKey processes a key press. Returns handled=false for keys that
// should fall through to the text input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	k := m.keyMap

	switch {
	case key.Matches(msg, k.Quit):
		return m, tea.Quit, true

	case key.Matches(msg, k.Submit):
		content := strings.TrimSpace(m.input.Value())
		if content == "" {
			return m, nil, true
		}
		deleteCount := m.editDeleteCount
		m.editDeleteCount = 0
		m.input.Reset()
		m.scrollCtl.Jump()
		return m, m.sendCmd(content, deleteCount), true

	case key.Matches(msg, k.Stop):
		if m.turnInFlight() {
			m.session.Stop()
			return m, nil, true
		}
		if m.editDeleteCount > 0 {
			// Cancel a pending edit instead of dismissing toasts.
			m.editDeleteCount = 0
			m.input.Reset()
			return m, nil, true
		}
		m.toasts.Dismiss()
		return m, nil, true

	case key.Matches(msg, k.NewConv):
		return m, m.newConversationCmd(), true

	case key.Matches(msg, k.NextConv):
		return m.cycleConversation(1)

	case key.Matches(msg, k.PrevConv):
		return m.cycleConversation(-1)

	case key.Matches(msg, k.Delete):
		if id := m.session.SelectedID(); id != "" {
			return m, m.deleteConversationCmd(id), true
		}
		return m, nil, true

	case key.Matches(msg, k.Clear):
		return m, m.clearMessagesCmd(), true

	case key.Matches(msg, k.Retry):
		if m.turnInFlight() {
			return m, nil, true
		}
		m.scrollCtl.Jump()
		return m, m.regenerateCmd(), true

	case key.Matches(msg, k.EditLast):
		m.beginEditLast()
		return m, nil, true

	case key.Matches(msg, k.Help):
		m.showHelp = !m.showHelp
		return m, nil, true

	case key.Matches(msg, k.PageUp):
		m.viewport.ViewUp()
		m.scrollCtl.SetAtBottom(m.viewport.AtBottom())
		return m, nil, true

	case key.Matches(msg, k.PageDown):
		m.viewport.ViewDown()
		m.scrollCtl.SetAtBottom(m.viewport.AtBottom())
		return m, nil, true

	case key.Matches(msg, k.End):
		m.scrollCtl.Jump()
		m.viewport.GotoBottom()
		return m, nil, true
	}

	switch msg.String() {
	case "up":
		m.viewport.LineUp(1)
		m.scrollCtl.SetAtBottom(m.viewport.AtBottom())
		return m, nil, true
	case "down":
		m.viewport.LineDown(1)
		m.scrollCtl.SetAtBottom(m.viewport.AtBottom())
		return m, nil, true
	}

	return m, nil, false
}

// cycleConversation moves the selection forward or backward through the
// room's conversations.
func (m Model) cycleConversation(step int) (tea.Model, tea.Cmd, bool) {
	convs := m.session.Conversations()
	if len(convs) < 2 {
		return m, nil, true
	}

	selected := m.session.SelectedID()
	idx := 0
	for i, conv := range convs {
		if conv.ID == selected {
			idx = i
			break
		}
	}
	next := (idx + step + len(convs)) % len(convs)
	m.scrollCtl.Jump()
	return m, m.selectConversationCmd(convs[next].ID), true
}

// beginEditLast loads the last user message into the input and arms the
// delete count so the next send replaces the tail of the transcript.
func (m *Model) beginEditLast() {
	if m.turnInFlight() {
		return
	}
	conv := m.session.Selected()
	if conv == nil {
		return
	}
	last := conv.LastUserMessage()
	if last == nil {
		return
	}

	// The resend drops the edited message and everything after it.
	count := 0
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		count++
		if conv.Messages[i].ID == last.ID {
			break
		}
	}

	m.editDeleteCount = count
	m.input.SetValue(last.Content)
	m.input.CursorEnd()
}

// handleOpError surfaces operation failures the engine did not already
// toast about.
func (m *Model) handleOpError(err error) {
	switch {
	case errors.Is(err, engine.ErrTurnInFlight):
		m.toasts.Add(components.ToastKindInfo, "still responding, press esc to stop")
	case errors.Is(err, engine.ErrNoConversation):
		m.toasts.Add(components.ToastKindInfo, "no conversation selected")
	}
	// Turn failures already arrive as SessionToastMsg from the engine.
}

// resize recomputes component dimensions from the window size.
func (m *Model) resize() {
	mainWidth := m.width - sidebarWidth - 1
	if mainWidth < 20 {
		mainWidth = 20
	}

	// Header, input border, input line, status bar.
	viewHeight := m.height - 4
	if viewHeight < 3 {
		viewHeight = 3
	}

	m.viewport.Width = mainWidth
	m.viewport.Height = viewHeight
	m.input.Width = m.width - 6
}
