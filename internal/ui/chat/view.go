// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mootlabs/moot-tui/internal/engine"
	"github.com/mootlabs/moot-tui/internal/model"
	"github.com/mootlabs/moot-tui/internal/ui/components"
	"github.com/mootlabs/moot-tui/internal/util"
)

// View renders the full chat screen.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	header := m.renderHeader()
	body := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderSidebar(),
		m.viewport.View(),
	)
	input := m.renderInput()
	status := m.renderStatusBar()

	sections := []string{header, body}
	if stack := m.renderToasts(); stack != "" {
		sections = append(sections, stack)
	}
	if m.showHelp {
		sections = append(sections, m.renderHelp())
	}
	sections = append(sections, input, status)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	room := m.session.Room()
	title := m.theme.HeaderTitle.Render("moot")
	where := m.theme.HeaderRoom.Render(" " + room.Name)

	var right string
	if conv := m.session.Selected(); conv != nil {
		info := model.GetModelInfo(conv.Model)
		right = m.theme.HeaderModel.Render(
			fmt.Sprintf("%s  t=%.1f", info.Name, conv.Temperature))
	}

	left := title + where
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(
		left + strings.Repeat(" ", gap) + right)
}

// =============================================================================
// SIDEBAR
// =============================================================================

func (m Model) renderSidebar() string {
	var b strings.Builder
	innerWidth := sidebarWidth - 3

	b.WriteString(m.theme.SidebarTitle.Render("Conversations"))
	b.WriteString("\n")

	selected := m.session.SelectedID()
	for _, conv := range m.session.Conversations() {
		name := conv.Name
		if conv.Loading {
			name = m.spinner.View() + " " + name
		}
		line := util.TruncateWidth(name, innerWidth-2)
		if conv.ID == selected {
			b.WriteString(m.theme.ConversationSelected.Render("> " + line))
		} else {
			b.WriteString(m.theme.ConversationItem.Render("  " + line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.theme.SidebarTitle.Render("Online"))
	b.WriteString("\n")

	roster := m.session.Roster()
	for _, p := range roster.All() {
		marker := m.theme.PresenceStyle(p.Color).Render("*")
		name := util.TruncateWidth(p.Name, innerWidth-4)
		entry := marker + " " + m.theme.RosterEntry.Render(name)
		if selected != "" && p.SelectedConversationID == selected {
			entry += m.theme.HeaderModel.Render(" <")
		}
		b.WriteString(entry)
		b.WriteString("\n")
	}

	return m.theme.Sidebar.
		Width(sidebarWidth).
		Height(m.viewport.Height).
		Render(b.String())
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// refreshTranscript rebuilds the viewport content from the selected
// conversation snapshot.
func (m *Model) refreshTranscript() {
	conv := m.session.Selected()
	if conv == nil {
		m.viewport.SetContent(m.theme.SystemNotice.Render(
			"No conversation yet. Type a message to start one."))
		return
	}

	// A not-done assistant message only animates while someone is
	// actually generating; a stopped answer keeps its partial text
	// without a spinner.
	live := m.turnInFlight() || conv.Loading

	var b strings.Builder
	for i, msg := range conv.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg, live))
		b.WriteString("\n")
	}

	if conv.IsEmpty() {
		b.WriteString(m.theme.SystemNotice.Render("Say hello."))
	}

	m.viewport.SetContent(b.String())
}

func (m Model) renderMessage(msg *model.Message, live bool) string {
	var label string
	switch msg.Role {
	case model.RoleUser:
		name := msg.SenderName
		if name == "" {
			name = msg.Role.DisplayName()
		}
		label = m.theme.UserLabel.Render(name)
	default:
		label = m.theme.AssistantLabel.Render(msg.Role.DisplayName())
	}

	stamp := m.theme.Timestamp.Render(msg.CreatedAt.Local().Format("15:04"))

	content := msg.Content
	if msg.Role == model.RoleAssistant && !msg.Done && live {
		content += " " + m.spinner.View()
	}

	body := m.theme.MessageBody.
		Width(m.viewport.Width - 2).
		Render(content)

	return label + " " + stamp + "\n" + body
}

// =============================================================================
// INPUT, STATUS, TOASTS
// =============================================================================

func (m Model) renderInput() string {
	var hint string
	if m.editDeleteCount > 0 {
		hint = "  " + m.theme.StatusWarn.Render("[editing]")
	}
	return m.theme.InputContainer.
		Width(m.width).
		Render(m.input.View() + hint)
}

func (m Model) renderStatusBar() string {
	var state string
	switch m.session.TurnState() {
	case engine.TurnCommitting, engine.TurnAwaitingStream:
		state = m.theme.StatusWarn.Render(m.spinner.View() + " waiting")
	case engine.TurnStreaming, engine.TurnFinalizing:
		state = m.theme.StatusWarn.Render(m.spinner.View() + " responding")
	case engine.TurnFailed:
		state = m.theme.StatusError.Render("failed")
	case engine.TurnAborted:
		state = m.theme.StatusWarn.Render("stopped")
	default:
		state = m.theme.StatusOK.Render("ready")
	}

	var parts []string
	for _, binding := range m.keyMap.ShortHelp() {
		help := binding.Help()
		parts = append(parts,
			m.theme.ShortcutKey.Render(help.Key)+" "+m.theme.ShortcutDesc.Render(help.Desc))
	}
	shortcuts := strings.Join(parts, "  ")

	gap := m.width - lipgloss.Width(state) - lipgloss.Width(shortcuts) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.StatusBar.Width(m.width).Render(
		state + strings.Repeat(" ", gap) + shortcuts)
}

func (m Model) renderToasts() string {
	return components.RenderToastStack(m.theme, m.toasts.Toasts(), m.width)
}

func (m Model) renderHelp() string {
	var b strings.Builder
	for _, group := range m.keyMap.FullHelp() {
		var parts []string
		for _, binding := range group {
			help := binding.Help()
			parts = append(parts,
				m.theme.ShortcutKey.Render(help.Key)+" "+m.theme.ShortcutDesc.Render(help.Desc))
		}
		b.WriteString("  " + strings.Join(parts, "   ") + "\n")
	}
	return b.String()
}
