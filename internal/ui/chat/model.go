// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mootlabs/moot-tui/internal/engine"
	"github.com/mootlabs/moot-tui/internal/scroll"
	"github.com/mootlabs/moot-tui/internal/ui/components"
	"github.com/mootlabs/moot-tui/internal/ui/styles"
)

// Layout constants.
const (
	sidebarWidth = 26
	inputLimit   = 4096
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
//
// All room state lives in the engine session; the model only holds
// presentation state and reads session snapshots on every update.
type Model struct {
	// Engine
	session *engine.Session
	sub     *engine.Subscriber // nil when running without realtime

	// Styling
	theme *styles.Theme

	// Dimensions
	width  int
	height int
	ready  bool

	// UI components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	// Autoscroll
	scrollCtl *scroll.Controller

	// Key bindings
	keyMap KeyMap

	// Toasts
	toasts *components.ToastManager

	// Pending edit-and-resend: how many trailing messages the next send
	// replaces. Zero for a normal send.
	editDeleteCount int

	// Help overlay
	showHelp bool
}

// New creates the chat model. sub may be nil when the realtime
// connection is unavailable; the view then runs without presence.
func New(theme *styles.Theme, session *engine.Session, sub *engine.Subscriber) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message..."
	ti.CharLimit = inputLimit
	ti.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	sp.Style = theme.Spinner

	return Model{
		session:   session,
		sub:       sub,
		theme:     theme,
		viewport:  vp,
		input:     ti,
		spinner:   sp,
		scrollCtl: scroll.NewController(),
		keyMap:    DefaultKeyMap(),
		toasts:    components.NewToastManager(),
	}
}

// Init starts the background ticks.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		components.ToastTickCmd(),
	)
}

// turnInFlight reports whether a send/regenerate turn is running.
func (m *Model) turnInFlight() bool {
	switch m.session.TurnState() {
	case engine.TurnCommitting, engine.TurnAwaitingStream, engine.TurnStreaming, engine.TurnFinalizing:
		return true
	}
	return false
}
