// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file defines the Bubble Tea messages that cross from the sync
// engine's goroutines into the UI loop. The engine never touches the
// model directly; it posts these messages through tea.Program.Send.
package chat

import (
	"time"

	"github.com/mootlabs/moot-tui/internal/engine"
)

// =============================================================================
// ENGINE MESSAGES
// =============================================================================

// SessionUpdatedMsg signals that session state changed and the view
// should re-read its snapshots. Wired to engine.Config.OnUpdate.
type SessionUpdatedMsg struct{}

// SessionToastMsg surfaces an engine notification. Wired to
// engine.Config.OnToast.
type SessionToastMsg struct {
	Level engine.ToastLevel
	Text  string
}

// =============================================================================
// INTERNAL MESSAGES
// =============================================================================

// opDoneMsg reports the result of a session operation started from a
// key binding (send, regenerate, delete, ...).
type opDoneMsg struct {
	err error
}

// streamTickMsg drives the throttled viewport follow during streaming.
type streamTickMsg struct {
	Time time.Time
}
