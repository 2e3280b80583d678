// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// The view is a thin Bubble Tea shell over the engine session: all room
// state (conversations, roster, turn state) lives in the session, and
// the model re-reads snapshots whenever a SessionUpdatedMsg arrives.
// Engine goroutines never touch the model; they post messages through
// tea.Program.Send.
//
// # Layout
//
//	header      room name, selected model
//	sidebar     conversation list and presence roster
//	viewport    transcript of the selected conversation
//	input       message input with edit-and-resend support
//	status bar  turn state and shortcuts
//
// # Autoscroll
//
// The transcript follows new fragments only while the reader is at the
// bottom, throttled through scroll.Controller so a fast stream does not
// repaint on every fragment. Paging up detaches the view; End or a new
// send re-attaches it.
package chat
