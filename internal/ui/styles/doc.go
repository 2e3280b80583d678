// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the moot TUI.
//
// All colors use Lip Gloss AdaptiveColor pairs so the interface reads
// well on both light and dark terminals. The Theme type bundles every
// styled component; the chat view receives one Theme and never builds
// styles inline.
//
// # Usage
//
//	theme := styles.NewTheme()
//	header := theme.HeaderTitle.Render("moot")
//
// Presence markers use each member's self-chosen hex color via
// Theme.PresenceStyle.
package styles
