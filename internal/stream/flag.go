// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream reads streaming completion bodies as text fragments.
package stream

import "sync/atomic"

// StopFlag is a cooperative abort signal shared between the UI and an
// in-flight stream read. The reader polls it between fragments, so a stop
// takes effect at the next fragment boundary and never mid-fragment.
//
// One flag serves a whole room session: it is raised by the stop key and
// cleared when the next turn starts.
type StopFlag struct {
	v atomic.Bool
}

// NewStopFlag creates a cleared flag.
func NewStopFlag() *StopFlag {
	return &StopFlag{}
}

// Set raises the flag.
func (f *StopFlag) Set() {
	f.v.Store(true)
}

// Clear lowers the flag.
func (f *StopFlag) Clear() {
	f.v.Store(false)
}

// IsSet reports whether the flag is raised.
func (f *StopFlag) IsSet() bool {
	return f.v.Load()
}
