// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"
	"time"

	"github.com/mootlabs/moot-tui/internal/ui/styles"
)

func TestToastManager_AddAndTick(t *testing.T) {
	m := NewToastManager()

	m.Add(ToastKindInfo, "saved")
	m.Add(ToastKindError, "request failed")

	toasts := m.Toasts()
	if len(toasts) != 2 {
		t.Fatalf("len = %d, want 2", len(toasts))
	}
	// Newest first.
	if toasts[0].Message != "request failed" {
		t.Errorf("toasts[0] = %q, want request failed", toasts[0].Message)
	}

	// Expire the info toast manually and tick.
	m.mu.Lock()
	m.toasts[1].CreatedAt = time.Now().Add(-time.Minute)
	m.mu.Unlock()

	remaining := m.Tick()
	if len(remaining) != 1 || remaining[0].Message != "request failed" {
		t.Errorf("after tick: %+v", remaining)
	}
}

func TestToastManager_PersistentNeverExpires(t *testing.T) {
	m := NewToastManager()
	m.Add(ToastKindPersistent, "live updates lost")

	m.mu.Lock()
	m.toasts[0].CreatedAt = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	if got := m.Tick(); len(got) != 1 {
		t.Fatalf("persistent toast expired: %+v", got)
	}

	// Explicit dismissal removes it.
	m.Dismiss()
	if m.HasToasts() {
		t.Error("Dismiss() should remove the persistent toast")
	}
}

func TestToastManager_CapsStack(t *testing.T) {
	m := NewToastManager()
	for i := 0; i < 10; i++ {
		m.Add(ToastKindInfo, "toast")
	}
	if got := len(m.Toasts()); got != 5 {
		t.Errorf("len = %d, want 5", got)
	}
}

func TestRenderToastStack(t *testing.T) {
	theme := styles.NewTheme()
	m := NewToastManager()
	m.Add(ToastKindPersistent, "live updates lost")
	m.Add(ToastKindInfo, "copied")

	out := RenderToastStack(theme, m.Toasts(), 80)
	if !strings.Contains(out, "live updates lost") || !strings.Contains(out, "copied") {
		t.Errorf("stack output missing toasts: %q", out)
	}
	if !strings.Contains(out, "[esc] dismiss") {
		t.Errorf("persistent toast missing dismiss hint: %q", out)
	}

	if RenderToastStack(theme, nil, 80) != "" {
		t.Error("empty stack should render empty string")
	}
}
