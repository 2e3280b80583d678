// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package scroll decides when the chat viewport follows new content.
//
// Autoscroll is driven by a bottom sentinel: while the reader is at the
// bottom of the transcript, new fragments pull the view down; once they
// scroll up to read something, the view stays put until they return.
// Scroll requests themselves are throttled so a fast stream does not
// repaint the viewport on every fragment.
package scroll

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ThrottleInterval is the minimum spacing between scroll requests.
const ThrottleInterval = 250 * time.Millisecond

// Controller tracks bottom-of-transcript state and throttles scrolls.
type Controller struct {
	mu       sync.Mutex
	atBottom bool
	limiter  *rate.Limiter
}

// NewController creates a controller that starts at the bottom.
func NewController() *Controller {
	return &Controller{
		atBottom: true,
		limiter:  rate.NewLimiter(rate.Every(ThrottleInterval), 1),
	}
}

// SetAtBottom records whether the bottom sentinel is visible. Called by
// the viewport on every scroll position change.
func (c *Controller) SetAtBottom(visible bool) {
	c.mu.Lock()
	c.atBottom = visible
	c.mu.Unlock()
}

// AtBottom reports whether autoscroll is currently enabled.
func (c *Controller) AtBottom() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.atBottom
}

// ShouldScroll reports whether a scroll request should fire now: the
// reader is at the bottom and the throttle window has elapsed.
func (c *Controller) ShouldScroll() bool {
	return c.shouldScrollAt(time.Now())
}

func (c *Controller) shouldScrollAt(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.atBottom {
		return false
	}
	return c.limiter.AllowN(now, 1)
}

// Jump re-enables autoscroll unconditionally; the explicit jump-to-bottom
// key bypasses the throttle.
func (c *Controller) Jump() {
	c.mu.Lock()
	c.atBottom = true
	c.mu.Unlock()
}
