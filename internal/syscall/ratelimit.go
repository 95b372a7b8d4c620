// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package syscall

import (
	"sync"
	"time"

	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

const (
	// rateWindow and rateBudget bound sys-calls per plugin: 300 calls per
	// rolling 60-second window, reset lazily on the next call after expiry.
	rateWindow = time.Minute
	rateBudget = 300
)

type rateCounter struct {
	windowStart time.Time
	count       int
}

// RateLimiter tracks per-plugin sys-call budgets.
type RateLimiter struct {
	mu       sync.Mutex
	counters map[string]*rateCounter
	now      func() time.Time
}

// NewRateLimiter creates an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		counters: make(map[string]*rateCounter),
		now:      time.Now,
	}
}

// Allow records one call for pluginID and returns SYSCALL_RATE_LIMITED when
// the budget is exhausted.
func (l *RateLimiter) Allow(pluginID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[pluginID]
	if !ok || now.Sub(c.windowStart) >= rateWindow {
		c = &rateCounter{windowStart: now}
		l.counters[pluginID] = c
	}

	c.count++
	if c.count > rateBudget {
		return frontclawerr.New(
			frontclawerr.CodeSyscallRateLimited,
			"plugin exceeded the sys-call budget",
			frontclawerr.FieldPlugin(pluginID),
			frontclawerr.Field("budget", rateBudget),
		)
	}
	return nil
}
