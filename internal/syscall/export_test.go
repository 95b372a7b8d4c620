// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package syscall

import "time"

// AdvanceClock shifts the limiter's clock forward for window-reset tests.
func AdvanceClock(l *RateLimiter, d time.Duration) {
	base := l.now
	l.now = func() time.Time { return base().Add(d) }
}
