// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

// Package memory is the namespaced key-value store plugins see through the
// memory.* sys-calls. Keys arrive already namespaced ("pluginId:key"); the
// service only stores, expires, and enumerates them. Two interchangeable
// backends exist (in-process map, redis) and an optional secure envelope
// wraps either.
package memory

import (
	"context"
	"time"
)

// Service is the capability surface of the memory store.
type Service interface {
	// Get returns the value and true, or ("", false) for a missing or
	// expired key.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// List returns keys with the given prefix ("" lists everything),
	// capped at limit when limit > 0.
	List(ctx context.Context, prefix string, limit int) ([]string, error)

	// TTL returns the remaining lifetime and true for a key with an
	// expiry, (0, false) for a missing key or one without expiry.
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
}
