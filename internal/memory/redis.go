// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package memory

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// Compile-time interface check.
var _ Service = (*Redis)(nil)

// scanBatch is the COUNT hint per SCAN page.
const scanBatch = 200

// Redis is the remote backend. Get/Set are atomic; List walks the key
// space with cursor-paginated SCAN.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "redis get")
	}
	return value, true, nil
}

func (s *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return frontclawerr.Wrap(err, frontclawerr.CodeInternal, "redis set")
	}
	return nil
}

func (s *Redis) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return frontclawerr.Wrap(err, frontclawerr.CodeInternal, "redis del")
	}
	return nil
}

func (s *Redis) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	match := prefix + "*"

	var keys []string
	var cursor uint64
	for {
		page, next, err := s.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "redis scan")
		}
		keys = append(keys, page...)
		if limit > 0 && len(keys) >= limit {
			return keys[:limit], nil
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (s *Redis) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "redis ttl")
	}
	// go-redis returns -2 for a missing key and -1 for no expiry.
	if ttl < 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}
