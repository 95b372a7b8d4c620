// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package memory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontclaw/frontclaw/internal/memory"
)

func TestInProcBasics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.NewInProc()

	require.NoError(t, store.Set(ctx, "a:1", "one", 0))
	require.NoError(t, store.Set(ctx, "a:2", "two", 0))
	require.NoError(t, store.Set(ctx, "b:1", "three", 0))

	value, ok, err := store.Get(ctx, "a:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "one", value)

	_, ok, err = store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := store.List(ctx, "a:", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "a:2"}, keys)

	keys, err = store.List(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	require.NoError(t, store.Delete(ctx, "a:1"))
	_, ok, err = store.Get(ctx, "a:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInProcTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.NewInProc()

	require.NoError(t, store.Set(ctx, "short", "v", 30*time.Millisecond))
	require.NoError(t, store.Set(ctx, "forever", "v", 0))

	ttl, ok, err := store.TTL(ctx, "short")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, ttl, time.Duration(0))

	_, ok, err = store.TTL(ctx, "forever")
	require.NoError(t, err)
	assert.False(t, ok)

	time.Sleep(50 * time.Millisecond)

	_, ok, err = store.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok, "expired key must be evicted on read")

	keys, err := store.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"forever"}, keys)
}

func newRedisStore(t *testing.T) (*memory.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return memory.NewRedis(client), mr
}

func TestRedisBasics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, mr := newRedisStore(t)

	require.NoError(t, store.Set(ctx, "p:x", "1", 0))
	require.NoError(t, store.Set(ctx, "p:y", "2", time.Minute))

	value, ok, err := store.Get(ctx, "p:x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", value)

	_, ok, err = store.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, ok, err := store.TTL(ctx, "p:y")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, ttl, time.Duration(0))

	_, ok, err = store.TTL(ctx, "p:x")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Delete(ctx, "p:x"))
	_, ok, err = store.Get(ctx, "p:x")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)
	_, ok, err = store.Get(ctx, "p:y")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisListPaginates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, _ := newRedisStore(t)

	// More keys than one SCAN batch to exercise cursor pagination.
	for i := 0; i < 450; i++ {
		require.NoError(t, store.Set(ctx, fmt.Sprintf("scan:%03d", i), "v", 0))
	}
	require.NoError(t, store.Set(ctx, "other:1", "v", 0))

	keys, err := store.List(ctx, "scan:", 0)
	require.NoError(t, err)
	assert.Len(t, keys, 450)

	keys, err = store.List(ctx, "scan:", 10)
	require.NoError(t, err)
	assert.Len(t, keys, 10)
}
