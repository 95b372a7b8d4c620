// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package memory_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontclaw/frontclaw/internal/memory"
	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func TestSecureRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := memory.NewInProc()
	secure, err := memory.NewSecure(inner, testKey(1), nil)
	require.NoError(t, err)

	require.NoError(t, secure.Set(ctx, "p:k", `{"name":"ada"}`, 0))

	value, ok, err := secure.Get(ctx, "p:k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"name":"ada"}`, value)

	// The inner store must hold the envelope, not the plaintext.
	raw, ok, err := inner.Get(ctx, "p:k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, raw, "ada")

	var env struct {
		V    int    `json:"v"`
		IV   string `json:"iv"`
		Tag  string `json:"tag"`
		CT   string `json:"ct"`
		HMAC string `json:"hmac"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, 1, env.V)
	assert.NotEmpty(t, env.IV)
	assert.NotEmpty(t, env.HMAC)
}

func TestSecureSignatureMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := memory.NewInProc()
	secure, err := memory.NewSecure(inner, testKey(1), nil)
	require.NoError(t, err)

	require.NoError(t, secure.Set(ctx, "k", "secret", 0))

	// Tamper with the stored ciphertext.
	raw, _, err := inner.Get(ctx, "k")
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	env["ct"] = "dGFtcGVyZWQ="
	tampered, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, inner.Set(ctx, "k", string(tampered), 0))

	_, _, err = secure.Get(ctx, "k")
	require.Error(t, err)
	assert.Equal(t, frontclawerr.CodeSignatureMismatch, frontclawerr.CodeOf(err))
}

func TestSecureSeparateSigningKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := memory.NewInProc()
	writer, err := memory.NewSecure(inner, testKey(1), testKey(2))
	require.NoError(t, err)
	require.NoError(t, writer.Set(ctx, "k", "v", 0))

	// Same encryption key but wrong signing key must fail verification.
	reader, err := memory.NewSecure(inner, testKey(1), testKey(3))
	require.NoError(t, err)
	_, _, err = reader.Get(ctx, "k")
	require.Error(t, err)
	assert.Equal(t, frontclawerr.CodeSignatureMismatch, frontclawerr.CodeOf(err))

	// Matching signing key reads fine.
	okReader, err := memory.NewSecure(inner, testKey(1), testKey(2))
	require.NoError(t, err)
	value, ok, err := okReader.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", value)
}

func TestSecurePassThrough(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	secure, err := memory.NewSecure(memory.NewInProc(), testKey(1), nil)
	require.NoError(t, err)

	require.NoError(t, secure.Set(ctx, "a:1", "x", time.Minute))
	require.NoError(t, secure.Set(ctx, "a:2", "y", 0))

	keys, err := secure.List(ctx, "a:", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "a:2"}, keys)

	ttl, ok, err := secure.TTL(ctx, "a:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, secure.Delete(ctx, "a:1"))
	_, ok, err = secure.Get(ctx, "a:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSecureRejectsShortKey(t *testing.T) {
	t.Parallel()

	_, err := memory.NewSecure(memory.NewInProc(), []byte("short"), nil)
	require.Error(t, err)
}
