// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontclaw/frontclaw/internal/provider"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Chat(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	ch := make(chan provider.ChatEvent)
	close(ch)
	return ch, nil
}
func (s *stubProvider) Close() error { return nil }

func TestRegistryRoute(t *testing.T) {
	t.Parallel()

	r := provider.NewRegistry("anthropic/claude-sonnet-4-5")
	require.NoError(t, r.RegisterProvider("anthropic", &stubProvider{name: "anthropic"}))
	require.NoError(t, r.RegisterProvider("openai", &stubProvider{name: "openai"}))

	p, model, err := r.Route(context.Background(), "openai/gpt-4.1")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "gpt-4.1", model)

	// Empty and "default" fall back to the configured default.
	p, model, err = r.Route(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())
	assert.Equal(t, "claude-sonnet-4-5", model)

	p, model, err = r.Route(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())
	assert.Equal(t, "claude-sonnet-4-5", model)

	_, _, err = r.Route(context.Background(), "mistral/large")
	require.Error(t, err)

	_, _, err = r.Route(context.Background(), "no-slash")
	require.Error(t, err)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	r := provider.NewRegistry("anthropic/claude-sonnet-4-5")
	require.NoError(t, r.RegisterProvider("anthropic", &stubProvider{name: "anthropic"}))
	require.Error(t, r.RegisterProvider("anthropic", &stubProvider{name: "anthropic"}))
}
