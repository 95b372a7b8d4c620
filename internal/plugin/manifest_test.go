// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontclaw/frontclaw/internal/plugin"
	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

const validManifest = `{
	"id": "security-guardian",
	"name": "Security Guardian",
	"version": "1.2.0",
	"main": "index.js",
	"priority": 10,
	"permissions": {
		"llm": {"can_modify_prompt": true},
		"log": {"enabled": true, "levels": ["info", "warn"]}
	},
	"defaultConfig": {"strict": true},
	"tags": ["security"]
}`

func TestParseManifest(t *testing.T) {
	t.Parallel()

	m, err := plugin.ParseManifest([]byte(validManifest))
	require.NoError(t, err)
	assert.Equal(t, "security-guardian", m.ID)
	assert.Equal(t, 10, m.EffectivePriority())
	assert.True(t, m.IsEnabled())
	require.NotNil(t, m.Permissions.LLM)
	assert.True(t, m.Permissions.LLM.CanModifyPrompt)
}

func TestParseManifestDefaults(t *testing.T) {
	t.Parallel()

	m, err := plugin.ParseManifest([]byte(`{"id":"a","name":"A","version":"0.1.0","main":"main.js","permissions":{}}`))
	require.NoError(t, err)
	assert.Equal(t, plugin.DefaultPriority, m.EffectivePriority())
	assert.True(t, m.IsEnabled())
}

func TestParseManifestCollectsAllErrors(t *testing.T) {
	t.Parallel()

	_, err := plugin.ParseManifest([]byte(`{"id":"9bad","name":"","version":"1.0","main":"","permissions":{}}`))
	require.Error(t, err)
	assert.Equal(t, frontclawerr.CodeInvalidManifest, frontclawerr.CodeOf(err))
	// All four field errors are reported in one message.
	assert.Contains(t, err.Error(), "id must match")
	assert.Contains(t, err.Error(), "name must not be empty")
	assert.Contains(t, err.Error(), "version must be MAJOR.MINOR.PATCH")
	assert.Contains(t, err.Error(), "main must not be empty")
}

func TestManifestVersionAndID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		id    string
		ver   string
		valid bool
	}{
		{name: "ok", id: "my-plugin", ver: "1.0.0", valid: true},
		{name: "uppercase id", id: "MyPlugin", ver: "1.0.0", valid: false},
		{name: "leading digit", id: "1plugin", ver: "1.0.0", valid: false},
		{name: "underscore id", id: "my_plugin", ver: "1.0.0", valid: false},
		{name: "two-part version", id: "ok", ver: "1.0", valid: false},
		{name: "v prefix", id: "ok", ver: "v1.0.0", valid: false},
		{name: "leading zero", id: "ok", ver: "01.0.0", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := &plugin.Manifest{ID: tt.id, Name: "n", Version: tt.ver, Main: "m.js"}
			errs := m.Validate()
			if tt.valid {
				assert.Empty(t, errs)
			} else {
				assert.NotEmpty(t, errs)
			}
		})
	}
}

func TestManifestPriorityBounds(t *testing.T) {
	t.Parallel()

	tooHigh := 1001
	m := &plugin.Manifest{ID: "a", Name: "A", Version: "1.0.0", Main: "m.js", Priority: &tooHigh}
	assert.NotEmpty(t, m.Validate())
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	m := &plugin.Manifest{
		ID: "a", Name: "A", Version: "1.0.0", Main: "m.js",
		ConfigSchema: map[string]any{
			"type":     "object",
			"required": []any{"threshold"},
			"properties": map[string]any{
				"threshold": map[string]any{"type": "number"},
			},
		},
	}
	require.Empty(t, m.Validate())

	assert.NoError(t, m.ValidateConfig(map[string]any{"threshold": 0.5}))
	assert.Error(t, m.ValidateConfig(map[string]any{"threshold": "high"}))
	assert.Error(t, m.ValidateConfig(map[string]any{}))

	noSchema := &plugin.Manifest{ID: "b", Name: "B", Version: "1.0.0", Main: "m.js"}
	assert.NoError(t, noSchema.ValidateConfig(map[string]any{"anything": true}))
}
