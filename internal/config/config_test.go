// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontclaw/frontclaw/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8787", cfg.Server.Listen)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "inproc", cfg.Memory.Backend)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.HookTimeout)
	assert.Equal(t, 30*time.Second, cfg.Sandbox.SyscallTimeout)
	assert.Equal(t, "anthropic/claude-sonnet-4-5", cfg.Models.Default)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frontclaw.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  listen: "0.0.0.0:9000"
plugins:
  dir: /opt/plugins
  deny: [banned-plugin]
memory:
  backend: redis
  redis_addr: "10.0.0.1:6379"
providers:
  anthropic:
    api_key: test-key
sandbox:
  hook_timeout: 2s
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Listen)
	assert.Equal(t, "/opt/plugins", cfg.Plugins.Dir)
	assert.Equal(t, []string{"banned-plugin"}, cfg.Plugins.Deny)
	assert.Equal(t, "redis", cfg.Memory.Backend)
	assert.Equal(t, "test-key", cfg.Providers["anthropic"].APIKey)
	assert.Equal(t, 2*time.Second, cfg.Sandbox.HookTimeout)
}

func TestLoadPluginOverrides(t *testing.T) {
	dir := t.TempDir()
	overridesPath := filepath.Join(dir, "plugins.yaml")
	require.NoError(t, os.WriteFile(overridesPath, []byte(`
security-guardian:
  strict: false
  threshold: 0.8
`), 0o644))

	cfg := &config.Config{}
	cfg.Plugins.OverridesFile = overridesPath

	overrides, err := config.LoadPluginOverrides(cfg)
	require.NoError(t, err)
	require.Contains(t, overrides, "security-guardian")
	assert.Equal(t, false, overrides["security-guardian"]["strict"])

	// A missing file is not an error.
	cfg.Plugins.OverridesFile = filepath.Join(dir, "absent.yaml")
	overrides, err = config.LoadPluginOverrides(cfg)
	require.NoError(t, err)
	assert.Nil(t, overrides)
}
