// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

// Package config loads the Frontclaw configuration tree from
// frontclaw.yaml with FRONTCLAW_ environment overrides.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// Config is the top-level Frontclaw configuration.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Plugins   PluginsConfig             `mapstructure:"plugins"`
	Storage   StorageConfig             `mapstructure:"storage"`
	Memory    MemoryConfig              `mapstructure:"memory"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Models    ModelsConfig              `mapstructure:"models"`
	Sandbox   SandboxConfig             `mapstructure:"sandbox"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// PluginsConfig controls plugin discovery.
type PluginsConfig struct {
	Dir  string   `mapstructure:"dir"`
	Deny []string `mapstructure:"deny"`
	// OverridesFile points at the per-plugin user config overrides
	// (plugins.yaml next to the plugins dir by default).
	OverridesFile string `mapstructure:"overrides_file"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // sqlite | memory
	Path    string `mapstructure:"path"`
}

// MemoryConfig selects the plugin memory backend.
type MemoryConfig struct {
	Backend   string `mapstructure:"backend"` // inproc | redis
	RedisAddr string `mapstructure:"redis_addr"`
}

// ProviderConfig holds credentials and endpoint for an LLM provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// ModelsConfig controls model selection.
type ModelsConfig struct {
	Default string `mapstructure:"default"`
}

// SandboxConfig controls the worker runtime.
type SandboxConfig struct {
	// Command is the argv that hosts a plugin entry file; the entry path
	// is appended.
	Command        []string      `mapstructure:"command"`
	HookTimeout    time.Duration `mapstructure:"hook_timeout"`
	SyscallTimeout time.Duration `mapstructure:"syscall_timeout"`
	ReadyTimeout   time.Duration `mapstructure:"ready_timeout"`
	Development    bool          `mapstructure:"development"`
}

// SetDefaults installs the default configuration values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:8787")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0) // streaming responses must not be cut
	v.SetDefault("plugins.dir", "plugins")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", "frontclaw.db")
	v.SetDefault("memory.backend", "inproc")
	v.SetDefault("memory.redis_addr", "127.0.0.1:6379")
	v.SetDefault("models.default", "anthropic/claude-sonnet-4-5")
	v.SetDefault("sandbox.command", []string{"node", "sandbox/runner.js"})
	v.SetDefault("sandbox.hook_timeout", 5*time.Second)
	v.SetDefault("sandbox.syscall_timeout", 30*time.Second)
	v.SetDefault("sandbox.ready_timeout", 5*time.Second)
}

// SetupEnv binds FRONTCLAW_-prefixed environment variables.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("FRONTCLAW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from path (or discovers frontclaw.yaml) with
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, frontclawerr.Wrapf(err, frontclawerr.CodeInvalidInput, "reading config file %s", path)
		}
	} else {
		v.SetConfigName("frontclaw")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/frontclaw")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, frontclawerr.Wrap(err, frontclawerr.CodeInvalidInput, "reading config file")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInvalidInput, "decoding config")
	}
	return &cfg, nil
}

// LoadPluginOverrides reads the per-plugin user config overrides file. A
// missing file yields no overrides.
func LoadPluginOverrides(cfg *Config) (map[string]map[string]any, error) {
	path := cfg.Plugins.OverridesFile
	if path == "" {
		path = filepath.Join(filepath.Dir(cfg.Plugins.Dir), "plugins.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, frontclawerr.Wrapf(err, frontclawerr.CodeInvalidInput, "reading plugin overrides %s", path)
	}

	var overrides map[string]map[string]any
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, frontclawerr.Wrapf(err, frontclawerr.CodeInvalidInput, "parsing plugin overrides %s", path)
	}
	return overrides, nil
}
