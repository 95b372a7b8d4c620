// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package plugin

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// Loaded is the materialized record of one plugin: manifest plus resolved
// paths and merged configuration. Not mutated after load.
type Loaded struct {
	Manifest  *Manifest
	Dir       string
	EntryPath string
	Config    map[string]any
}

// Loader discovers plugins under a directory. Each immediate subdirectory
// holding a manifest and a readme is a candidate; errors in one candidate
// never prevent loading others.
type Loader struct {
	dir       string
	overrides map[string]map[string]any
	denyList  map[string]bool
	logger    *slog.Logger

	// Verifier, when set, is consulted before a plugin is accepted. It is
	// the hook reserved for signature verification; nil accepts everything.
	Verifier func(m *Manifest, dir string) error
}

// NewLoader creates a Loader over dir. overrides maps plugin id to user
// configuration merged atop defaults; deny lists plugin ids to drop.
func NewLoader(dir string, overrides map[string]map[string]any, deny []string, logger *slog.Logger) *Loader {
	denySet := make(map[string]bool, len(deny))
	for _, id := range deny {
		denySet[id] = true
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{dir: dir, overrides: overrides, denyList: denySet, logger: logger}
}

// Load scans the directory and returns the loaded plugins sorted by
// ascending priority, identifier breaking ties.
func (l *Loader) Load() ([]*Loaded, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "reading plugins directory")
	}

	var loaded []*Loaded
	seen := make(map[string]string)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(l.dir, entry.Name())
		p, err := l.loadOne(dir)
		if err != nil {
			l.logger.Warn("skipping plugin", "dir", dir, "error", err)
			continue
		}
		if p == nil {
			continue
		}

		if prev, ok := seen[p.Manifest.ID]; ok {
			l.logger.Warn("skipping plugin: duplicate id", "id", p.Manifest.ID, "dir", dir, "first", prev)
			continue
		}
		seen[p.Manifest.ID] = dir
		loaded = append(loaded, p)
	}

	sort.Slice(loaded, func(i, j int) bool {
		pi, pj := loaded[i].Manifest.EffectivePriority(), loaded[j].Manifest.EffectivePriority()
		if pi != pj {
			return pi < pj
		}
		return loaded[i].Manifest.ID < loaded[j].Manifest.ID
	})

	return loaded, nil
}

// loadOne materializes a single candidate. Returns (nil, nil) for disabled
// or denied plugins and candidates without a manifest.
func (l *Loader) loadOne(dir string) (*Loaded, error) {
	manifestPath := filepath.Join(dir, ManifestFileName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "reading manifest")
	}

	if !hasReadme(dir) {
		return nil, frontclawerr.New(frontclawerr.CodeInvalidManifest, "plugin has no readme file")
	}

	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}

	if !manifest.IsEnabled() || l.denyList[manifest.ID] {
		return nil, nil
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "resolving plugin directory")
	}

	entryPath, err := resolveEntry(absDir, manifest.Main)
	if err != nil {
		return nil, err
	}

	config := mergeConfig(manifest.DefaultConfig, l.overrides[manifest.ID])
	if err := manifest.ValidateConfig(config); err != nil {
		return nil, err
	}

	if l.Verifier != nil {
		if err := l.Verifier(manifest, absDir); err != nil {
			return nil, frontclawerr.Wrapf(err, frontclawerr.CodeInvalidManifest, "verification failed for %s", manifest.ID)
		}
	}

	if db := manifest.Permissions.DB; db != nil {
		for _, table := range db.Tables {
			if table == "*" {
				l.logger.Warn("plugin granted wildcard table access", "id", manifest.ID)
			}
		}
	}

	return &Loaded{
		Manifest:  manifest,
		Dir:       absDir,
		EntryPath: entryPath,
		Config:    config,
	}, nil
}

// resolveEntry resolves main against the plugin directory and rejects
// entries escaping it.
func resolveEntry(dir, main string) (string, error) {
	entry := filepath.Clean(filepath.Join(dir, main))
	if entry != dir && !strings.HasPrefix(entry, dir+string(filepath.Separator)) {
		return "", frontclawerr.Errorf(frontclawerr.CodeInvalidManifest, "entry %q escapes the plugin directory", main)
	}

	info, err := os.Stat(entry)
	if err != nil {
		return "", frontclawerr.Errorf(frontclawerr.CodeInvalidManifest, "entry file %q does not exist", main)
	}
	if info.IsDir() {
		return "", frontclawerr.Errorf(frontclawerr.CodeInvalidManifest, "entry %q is a directory", main)
	}
	return entry, nil
}

func hasReadme(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if name == "readme" || strings.HasPrefix(name, "readme.") {
			return true
		}
	}
	return false
}

func mergeConfig(defaults, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
