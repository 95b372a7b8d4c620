// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

// Package plugin defines the manifest plugins declare themselves with and
// the loader that discovers and materializes them from a directory.
package plugin

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/frontclaw/frontclaw/internal/permission"
	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// ManifestFileName is the manifest file expected at each plugin root.
const ManifestFileName = "frontclaw.json"

// DefaultPriority applies when a manifest omits priority.
const DefaultPriority = 100

// idRe gates plugin identifiers: lowercase, digits, hyphens, starting with
// a letter. The identifier is the sole namespace prefix for tools, skills,
// and memory keys.
var idRe = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// semverRe matches strict MAJOR.MINOR.PATCH with no "v" prefix and no
// leading zeros on numeric segments.
var semverRe = regexp.MustCompile(`^(?:0|[1-9]\d*)\.(?:0|[1-9]\d*)\.(?:0|[1-9]\d*)$`)

// Author identifies a manifest author.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Manifest is the immutable declaration of a plugin.
type Manifest struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	Version             string            `json:"version"`
	Main                string            `json:"main"`
	Description         string            `json:"description,omitempty"`
	Author              *Author           `json:"author,omitempty"`
	Priority            *int              `json:"priority,omitempty"`
	Permissions         permission.Grants `json:"permissions"`
	ConfigSchema        map[string]any    `json:"configSchema,omitempty"`
	DefaultConfig       map[string]any    `json:"defaultConfig,omitempty"`
	MinFrontclawVersion string            `json:"minFrontclawVersion,omitempty"`
	Tags                []string          `json:"tags,omitempty"`
	Enabled             *bool             `json:"enabled,omitempty"`
}

// EffectivePriority returns the declared priority or the default.
func (m *Manifest) EffectivePriority() int {
	if m.Priority == nil {
		return DefaultPriority
	}
	return *m.Priority
}

// IsEnabled returns the declared enabled flag, defaulting to true.
func (m *Manifest) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// ParseManifest parses JSON data into a Manifest and validates it.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, frontclawerr.Wrapf(err, frontclawerr.CodeInvalidManifest, "manifest parse")
	}

	if errs := m.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, frontclawerr.New(frontclawerr.CodeInvalidManifest,
			"manifest validation: "+strings.Join(msgs, "; "))
	}

	return &m, nil
}

// Validate checks the manifest and returns all field errors found rather
// than stopping at the first one.
func (m *Manifest) Validate() []error {
	var errs []error

	if strings.TrimSpace(m.ID) == "" {
		errs = append(errs, fmt.Errorf("id must not be empty"))
	} else if !idRe.MatchString(m.ID) {
		errs = append(errs, fmt.Errorf("id must match %s, got %q", idRe.String(), m.ID))
	}

	if strings.TrimSpace(m.Name) == "" {
		errs = append(errs, fmt.Errorf("name must not be empty"))
	}

	if strings.TrimSpace(m.Version) == "" {
		errs = append(errs, fmt.Errorf("version must not be empty"))
	} else if !semverRe.MatchString(m.Version) {
		errs = append(errs, fmt.Errorf("version must be MAJOR.MINOR.PATCH, got %q", m.Version))
	}

	if strings.TrimSpace(m.Main) == "" {
		errs = append(errs, fmt.Errorf("main must not be empty"))
	}

	if m.Priority != nil && (*m.Priority < 0 || *m.Priority > 1000) {
		errs = append(errs, fmt.Errorf("priority must be within [0, 1000], got %d", *m.Priority))
	}

	if m.ConfigSchema != nil {
		if _, err := compileConfigSchema(m.ConfigSchema); err != nil {
			errs = append(errs, fmt.Errorf("configSchema: %s", err))
		}
	}

	return errs
}

// compileConfigSchema compiles the manifest's embedded JSON schema.
func compileConfigSchema(schema map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("configSchema.json", strings.NewReader(string(data))); err != nil {
		return nil, err
	}
	return compiler.Compile("configSchema.json")
}

// ValidateConfig checks a merged configuration against the manifest's
// configSchema. A manifest without a schema accepts any config.
func (m *Manifest) ValidateConfig(config map[string]any) error {
	if m.ConfigSchema == nil {
		return nil
	}

	schema, err := compileConfigSchema(m.ConfigSchema)
	if err != nil {
		return frontclawerr.Wrapf(err, frontclawerr.CodeInvalidManifest, "compiling configSchema for %s", m.ID)
	}

	// The schema library validates any; round-trip to plain JSON types.
	data, err := json.Marshal(config)
	if err != nil {
		return frontclawerr.Wrap(err, frontclawerr.CodeInternal, "marshalling config")
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return frontclawerr.Wrap(err, frontclawerr.CodeInternal, "unmarshalling config")
	}

	if err := schema.Validate(doc); err != nil {
		return frontclawerr.Wrapf(err, frontclawerr.CodeInvalidInput, "config for %s rejected by schema", m.ID)
	}
	return nil
}
