// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package orchestrator

import (
	"context"
	"encoding/json"
	"strings"

	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// Tool is one capability advertised to the LLM, namespaced as
// pluginId__localName.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Skill mirrors Tool for the skill surface.
type Skill struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Outcome is the result of executing a tool or skill. EndRequest is the
// control variant terminating the LLM loop with Response as the final
// assistant reply; otherwise Value is handed back to the LLM.
type Outcome struct {
	EndRequest bool
	Response   string
	Value      json.RawMessage
}

// controlEnvelope is the wire shape a plugin returns to end the request.
type controlEnvelope struct {
	Frontclaw *struct {
		Mode     string `json:"mode"`
		Response string `json:"response"`
	} `json:"__frontclaw"`
}

// decodeOutcome converts a raw tool/skill result into an Outcome,
// recognizing the end_request control envelope.
func decodeOutcome(raw json.RawMessage) *Outcome {
	var ctrl controlEnvelope
	if err := json.Unmarshal(raw, &ctrl); err == nil && ctrl.Frontclaw != nil && ctrl.Frontclaw.Mode == "end_request" {
		return &Outcome{EndRequest: true, Response: ctrl.Frontclaw.Response}
	}
	return &Outcome{Value: raw}
}

// hookExecResult is the {success, result|error} shape executeTool and
// executeSkill hooks return.
type hookExecResult struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   string          `json:"error"`
}

// CollectTools calls getTools on every bridge and namespaces each returned
// tool as pluginId__localName. Hook failures skip the plugin.
func (o *Orchestrator) CollectTools(ctx context.Context) []Tool {
	var tools []Tool
	for _, p := range o.Plugins() {
		w, ok := o.worker(p.Manifest.ID)
		if !ok {
			continue
		}

		raw, err := w.CallHook(ctx, "getTools", nil)
		if err != nil {
			o.logger.Warn("getTools failed; skipping plugin", "plugin", p.Manifest.ID, "error", err)
			continue
		}
		if isNullish(raw) {
			continue
		}

		var declared []Tool
		if err := json.Unmarshal(raw, &declared); err != nil {
			o.logger.Warn("getTools returned malformed tools", "plugin", p.Manifest.ID, "error", err)
			continue
		}
		for _, t := range declared {
			if t.Name == "" {
				continue
			}
			t.Name = p.Manifest.ID + "__" + t.Name
			tools = append(tools, t)
		}
	}
	return tools
}

// ExecuteTool splits pluginId__localName, looks the bridge up, and runs the
// executeTool hook.
func (o *Orchestrator) ExecuteTool(ctx context.Context, fullName string, args map[string]any) (*Outcome, error) {
	pluginID, localName, err := splitNamespaced(fullName)
	if err != nil {
		return nil, err
	}

	w, ok := o.worker(pluginID)
	if !ok {
		return nil, frontclawerr.Errorf(frontclawerr.CodeToolNotFound, "no plugin %q for tool %q", pluginID, fullName)
	}

	raw, err := w.CallHook(ctx, "executeTool", map[string]any{"tool": localName, "args": args})
	if err != nil {
		return nil, err
	}

	var res hookExecResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, frontclawerr.Wrapf(err, frontclawerr.CodeHookError, "malformed executeTool result from %s", pluginID)
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "tool execution failed"
		}
		return nil, frontclawerr.New(frontclawerr.CodeHookError, msg, frontclawerr.FieldPlugin(pluginID))
	}

	return decodeOutcome(res.Result), nil
}

// CollectSkills is CollectTools for skills, additionally checking the
// declaring plugin's skill grant on each local name.
func (o *Orchestrator) CollectSkills(ctx context.Context) []Skill {
	var skills []Skill
	for _, p := range o.Plugins() {
		w, ok := o.worker(p.Manifest.ID)
		if !ok {
			continue
		}
		guard, ok := o.guard(p.Manifest.ID)
		if !ok {
			continue
		}

		raw, err := w.CallHook(ctx, "getSkills", nil)
		if err != nil {
			o.logger.Warn("getSkills failed; skipping plugin", "plugin", p.Manifest.ID, "error", err)
			continue
		}
		if isNullish(raw) {
			continue
		}

		var declared []Skill
		if err := json.Unmarshal(raw, &declared); err != nil {
			o.logger.Warn("getSkills returned malformed skills", "plugin", p.Manifest.ID, "error", err)
			continue
		}
		for _, s := range declared {
			if s.Name == "" {
				continue
			}
			if err := guard.CheckSkill(s.Name); err != nil {
				o.logger.Warn("plugin declared a skill its grant does not cover",
					"plugin", p.Manifest.ID, "skill", s.Name)
				continue
			}
			s.Name = p.Manifest.ID + "__" + s.Name
			skills = append(skills, s)
		}
	}
	return skills
}

// ExecuteSkill splits the namespaced name, guard-checks the local name
// against the owning plugin's grant, and runs the executeSkill hook.
func (o *Orchestrator) ExecuteSkill(ctx context.Context, fullName string, args map[string]any) (*Outcome, error) {
	pluginID, localName, err := splitNamespaced(fullName)
	if err != nil {
		return nil, err
	}

	w, ok := o.worker(pluginID)
	if !ok {
		return nil, frontclawerr.Errorf(frontclawerr.CodeSkillNotFound, "no plugin %q for skill %q", pluginID, fullName)
	}
	guard, ok := o.guard(pluginID)
	if !ok {
		return nil, frontclawerr.Errorf(frontclawerr.CodeSkillNotFound, "no plugin %q for skill %q", pluginID, fullName)
	}
	if err := guard.CheckSkill(localName); err != nil {
		return nil, err
	}

	raw, err := w.CallHook(ctx, "executeSkill", map[string]any{"skill": localName, "args": args})
	if err != nil {
		return nil, err
	}

	var res hookExecResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, frontclawerr.Wrapf(err, frontclawerr.CodeHookError, "malformed executeSkill result from %s", pluginID)
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "skill execution failed"
		}
		return nil, frontclawerr.New(frontclawerr.CodeHookError, msg, frontclawerr.FieldPlugin(pluginID))
	}

	return decodeOutcome(res.Result), nil
}

// InvokeSkill adapts ExecuteSkill to the sys-call handler's SkillInvoker
// interface: the outcome payload is decoded to a plain value.
func (o *Orchestrator) InvokeSkill(ctx context.Context, skillName string, args map[string]any) (any, error) {
	outcome, err := o.ExecuteSkill(ctx, skillName, args)
	if err != nil {
		return nil, err
	}
	if outcome.EndRequest {
		return outcome.Response, nil
	}
	if len(outcome.Value) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(outcome.Value, &value); err != nil {
		return string(outcome.Value), nil
	}
	return value, nil
}

// splitNamespaced splits pluginId__localName on the first "__".
func splitNamespaced(fullName string) (pluginID, localName string, err error) {
	pluginID, localName, ok := strings.Cut(fullName, "__")
	if !ok || pluginID == "" || localName == "" {
		return "", "", frontclawerr.Errorf(frontclawerr.CodeToolNotFound, "name %q is not namespaced", fullName)
	}
	return pluginID, localName, nil
}
