// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package orchestrator

import (
	"context"
	"encoding/json"
)

// ChatMessage is the wire shape of a conversation message inside hook
// payloads.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProcessPrompt runs onPromptReceived across plugins with
// llm.can_modify_prompt, in priority order. Each returned string replaces
// the prompt; the interception tag short-circuits; a thrown error aborts
// the phase.
func (o *Orchestrator) ProcessPrompt(ctx context.Context, prompt string) Result[string] {
	for _, p := range o.Plugins() {
		guard, ok := o.guard(p.Manifest.ID)
		if !ok || !guard.CanModifyPrompt() {
			continue
		}
		w, ok := o.worker(p.Manifest.ID)
		if !ok {
			continue
		}

		raw, err := w.CallHook(ctx, "onPromptReceived", map[string]string{"prompt": prompt})
		if err != nil {
			return Failed[string](p.Manifest.ID, err)
		}
		if isNullish(raw) {
			continue
		}
		if result, ok := decodeIntercept(raw); ok {
			return Intercepted[string](result, p.Manifest.ID)
		}

		var replacement string
		if err := json.Unmarshal(raw, &replacement); err != nil {
			o.logger.Warn("onPromptReceived returned a non-string; ignoring",
				"plugin", p.Manifest.ID)
			continue
		}
		prompt = replacement
	}
	return Continued(prompt)
}

// TransformSystemMessage runs transformSystemMessage across plugins with
// llm.can_modify_system_message. Errors are logged and the plugin skipped;
// this pipeline cannot fail.
func (o *Orchestrator) TransformSystemMessage(ctx context.Context, msg string) string {
	for _, p := range o.Plugins() {
		guard, ok := o.guard(p.Manifest.ID)
		if !ok || !guard.CanModifySystemMessage() {
			continue
		}
		w, ok := o.worker(p.Manifest.ID)
		if !ok {
			continue
		}

		raw, err := w.CallHook(ctx, "transformSystemMessage", map[string]string{"message": msg})
		if err != nil {
			o.logger.Warn("transformSystemMessage failed; skipping plugin",
				"plugin", p.Manifest.ID, "error", err)
			continue
		}
		if isNullish(raw) {
			continue
		}

		var replacement string
		if err := json.Unmarshal(raw, &replacement); err != nil {
			continue
		}
		msg = replacement
	}
	return msg
}

// BeforeLLMCall runs beforeLLMCall across plugins with
// llm.can_intercept_task over the assembled message array.
func (o *Orchestrator) BeforeLLMCall(ctx context.Context, messages []ChatMessage) Result[[]ChatMessage] {
	for _, p := range o.Plugins() {
		guard, ok := o.guard(p.Manifest.ID)
		if !ok || !guard.CanInterceptTask() {
			continue
		}
		w, ok := o.worker(p.Manifest.ID)
		if !ok {
			continue
		}

		raw, err := w.CallHook(ctx, "beforeLLMCall", map[string]any{"messages": messages})
		if err != nil {
			return Failed[[]ChatMessage](p.Manifest.ID, err)
		}
		if isNullish(raw) {
			continue
		}
		if result, ok := decodeIntercept(raw); ok {
			return Intercepted[[]ChatMessage](result, p.Manifest.ID)
		}

		var replacement []ChatMessage
		if err := json.Unmarshal(raw, &replacement); err != nil {
			o.logger.Warn("beforeLLMCall returned a non-array; ignoring",
				"plugin", p.Manifest.ID)
			continue
		}
		messages = replacement
	}
	return Continued(messages)
}

// AfterLLMCall runs afterLLMCall across plugins with
// llm.can_modify_response. Errors are logged and skipped.
func (o *Orchestrator) AfterLLMCall(ctx context.Context, response string) string {
	for _, p := range o.Plugins() {
		guard, ok := o.guard(p.Manifest.ID)
		if !ok || !guard.CanModifyResponse() {
			continue
		}
		w, ok := o.worker(p.Manifest.ID)
		if !ok {
			continue
		}

		raw, err := w.CallHook(ctx, "afterLLMCall", map[string]string{"response": response})
		if err != nil {
			o.logger.Warn("afterLLMCall failed; skipping plugin",
				"plugin", p.Manifest.ID, "error", err)
			continue
		}
		if isNullish(raw) {
			continue
		}

		var replacement string
		if err := json.Unmarshal(raw, &replacement); err != nil {
			continue
		}
		response = replacement
	}
	return response
}

// Search invokes onSearch in priority order and returns the first
// non-empty result array.
func (o *Orchestrator) Search(ctx context.Context, options map[string]any) []json.RawMessage {
	for _, p := range o.Plugins() {
		w, ok := o.worker(p.Manifest.ID)
		if !ok {
			continue
		}

		raw, err := w.CallHook(ctx, "onSearch", map[string]any{"options": options})
		if err != nil {
			o.logger.Warn("onSearch failed; skipping plugin",
				"plugin", p.Manifest.ID, "error", err)
			continue
		}
		if isNullish(raw) {
			continue
		}

		var results []json.RawMessage
		if err := json.Unmarshal(raw, &results); err != nil || len(results) == 0 {
			continue
		}
		return results
	}
	return nil
}
