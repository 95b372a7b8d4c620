// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

// Package chat glues the orchestrator, the LLM provider, and the
// persistence layer into the streaming chat endpoint.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/frontclaw/frontclaw/internal/metrics"
	"github.com/frontclaw/frontclaw/internal/orchestrator"
	"github.com/frontclaw/frontclaw/internal/provider"
	"github.com/frontclaw/frontclaw/internal/store"
	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

const (
	// maxToolLoopIterations bounds LLM→tool→LLM round trips per request.
	maxToolLoopIterations = 5
	// resultPreviewLen caps the tool_result preview sent on the stream.
	resultPreviewLen = 400
	// defaultSystemPrompt seeds the system message before plugins shape it.
	defaultSystemPrompt = "You are a helpful assistant."
)

// Store is the persistence surface the driver needs.
type Store interface {
	store.ConversationStore
	store.MessageStore
}

// Config holds the driver's dependencies.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Router       provider.Router
	Store        Store
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Driver executes chat requests.
type Driver struct {
	orch    *orchestrator.Orchestrator
	router  provider.Router
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New builds a Driver.
func New(cfg Config) *Driver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop()
	}
	return &Driver{
		orch:    cfg.Orchestrator,
		router:  cfg.Router,
		store:   cfg.Store,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Request is one inbound chat message.
type Request struct {
	Message        string
	ConversationID string
	ProfileID      string
	Title          string
	SystemPrompt   string
	Model          string
}

// ToolCallSummary is one executed tool in the terminal done event.
type ToolCallSummary struct {
	Name       string `json:"name"`
	Source     string `json:"source"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
}

// Reply is the terminal result of one chat request.
type Reply struct {
	ConversationID     string
	UserMessageID      string
	AssistantMessageID string
	Response           string
	InterceptedBy      string
	Tools              []orchestrator.Tool
	Skills             []orchestrator.Skill
	ToolCalls          []ToolCallSummary
}

// Handle runs one chat request, emitting stream events on sink and
// returning the terminal reply. Errors carry a "blockedBy" field when a
// plugin aborted the pipeline.
func (d *Driver) Handle(ctx context.Context, req Request, sink EventSink) (*Reply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, frontclawerr.New(frontclawerr.CodeInvalidInput, "message must not be empty")
	}

	conv, err := d.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	userMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           store.RoleUser,
		Content:        req.Message,
		CreatedAt:      time.Now(),
	}
	if err := d.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "persisting user message")
	}

	sink.Send("meta", map[string]string{
		"conversationId": conv.ID,
		"userMessageId":  userMsg.ID,
	})

	// Prompt pipeline: transformation or interception by plugins.
	promptResult := d.orch.ProcessPrompt(ctx, req.Message)

	if conv.Title == "" && promptResult.Kind != orchestrator.KindFailed {
		title := DeriveTitle(req.Message)
		if err := d.store.UpdateConversationTitle(ctx, conv.ID, title); err != nil {
			d.logger.Warn("updating conversation title failed", "conversation", conv.ID, "error", err)
		}
	}

	switch promptResult.Kind {
	case orchestrator.KindFailed:
		d.metrics.ChatRequests.WithLabelValues("blocked").Inc()
		return nil, pipelineError(promptResult.FailedPlugin, promptResult.Code, promptResult.Message, conv.ID, userMsg.ID)

	case orchestrator.KindIntercepted:
		return d.finishIntercepted(ctx, sink, conv, userMsg, promptResult.InterceptedText(), promptResult.InterceptedBy)
	}
	prompt := promptResult.Value

	tools := d.orch.CollectTools(ctx)
	skills := d.orch.CollectSkills(ctx)

	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	if block := advertisedToolsBlock(tools, skills); block != "" {
		systemPrompt += "\n\n" + block
	}
	systemPrompt = d.orch.TransformSystemMessage(ctx, systemPrompt)

	messages, err := d.assembleMessages(ctx, conv.ID, systemPrompt, prompt, userMsg.ID)
	if err != nil {
		return nil, err
	}

	beforeResult := d.orch.BeforeLLMCall(ctx, messages)
	switch beforeResult.Kind {
	case orchestrator.KindFailed:
		d.metrics.ChatRequests.WithLabelValues("blocked").Inc()
		return nil, pipelineError(beforeResult.FailedPlugin, beforeResult.Code, beforeResult.Message, conv.ID, userMsg.ID)

	case orchestrator.KindIntercepted:
		return d.finishIntercepted(ctx, sink, conv, userMsg, beforeResult.InterceptedText(), beforeResult.InterceptedBy)
	}
	messages = beforeResult.Value

	text, toolCalls, err := d.runLLM(ctx, sink, req.Model, systemPrompt, messages, tools, skills)
	if err != nil {
		// The transport layer emits the terminal error event; the driver
		// only reports the failure.
		d.metrics.ChatRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	text = d.orch.AfterLLMCall(ctx, text)

	assistantMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           store.RoleAssistant,
		Content:        text,
		CreatedAt:      time.Now(),
	}
	if len(toolCalls) > 0 {
		assistantMsg.Metadata = map[string]any{"toolCalls": toolCalls}
	}
	if err := d.store.AppendMessage(ctx, assistantMsg); err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "persisting assistant message")
	}

	reply := &Reply{
		ConversationID:     conv.ID,
		UserMessageID:      userMsg.ID,
		AssistantMessageID: assistantMsg.ID,
		Response:           text,
		Tools:              tools,
		Skills:             skills,
		ToolCalls:          toolCalls,
	}

	sink.Send("done", map[string]any{
		"conversationId":     conv.ID,
		"userMessageId":      userMsg.ID,
		"assistantMessageId": assistantMsg.ID,
		"response":           text,
		"toolCalls":          toolCalls,
	})
	d.metrics.ChatRequests.WithLabelValues("ok").Inc()
	return reply, nil
}

// resolveConversation fetches the addressed conversation or creates one.
func (d *Driver) resolveConversation(ctx context.Context, req Request) (*store.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := d.store.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		return conv, nil
	}

	conv := &store.Conversation{
		ID:        uuid.New().String(),
		Title:     req.Title,
		ProfileID: req.ProfileID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := d.store.CreateConversation(ctx, conv); err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "creating conversation")
	}
	return conv, nil
}

// finishIntercepted persists a plugin's intercept value as the assistant
// reply and terminates the request without calling the LLM.
func (d *Driver) finishIntercepted(ctx context.Context, sink EventSink, conv *store.Conversation, userMsg *store.Message, text, pluginID string) (*Reply, error) {
	assistantMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           store.RoleAssistant,
		Content:        text,
		Metadata:       map[string]any{"interceptedBy": pluginID},
		CreatedAt:      time.Now(),
	}
	if err := d.store.AppendMessage(ctx, assistantMsg); err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "persisting intercepted reply")
	}

	sink.Send("done", map[string]any{
		"conversationId":     conv.ID,
		"userMessageId":      userMsg.ID,
		"assistantMessageId": assistantMsg.ID,
		"response":           text,
		"interceptedBy":      pluginID,
	})
	d.metrics.ChatRequests.WithLabelValues("intercepted").Inc()

	return &Reply{
		ConversationID:     conv.ID,
		UserMessageID:      userMsg.ID,
		AssistantMessageID: assistantMsg.ID,
		Response:           text,
		InterceptedBy:      pluginID,
	}, nil
}

// assembleMessages builds [system, ...history, user]. The history already
// contains the user message appended this request; its content is replaced
// by the pipeline-transformed prompt.
func (d *Driver) assembleMessages(ctx context.Context, conversationID, systemPrompt, prompt, userMsgID string) ([]orchestrator.ChatMessage, error) {
	history, err := d.store.ListMessages(ctx, conversationID, store.ListOpts{})
	if err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "loading history")
	}

	messages := []orchestrator.ChatMessage{{Role: string(provider.RoleSystem), Content: systemPrompt}}
	for _, m := range history {
		content := m.Content
		if m.ID == userMsgID {
			content = prompt
		}
		switch m.Role {
		case store.RoleUser, store.RoleAssistant:
			messages = append(messages, orchestrator.ChatMessage{Role: string(m.Role), Content: content})
		}
	}
	return messages, nil
}

// advertisedToolsBlock renders the tool/skill catalog appended to the
// system prompt.
func advertisedToolsBlock(tools []orchestrator.Tool, skills []orchestrator.Skill) string {
	if len(tools) == 0 && len(skills) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	for _, s := range skills {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// toolDefinitions merges tools and skills into the provider's catalog.
func toolDefinitions(tools []orchestrator.Tool, skills []orchestrator.Skill) []provider.ToolDefinition {
	defs := make([]provider.ToolDefinition, 0, len(tools)+len(skills))
	for _, t := range tools {
		defs = append(defs, provider.ToolDefinition{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	for _, s := range skills {
		defs = append(defs, provider.ToolDefinition{Name: s.Name, Description: s.Description, InputSchema: s.Parameters})
	}
	return defs
}

// runLLM drives the streaming completion with the tool executor, looping on
// tool calls until the model stops, the control envelope ends the request,
// or the iteration bound hits.
func (d *Driver) runLLM(
	ctx context.Context,
	sink EventSink,
	model, systemPrompt string,
	messages []orchestrator.ChatMessage,
	tools []orchestrator.Tool,
	skills []orchestrator.Skill,
) (string, []ToolCallSummary, error) {
	prov, resolvedModel, err := d.router.Route(ctx, model)
	if err != nil {
		return "", nil, err
	}

	current := toProviderMessages(messages)
	defs := toolDefinitions(tools, skills)
	var summaries []ToolCallSummary
	var toolOutputs []map[string]any

	for iteration := 0; iteration < maxToolLoopIterations; iteration++ {
		eventCh, err := prov.Chat(ctx, provider.ChatRequest{
			Model:        resolvedModel,
			Messages:     current,
			Tools:        defs,
			SystemPrompt: systemPrompt,
			Options:      provider.ChatOptions{Stream: true},
		})
		if err != nil {
			return "", summaries, frontclawerr.Wrap(err, frontclawerr.CodeUpstreamFailure, "chat call to "+prov.Name())
		}

		text, calls, streamErr := d.consumeStream(sink, eventCh)
		if streamErr != nil {
			return "", summaries, streamErr
		}

		if len(calls) == 0 {
			if text == "" && len(toolOutputs) > 0 {
				return d.synthesize(ctx, prov, resolvedModel, systemPrompt, current, toolOutputs, summaries)
			}
			return text, summaries, nil
		}

		if text != "" {
			current = append(current, provider.Message{Role: provider.RoleAssistant, Content: text})
		}

		for _, call := range calls {
			outcome, summary := d.executeCall(ctx, sink, call)
			summaries = append(summaries, summary)

			if outcome != nil && outcome.EndRequest {
				// The control envelope short-circuits: no synthesis, the
				// envelope text is the assistant reply.
				return outcome.Response, summaries, nil
			}

			resultContent := summary.Error
			if outcome != nil {
				resultContent = string(outcome.Value)
				toolOutputs = append(toolOutputs, map[string]any{
					"tool":   call.Name,
					"result": json.RawMessage(outcome.Value),
				})
			}
			current = append(current, provider.Message{
				Role:       provider.RoleTool,
				Content:    resultContent,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
	}

	if len(toolOutputs) > 0 {
		return d.synthesize(ctx, prov, resolvedModel, systemPrompt, current, toolOutputs, summaries)
	}
	return "", summaries, nil
}

// consumeStream drains one completion stream, forwarding deltas to the
// sink and collecting tool calls.
func (d *Driver) consumeStream(sink EventSink, eventCh <-chan provider.ChatEvent) (string, []*provider.ToolCall, error) {
	var buf strings.Builder
	var calls []*provider.ToolCall

	for ev := range eventCh {
		switch ev.Type {
		case provider.EventTypeTextDelta:
			buf.WriteString(ev.Text)
			sink.Send("delta", map[string]string{"text": ev.Text})
		case provider.EventTypeToolCall:
			if ev.ToolCall != nil {
				calls = append(calls, ev.ToolCall)
			}
		case provider.EventTypeError:
			return "", nil, frontclawerr.New(frontclawerr.CodeUpstreamFailure, ev.Error)
		}
	}
	return buf.String(), calls, nil
}

// executeCall runs one model tool call: skills first, tools as fallback.
func (d *Driver) executeCall(ctx context.Context, sink EventSink, call *provider.ToolCall) (*orchestrator.Outcome, ToolCallSummary) {
	args := map[string]any{}
	if call.Arguments != "" {
		_ = json.Unmarshal([]byte(call.Arguments), &args)
	}

	started := time.Now()
	sink.Send("tool_start", map[string]any{
		"toolName":  call.Name,
		"args":      args,
		"startedAt": started.UnixMilli(),
	})

	source := "skill"
	outcome, err := d.orch.ExecuteSkill(ctx, call.Name, args)
	if err != nil {
		source = "tool"
		outcome, err = d.orch.ExecuteTool(ctx, call.Name, args)
	}
	duration := time.Since(started).Milliseconds()

	if err != nil {
		sink.Send("tool_error", map[string]any{
			"toolName":   call.Name,
			"durationMs": duration,
			"message":    err.Error(),
		})
		return nil, ToolCallSummary{Name: call.Name, Source: source, DurationMs: duration, Error: err.Error()}
	}

	preview := outcome.Response
	if !outcome.EndRequest {
		preview = string(outcome.Value)
	}
	if len(preview) > resultPreviewLen {
		preview = preview[:resultPreviewLen]
	}
	sink.Send("tool_result", map[string]any{
		"toolName":      call.Name,
		"source":        source,
		"durationMs":    duration,
		"resultPreview": preview,
	})
	return outcome, ToolCallSummary{Name: call.Name, Source: source, DurationMs: duration}
}

// synthesize asks the model for a final answer when the tool loop ended
// with no text.
func (d *Driver) synthesize(
	ctx context.Context,
	prov provider.Provider,
	model, systemPrompt string,
	messages []provider.Message,
	toolOutputs []map[string]any,
	summaries []ToolCallSummary,
) (string, []ToolCallSummary, error) {
	outputsJSON, err := json.Marshal(toolOutputs)
	if err != nil {
		return "", summaries, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "marshalling tool outputs")
	}

	synth := append(append([]provider.Message(nil), messages...),
		provider.Message{Role: provider.RoleAssistant, Content: "I have gathered the tool results."},
		provider.Message{
			Role: provider.RoleUser,
			Content: "Tool outputs: " + string(outputsJSON) +
				"\nProduce the final answer for the user based on these results.",
		},
	)

	eventCh, err := prov.Chat(ctx, provider.ChatRequest{
		Model:        model,
		Messages:     synth,
		SystemPrompt: systemPrompt,
		Options:      provider.ChatOptions{Stream: true},
	})
	if err != nil {
		return "", summaries, frontclawerr.Wrap(err, frontclawerr.CodeUpstreamFailure, "synthesis call")
	}

	var buf strings.Builder
	for ev := range eventCh {
		switch ev.Type {
		case provider.EventTypeTextDelta:
			buf.WriteString(ev.Text)
		case provider.EventTypeError:
			return "", summaries, frontclawerr.New(frontclawerr.CodeUpstreamFailure, ev.Error)
		}
	}
	return buf.String(), summaries, nil
}

func toProviderMessages(messages []orchestrator.ChatMessage) []provider.Message {
	out := make([]provider.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == string(provider.RoleSystem) {
			// The system prompt travels separately.
			continue
		}
		out = append(out, provider.Message{Role: provider.MessageRole(m.Role), Content: m.Content})
	}
	return out
}

// pipelineError shapes a plugin-aborted pipeline as a coded error carrying
// blockedBy for the HTTP layer.
func pipelineError(pluginID, code, message, conversationID, messageID string) error {
	c := frontclawerr.Code(code)
	if c == "" {
		c = frontclawerr.CodeHookError
	}
	return frontclawerr.New(c, message,
		frontclawerr.Field("blockedBy", pluginID),
		frontclawerr.FieldConversationID(conversationID),
		frontclawerr.Field("messageId", messageID),
	)
}
