// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/frontclaw/frontclaw/internal/chat"
	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// ChatRequestBody is the POST /api/v1/chat payload.
type ChatRequestBody struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
	ProfileID      string `json:"profileId,omitempty"`
	Title          string `json:"title,omitempty"`
	Stream         bool   `json:"stream,omitempty"`
	SystemPrompt   string `json:"systemPrompt,omitempty"`
	Model          string `json:"model,omitempty"`
}

// chatErrorBody is the JSON error shape of the chat endpoint.
type chatErrorBody struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	Code           string `json:"code,omitempty"`
	BlockedBy      string `json:"blockedBy,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
}

func (s *Server) registerChatRoute() {
	// The streaming handler needs raw ResponseWriter access, so this stays
	// a plain chi route. Neither the SSE nor the JSON variant is registered
	// as a huma operation, so the chat endpoint is absent from the OpenAPI
	// document.
	s.router.Post("/api/v1/chat", s.handleChat)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body ChatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeChatError(w, frontclawerr.New(frontclawerr.CodeInvalidInput, "invalid request body"))
		return
	}

	req := chat.Request{
		Message:        body.Message,
		ConversationID: body.ConversationID,
		ProfileID:      body.ProfileID,
		Title:          body.Title,
		SystemPrompt:   body.SystemPrompt,
		Model:          body.Model,
	}

	wantsSSE := body.Stream || strings.Contains(r.Header.Get("Accept"), "text/event-stream")
	if wantsSSE {
		s.serveChatSSE(w, r, req)
		return
	}
	s.serveChatJSON(w, r, req)
}

// serveChatSSE streams driver events as SSE. Errors after the stream opened
// travel as an "error" event; the stream closes exactly once.
func (s *Server) serveChatSSE(w http.ResponseWriter, r *http.Request, req chat.Request) {
	stream := chat.NewSSEStream(w)
	defer stream.Close()

	if _, err := s.deps.Driver.Handle(r.Context(), req, stream); err != nil {
		s.logger.Warn("chat request failed", "error", err)
		stream.Send("error", errorEvent(err))
	}
}

func (s *Server) serveChatJSON(w http.ResponseWriter, r *http.Request, req chat.Request) {
	sink := &chat.CollectSink{}
	reply, err := s.deps.Driver.Handle(r.Context(), req, sink)
	if err != nil {
		writeChatError(w, err)
		return
	}

	resp := map[string]any{
		"success":        true,
		"conversationId": reply.ConversationID,
		"response":       reply.Response,
		"messages": map[string]string{
			"user":      reply.UserMessageID,
			"assistant": reply.AssistantMessageID,
		},
	}
	if reply.InterceptedBy != "" {
		resp["interceptedBy"] = reply.InterceptedBy
	}
	if len(reply.Tools) > 0 {
		resp["tools"] = reply.Tools
	}
	if len(reply.Skills) > 0 {
		resp["skills"] = reply.Skills
	}
	if len(reply.ToolCalls) > 0 {
		resp["toolCalls"] = reply.ToolCalls
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// writeChatError renders the error shape. A pipeline abort (blockedBy set)
// is always a 403 regardless of the plugin's own code.
func writeChatError(w http.ResponseWriter, err error) {
	body := chatErrorBody{
		Success: false,
		Message: err.Error(),
		Code:    string(frontclawerr.CodeOf(err)),
	}

	status := frontclawerr.HTTPStatus(err)
	fields := frontclawerr.FieldsOf(err)
	if blockedBy, ok := fields["blockedBy"].(string); ok && blockedBy != "" {
		body.BlockedBy = blockedBy
		status = http.StatusForbidden
	}
	if convID, ok := fields["conversation_id"].(string); ok {
		body.ConversationID = convID
	}
	if msgID, ok := fields["messageId"].(string); ok {
		body.MessageID = msgID
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errorEvent(err error) map[string]string {
	ev := map[string]string{
		"message": err.Error(),
	}
	if code := frontclawerr.CodeOf(err); code != "" {
		ev["code"] = string(code)
	}
	if blockedBy, ok := frontclawerr.FieldsOf(err)["blockedBy"].(string); ok && blockedBy != "" {
		ev["blockedBy"] = blockedBy
	}
	return ev
}
