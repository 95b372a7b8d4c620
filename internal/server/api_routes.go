// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/frontclaw/frontclaw/internal/store"
	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// ConversationSummary is one conversation in list responses.
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConversationsResponse wraps the conversation list.
type ConversationsResponse struct {
	Body struct {
		Conversations []ConversationSummary `json:"conversations"`
	}
}

// MessageView is one message in history responses.
type MessageView struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// MessagesResponse wraps one conversation's history.
type MessagesResponse struct {
	Body struct {
		Messages []MessageView `json:"messages"`
	}
}

// PluginView is one loaded plugin in list responses.
type PluginView struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Priority int      `json:"priority"`
	Tags     []string `json:"tags,omitempty"`
}

// PluginsResponse wraps the plugin list.
type PluginsResponse struct {
	Body struct {
		Plugins []PluginView `json:"plugins"`
	}
}

func (s *Server) registerConversationRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-conversations",
		Method:      http.MethodGet,
		Path:        "/api/v1/conversations",
		Summary:     "List conversations",
		Tags:        []string{"chat"},
	}, func(ctx context.Context, input *struct {
		Limit  int `query:"limit" default:"50" doc:"Maximum conversations returned"`
		Offset int `query:"offset" default:"0"`
	}) (*ConversationsResponse, error) {
		convs, err := s.deps.Conversations.ListConversations(ctx, store.ListOpts{
			Limit:  input.Limit,
			Offset: input.Offset,
		})
		if err != nil {
			return nil, huma.Error500InternalServerError("listing conversations failed")
		}

		resp := &ConversationsResponse{}
		for _, c := range convs {
			resp.Body.Conversations = append(resp.Body.Conversations, ConversationSummary{
				ID:        c.ID,
				Title:     c.Title,
				CreatedAt: c.CreatedAt,
				UpdatedAt: c.UpdatedAt,
			})
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-conversation-messages",
		Method:      http.MethodGet,
		Path:        "/api/v1/conversations/{id}/messages",
		Summary:     "Get conversation history",
		Tags:        []string{"chat"},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Limit  int    `query:"limit" default:"0"`
		Offset int    `query:"offset" default:"0"`
	}) (*MessagesResponse, error) {
		if _, err := s.deps.Conversations.GetConversation(ctx, input.ID); err != nil {
			if frontclawerr.IsNotFound(err) {
				return nil, huma.Error404NotFound("conversation not found")
			}
			return nil, huma.Error500InternalServerError("loading conversation failed")
		}

		msgs, err := s.deps.Messages.ListMessages(ctx, input.ID, store.ListOpts{
			Limit:  input.Limit,
			Offset: input.Offset,
		})
		if err != nil {
			return nil, huma.Error500InternalServerError("listing messages failed")
		}

		resp := &MessagesResponse{}
		for _, m := range msgs {
			resp.Body.Messages = append(resp.Body.Messages, MessageView{
				ID:        m.ID,
				Role:      string(m.Role),
				Content:   m.Content,
				Metadata:  m.Metadata,
				CreatedAt: m.CreatedAt,
			})
		}
		return resp, nil
	})
}

func (s *Server) registerPluginList() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-plugins",
		Method:      http.MethodGet,
		Path:        "/api/v1/plugins",
		Summary:     "List loaded plugins",
		Tags:        []string{"plugins"},
	}, func(_ context.Context, _ *struct{}) (*PluginsResponse, error) {
		resp := &PluginsResponse{}
		for _, p := range s.deps.Orchestrator.Plugins() {
			resp.Body.Plugins = append(resp.Body.Plugins, PluginView{
				ID:       p.Manifest.ID,
				Name:     p.Manifest.Name,
				Version:  p.Manifest.Version,
				Priority: p.Manifest.EffectivePriority(),
				Tags:     p.Manifest.Tags,
			})
		}
		return resp, nil
	})
}
