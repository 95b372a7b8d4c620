// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// Compile-time interface checks.
var (
	_ ConversationStore = (*MemStore)(nil)
	_ MessageStore      = (*MemStore)(nil)
)

// MemStore is an in-memory conversation/message store for tests and
// storage-less deployments.
type MemStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      map[string][]*Message
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
	}
}

func (s *MemStore) CreateConversation(_ context.Context, c *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[c.ID]; exists {
		return frontclawerr.Errorf(frontclawerr.CodeInvalidInput, "conversation %q already exists", c.ID)
	}
	copied := *c
	s.conversations[c.ID] = &copied
	return nil
}

func (s *MemStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, frontclawerr.Errorf(frontclawerr.CodeNotFound, "conversation %q not found", id)
	}
	copied := *c
	return &copied, nil
}

func (s *MemStore) ListConversations(_ context.Context, opts ListOpts) ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemStore) UpdateConversationTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return frontclawerr.Errorf(frontclawerr.CodeNotFound, "conversation %q not found", id)
	}
	c.Title = title
	c.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) AppendMessage(_ context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return frontclawerr.Errorf(frontclawerr.CodeNotFound, "conversation %q not found", msg.ConversationID)
	}
	copied := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], &copied)
	return nil
}

func (s *MemStore) ListMessages(_ context.Context, conversationID string, opts ListOpts) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		copied := *m
		out = append(out, &copied)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
