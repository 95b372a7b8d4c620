// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Service = (*InProc)(nil)

type inprocEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// InProc is the in-process map backend. TTLs are enforced on read with
// lazy eviction.
type InProc struct {
	mu      sync.Mutex
	entries map[string]inprocEntry
	now     func() time.Time
}

// NewInProc creates an empty in-process store.
func NewInProc() *InProc {
	return &InProc{
		entries: make(map[string]inprocEntry),
		now:     time.Now,
	}
}

func (s *InProc) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(key)
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *InProc) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := inprocEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *InProc) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *InProc) List(_ context.Context, prefix string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for key := range s.entries {
		if _, ok := s.live(key); !ok {
			continue
		}
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (s *InProc) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(key)
	if !ok || entry.expiresAt.IsZero() {
		return 0, false, nil
	}
	return entry.expiresAt.Sub(s.now()), true, nil
}

// live returns the entry when present and unexpired, evicting lazily.
// Callers must hold the lock.
func (s *InProc) live(key string) (inprocEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return inprocEntry{}, false
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return inprocEntry{}, false
	}
	return entry, true
}
