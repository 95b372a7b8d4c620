// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package store

import (
	"context"
	"sync"

	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// Compile-time interface check.
var _ RowStore = (*MemRows)(nil)

// MemRows is an in-memory RowStore used by tests and by deployments with no
// database configured. Query is unsupported; the sqlite store serves it.
type MemRows struct {
	mu     sync.RWMutex
	tables map[string][]map[string]any
}

// NewMemRows creates an empty in-memory row store.
func NewMemRows() *MemRows {
	return &MemRows{tables: make(map[string][]map[string]any)}
}

// Insert adds a row to a table, creating the table on first use.
func (s *MemRows) Insert(table string, row map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], row)
}

func (s *MemRows) GetItem(_ context.Context, table, id string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, row := range s.tables[table] {
		if row["id"] == id {
			return row, nil
		}
	}
	return nil, frontclawerr.Errorf(frontclawerr.CodeNotFound, "no row %q in table %q", id, table)
}

func (s *MemRows) GetItems(_ context.Context, table string, q ItemQuery) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []map[string]any
	for _, row := range s.tables[table] {
		if !matchesWhere(row, q.Where) {
			continue
		}
		out = append(out, row)
	}

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemRows) Query(_ context.Context, _ string, _ []any) ([]map[string]any, error) {
	return nil, frontclawerr.New(frontclawerr.CodeInvalidInput, "raw queries require a database backend")
}

func matchesWhere(row, where map[string]any) bool {
	for col, want := range where {
		if row[col] != want {
			return false
		}
	}
	return true
}
