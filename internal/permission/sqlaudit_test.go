// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package permission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontclaw/frontclaw/internal/permission"
	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

func TestAuditSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sql    string
		tables []string
		write  bool
	}{
		{name: "simple select", sql: "SELECT * FROM items", tables: []string{"items"}, write: false},
		{name: "join", sql: "SELECT a.x FROM items a JOIN users u ON u.id = a.uid", tables: []string{"items", "users"}, write: false},
		{name: "insert", sql: "INSERT INTO items (x) VALUES (1)", tables: []string{"items"}, write: true},
		{name: "update", sql: "UPDATE items SET x = 1", tables: []string{"items"}, write: true},
		{name: "delete", sql: "DELETE FROM items WHERE id = 1", tables: []string{"items"}, write: true},
		{name: "comment before table", sql: "SELECT * FROM /* c */ items WHERE title='x;y'", tables: []string{"items"}, write: false},
		{name: "line comment stripped", sql: "SELECT * FROM items -- DROP TABLE users", tables: []string{"items"}, write: false},
		{name: "write keyword in literal ignored", sql: "SELECT * FROM items WHERE t = 'DELETE'", tables: []string{"items"}, write: false},
		{name: "semicolon in literal allowed", sql: "SELECT * FROM items WHERE t = 'a;b'", tables: []string{"items"}, write: false},
		{name: "trailing semicolon allowed", sql: "SELECT * FROM items;", tables: []string{"items"}, write: false},
		{name: "schema qualified uses final segment", sql: "SELECT * FROM main.items", tables: []string{"items"}, write: false},
		{name: "quoted identifier", sql: `SELECT * FROM "items"`, tables: []string{"items"}, write: false},
		{name: "no table means wildcard", sql: "SELECT 1", tables: []string{"*"}, write: false},
		{name: "create is write", sql: "CREATE TABLE t (id INT)", tables: []string{"*"}, write: true},
		{name: "truncate is write", sql: "TRUNCATE items", tables: []string{"*"}, write: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			audit, err := permission.AuditSQL(tt.sql)
			require.NoError(t, err)
			assert.Equal(t, tt.tables, audit.Tables)
			assert.Equal(t, tt.write, audit.Write)
		})
	}
}

func TestAuditSQLRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sql  string
	}{
		{name: "multi statement", sql: "SELECT * FROM items; DELETE FROM items;"},
		{name: "multi statement no trailing", sql: "SELECT 1; SELECT 2"},
		{name: "empty", sql: "   "},
		{name: "only comment", sql: "-- nothing here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := permission.AuditSQL(tt.sql)
			require.Error(t, err)
			assert.Equal(t, frontclawerr.CodeInvalidSQL, frontclawerr.CodeOf(err))
		})
	}
}
