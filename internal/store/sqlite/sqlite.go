// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

// Package sqlite implements the store interfaces over a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/frontclaw/frontclaw/internal/store"
	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// Compile-time interface checks.
var (
	_ store.ConversationStore = (*Store)(nil)
	_ store.MessageStore      = (*Store)(nil)
	_ store.RowStore          = (*Store)(nil)
)

// Store backs conversations, messages, and the plugin row store with one
// SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite db: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	profile_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	metadata        TEXT NOT NULL DEFAULT '{}',
	created_at      TEXT NOT NULL,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for row-store test seeding.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- ConversationStore ---

func (s *Store) CreateConversation(ctx context.Context, c *store.Conversation) error {
	const q = `INSERT INTO conversations (id, title, profile_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		c.ID, c.Title, c.ProfileID,
		c.CreatedAt.UTC().Format(time.RFC3339Nano),
		c.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return frontclawerr.Wrap(err, frontclawerr.CodeInternal, "inserting conversation")
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	const q = `SELECT id, title, profile_id, created_at, updated_at FROM conversations WHERE id = ?`

	var c store.Conversation
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, q, id).Scan(&c.ID, &c.Title, &c.ProfileID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, frontclawerr.Errorf(frontclawerr.CodeNotFound, "conversation %q not found", id)
	}
	if err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "querying conversation")
	}

	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func (s *Store) ListConversations(ctx context.Context, opts store.ListOpts) ([]*store.Conversation, error) {
	q := `SELECT id, title, profile_id, created_at, updated_at FROM conversations ORDER BY updated_at DESC`
	args := []any{}
	if opts.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "listing conversations")
	}
	defer rows.Close()

	var out []*store.Conversation
	for rows.Next() {
		var c store.Conversation
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.Title, &c.ProfileID, &createdAt, &updatedAt); err != nil {
			return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "scanning conversation")
		}
		c.CreatedAt = parseTime(createdAt)
		c.UpdatedAt = parseTime(updatedAt)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateConversationTitle(ctx context.Context, id, title string) error {
	const q = `UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`

	res, err := s.db.ExecContext(ctx, q, title, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return frontclawerr.Wrap(err, frontclawerr.CodeInternal, "updating conversation title")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return frontclawerr.Errorf(frontclawerr.CodeNotFound, "conversation %q not found", id)
	}
	return nil
}

// --- MessageStore ---

func (s *Store) AppendMessage(ctx context.Context, msg *store.Message) error {
	metadata := "{}"
	if len(msg.Metadata) > 0 {
		data, err := json.Marshal(msg.Metadata)
		if err != nil {
			return frontclawerr.Wrap(err, frontclawerr.CodeInternal, "marshalling message metadata")
		}
		metadata = string(data)
	}

	const q = `INSERT INTO messages (id, conversation_id, role, content, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, metadata,
		msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return frontclawerr.Wrap(err, frontclawerr.CodeInternal, "inserting message")
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string, opts store.ListOpts) ([]*store.Message, error) {
	q := `SELECT id, conversation_id, role, content, metadata, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at ASC`
	args := []any{conversationID}
	if opts.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "listing messages")
	}
	defer rows.Close()

	var out []*store.Message
	for rows.Next() {
		var m store.Message
		var role, metadata, createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &metadata, &createdAt); err != nil {
			return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "scanning message")
		}
		m.Role = store.Role(role)
		m.CreatedAt = parseTime(createdAt)
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &m.Metadata); err != nil {
				return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "unmarshalling message metadata")
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// --- RowStore ---

// tableNameRe gates table names interpolated into SQL text; placeholders
// cannot carry identifiers.
var tableNameRe = regexp.MustCompile(`^[A-Za-z_][\w$]*$`)

func (s *Store) GetItem(ctx context.Context, table, id string) (map[string]any, error) {
	if !tableNameRe.MatchString(table) {
		return nil, frontclawerr.Errorf(frontclawerr.CodeInvalidInput, "invalid table name %q", table)
	}

	rows, err := s.Query(ctx, fmt.Sprintf(`SELECT * FROM %s WHERE id = ?`, table), []any{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, frontclawerr.Errorf(frontclawerr.CodeNotFound, "no row %q in table %q", id, table)
	}
	return rows[0], nil
}

func (s *Store) GetItems(ctx context.Context, table string, q store.ItemQuery) ([]map[string]any, error) {
	if !tableNameRe.MatchString(table) {
		return nil, frontclawerr.Errorf(frontclawerr.CodeInvalidInput, "invalid table name %q", table)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `SELECT * FROM %s`, table)
	var args []any

	if len(q.Where) > 0 {
		cols := make([]string, 0, len(q.Where))
		for col := range q.Where {
			if !tableNameRe.MatchString(col) {
				return nil, frontclawerr.Errorf(frontclawerr.CodeInvalidInput, "invalid column name %q", col)
			}
			cols = append(cols, col)
		}
		sort.Strings(cols)

		b.WriteString(" WHERE ")
		for i, col := range cols {
			if i > 0 {
				b.WriteString(" AND ")
			}
			fmt.Fprintf(&b, "%s = ?", col)
			args = append(args, q.Where[col])
		}
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, q.Limit, q.Offset)
	}

	return s.Query(ctx, b.String(), args)
}

func (s *Store) Query(ctx context.Context, query string, params []any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "executing query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "reading columns")
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, frontclawerr.Wrap(err, frontclawerr.CodeInternal, "scanning row")
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
