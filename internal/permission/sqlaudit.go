// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package permission

import (
	"regexp"
	"strings"

	frontclawerr "github.com/frontclaw/frontclaw/pkg/errors"
)

// Audit is the best-effort SQL auditor: it extracts every table reference
// from a single-statement query and classifies the query as read or write.
// It is deliberately regex-based; the db.tables allow-list is the real
// security boundary and the auditor narrows what the guard must check.
type Audit struct {
	Tables []string
	Write  bool
}

var (
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)

	tableRefRe = regexp.MustCompile(`(?i)\b(?:FROM|JOIN|INTO|UPDATE|DELETE\s+FROM)\s+([A-Za-z_"` + "`" + `\[][\w$".\[\]` + "`" + `]*)`)
	writeRe    = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|CREATE|ALTER|DROP|TRUNCATE|REPLACE)\b`)

	identRe = regexp.MustCompile(`^[A-Za-z_][\w$]*$`)
)

// AuditSQL normalizes and audits one SQL text. Multi-statement SQL is
// rejected with INVALID_SQL. When no table can be extracted the caller must
// require wildcard table access, signalled by the single entry "*".
func AuditSQL(sql string) (*Audit, error) {
	normalized := stripComments(sql)
	normalized = elideStringLiterals(normalized)

	if isMultiStatement(normalized) {
		return nil, frontclawerr.New(frontclawerr.CodeInvalidSQL, "multi-statement SQL is not allowed")
	}
	if strings.TrimSpace(normalized) == "" {
		return nil, frontclawerr.New(frontclawerr.CodeInvalidSQL, "empty SQL statement")
	}

	audit := &Audit{Write: writeRe.MatchString(normalized)}

	seen := map[string]bool{}
	for _, match := range tableRefRe.FindAllStringSubmatch(normalized, -1) {
		name, ok := cleanTableName(match[1])
		if !ok {
			continue
		}
		if !seen[name] {
			seen[name] = true
			audit.Tables = append(audit.Tables, name)
		}
	}

	if len(audit.Tables) == 0 {
		audit.Tables = []string{"*"}
	}
	return audit, nil
}

func stripComments(sql string) string {
	sql = blockCommentRe.ReplaceAllString(sql, " ")
	return lineCommentRe.ReplaceAllString(sql, " ")
}

// elideStringLiterals blanks single-quoted literals, honoring '' escapes,
// so semicolons and keywords inside strings cannot confuse the auditor.
func elideStringLiterals(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))

	inString := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if inString {
			if c == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					i++
					continue
				}
				inString = false
			}
			continue
		}
		if c == '\'' {
			inString = true
			b.WriteString("''")
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isMultiStatement(normalized string) bool {
	trimmed := strings.TrimSpace(normalized)
	trimmed = strings.TrimSuffix(trimmed, ";")
	return strings.Contains(trimmed, ";")
}

// cleanTableName takes the final dotted segment of a raw reference and
// strips quoting. Names that do not look like identifiers are discarded,
// which intentionally skips subquery parentheses.
func cleanTableName(raw string) (string, bool) {
	if idx := strings.LastIndex(raw, "."); idx != -1 {
		raw = raw[idx+1:]
	}
	raw = strings.Trim(raw, "\"`[]")
	if !identRe.MatchString(raw) {
		return "", false
	}
	return raw, true
}
