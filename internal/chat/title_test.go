// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package chat_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/frontclaw/frontclaw/internal/chat"
)

func TestDeriveTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{name: "plain", prompt: "How do I cook rice?", want: "How do I cook rice?"},
		{name: "first sentence preferred", prompt: "Explain generics. Use examples and be thorough about variance.", want: "Explain generics."},
		{name: "short first sentence kept whole", prompt: "Hi. What is the capital of France", want: "Hi. What is the capital of France"},
		{name: "code fence stripped", prompt: "Fix this:\n```go\npackage main\n```\nplease", want: "Fix this: please"},
		{name: "url stripped", prompt: "Summarize https://example.com/article for me", want: "Summarize for me"},
		{name: "markdown stripped", prompt: "**Bold** and _italic_ and [link](x)", want: "Bold and italic and linkx"},
		{name: "whitespace collapsed", prompt: "a\n\n  b\t c", want: "a b c"},
		{name: "empty falls back", prompt: "```\nonly code\n```", want: "New conversation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, chat.DeriveTitle(tt.prompt))
		})
	}
}

func TestDeriveTitleLength(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("word ", 100)
	title := chat.DeriveTitle(long)
	assert.LessOrEqual(t, len(title), 150)
	assert.NotEmpty(t, title)
}
