// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package chat

import (
	"regexp"
	"strings"
)

const (
	maxTitleLen      = 150
	minSentenceChars = 8
)

var (
	codeFenceRe  = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`[^`]*`")
	urlRe        = regexp.MustCompile(`https?://\S+`)
	markdownRe   = regexp.MustCompile(`[*_~#>\[\]()]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	sentenceRe   = regexp.MustCompile(`[.!?]\s`)
)

// DeriveTitle turns a prompt into a conversation title: code fences,
// markdown markup, and URLs are stripped, whitespace collapsed, and the
// result cut to 150 characters preferring the first sentence of at least
// 8 characters.
func DeriveTitle(prompt string) string {
	s := codeFenceRe.ReplaceAllString(prompt, " ")
	s = inlineCodeRe.ReplaceAllString(s, " ")
	s = urlRe.ReplaceAllString(s, " ")
	s = markdownRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if s == "" {
		return "New conversation"
	}

	if loc := sentenceRe.FindStringIndex(s); loc != nil {
		sentence := strings.TrimSpace(s[:loc[0]+1])
		if len(sentence) >= minSentenceChars {
			s = sentence
		}
	}

	if len(s) > maxTitleLen {
		cut := s[:maxTitleLen]
		if idx := strings.LastIndex(cut, " "); idx > maxTitleLen/2 {
			cut = cut[:idx]
		}
		s = strings.TrimSpace(cut)
	}
	return s
}
