package ai

import (
	"regexp"
	"strings"
)

// Assistant output with file_search enabled carries inline citation
// markers like 【4:0†source】 that mean nothing outside the provider UI.
var (
	citationRe   = regexp.MustCompile(`【\d+:\d+†source】`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	punctSpaceRe = regexp.MustCompile(`\s+([.,!?;:])`)
)

// StripCitations removes citation markers and tidies the whitespace they
// leave behind.
func StripCitations(text string) string {
	if text == "" {
		return text
	}
	cleaned := citationRe.ReplaceAllString(text, "")
	cleaned = whitespaceRe.ReplaceAllString(cleaned, " ")
	cleaned = punctSpaceRe.ReplaceAllString(cleaned, "$1")
	return strings.TrimSpace(cleaned)
}
