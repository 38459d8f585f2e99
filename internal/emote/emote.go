// Package emote defines the emote record shared by search, recency and the
// picker, and the query normalization used to key search results.
package emote

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxQueryBytes bounds normalized query text.
const DefaultMaxQueryBytes = 64

// Emote is one searchable, selectable emote.
type Emote struct {
	ID   string `json:"id"`
	Name string `json:"display_name"`
	URL  string `json:"remote_url"`
}

// NormalizeQuery maps raw input text to the canonical query identifier:
// NFC-normalized, lowercased, then truncated to maxBytes on a rune boundary.
// Surrounding whitespace is trimmed both before and after the cut.
// A maxBytes of zero or less means DefaultMaxQueryBytes.
func NormalizeQuery(text string, maxBytes int) string {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxQueryBytes
	}
	q := cases.Lower(language.Und).String(norm.NFC.String(text))
	q = truncateBytes(strings.TrimSpace(q), maxBytes)
	return strings.TrimSpace(q)
}

func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
