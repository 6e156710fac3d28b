package util

import (
	"strings"
)

// RemoveNulls strips NUL characters, which Postgres text columns reject.
func RemoveNulls(s string) string {
	if !strings.ContainsRune(s, 0) {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// CleanText returns a NUL-free copy of *p, or nil when p is nil.
func CleanText(p *string) *string {
	if p == nil {
		return nil
	}
	s := RemoveNulls(*p)
	return &s
}

// FoldTag case-folds a hashtag or cashtag and prefixes it with its sigil.
func FoldTag(sigil, text string) string {
	return sigil + strings.ToLower(RemoveNulls(text))
}

// JoinCountries joins withheld-country codes with commas. Empty lists are unknown.
func JoinCountries(codes []string) *string {
	if len(codes) == 0 {
		return nil
	}
	s := RemoveNulls(strings.Join(codes, ","))
	return &s
}
