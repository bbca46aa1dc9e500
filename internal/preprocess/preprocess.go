// Package preprocess normalizes extracted report text before chunking.
package preprocess

import (
	"regexp"
	"strings"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	// Word characters, whitespace and sentence punctuation survive normalization.
	disallowed = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?;:]`)
)

// Normalize collapses whitespace runs to one space, drops characters other than word
// characters, whitespace and .,!?;: then lowercases and trims.
func Normalize(text string) string {
	text = whitespace.ReplaceAllString(text, " ")
	text = disallowed.ReplaceAllString(text, "")
	return strings.TrimSpace(strings.ToLower(text))
}

// RemoveStopwords drops English stopwords. Words are split on whitespace and compared
// case-insensitively; the remaining words are joined with single spaces.
func RemoveStopwords(text string) string {
	words := strings.Fields(text)
	kept := words[:0]
	for _, w := range words {
		if _, stop := stopwords[strings.ToLower(w)]; !stop {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// Preprocess applies Normalize then RemoveStopwords.
func Preprocess(text string) string {
	return RemoveStopwords(Normalize(text))
}
