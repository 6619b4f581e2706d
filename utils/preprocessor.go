package utils

import (
	"regexp"
	"strings"
)

var (
	urlPattern     = regexp.MustCompile(`(?:https?://|www\.)\S+`)
	mentionPattern = regexp.MustCompile(`(^|\s)@\w+`)
	hashtagPattern = regexp.MustCompile(`(^|\s)#[\p{L}_]\w*`)
	spacePattern   = regexp.MustCompile(`\s+`)
	nonWordPattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// Clean normalizes a raw user message: lower-case, URLs, @mentions and
// #hashtags removed, whitespace collapsed. Numeric tags such as "#12345" are
// kept since they usually carry an order number.
func Clean(text string) string {
	text = strings.ToLower(text)
	text = urlPattern.ReplaceAllString(text, " ")
	text = mentionPattern.ReplaceAllString(text, "$1")
	text = hashtagPattern.ReplaceAllString(text, "$1")
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// tokenize reduces text to space-separated words padded with a leading and
// trailing space, so phrases can be matched on word boundaries.
func tokenize(text string) string {
	words := strings.TrimSpace(nonWordPattern.ReplaceAllString(strings.ToLower(text), " "))
	return " " + words + " "
}

// hasPhrase matches phrase against text already passed through tokenize.
func hasPhrase(padded, phrase string) bool {
	p := tokenize(phrase)
	return strings.TrimSpace(p) != "" && strings.Contains(padded, p)
}

func containsAnyPhrase(padded string, phrases []string) bool {
	for _, phrase := range phrases {
		if hasPhrase(padded, phrase) {
			return true
		}
	}
	return false
}
