package utils

import (
	"slices"

	"support-chatbot-backend/config"
)

// MaxSuggestions caps the quick replies attached to any response.
const MaxSuggestions = 3

// KeywordSuggestions scans the raw message for the vocabulary of each
// suggestion cluster and collects the canned replies of every cluster hit.
func KeywordSuggestions(message string, clusters []config.SuggestionCluster) []string {
	padded := tokenize(message)
	var out []string
	for _, cluster := range clusters {
		if !containsAnyPhrase(padded, cluster.Keywords) {
			continue
		}
		out = AppendSuggestions(out, cluster.Suggestions...)
		if len(out) >= MaxSuggestions {
			break
		}
	}
	return out
}

// AppendSuggestions adds candidates not already present, stopping at
// MaxSuggestions.
func AppendSuggestions(dst []string, candidates ...string) []string {
	for _, s := range candidates {
		if len(dst) >= MaxSuggestions {
			break
		}
		if s == "" || slices.Contains(dst, s) {
			continue
		}
		dst = append(dst, s)
	}
	return dst
}
