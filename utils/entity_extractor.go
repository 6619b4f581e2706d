package utils

import "regexp"

type entityPattern struct {
	kind    string
	pattern *regexp.Regexp
}

// EntityExtractor pulls structured values out of normalized text. The first
// match per kind wins.
type EntityExtractor struct {
	patterns []entityPattern
}

func NewEntityExtractor() *EntityExtractor {
	return &EntityExtractor{
		patterns: []entityPattern{
			{"email", regexp.MustCompile(`[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)},
			{"order_number", regexp.MustCompile(`(?:\border(?:\s+(?:number|no|num))?\s*[:#]?\s*#?|#)([a-z]{0,3}-?\d{4,12})\b`)},
			{"error_code", regexp.MustCompile(`\berror(?:\s+code)?\s*[:#]?\s*([a-z]{0,3}-?\d{2,5})\b`)},
			{"amount", regexp.MustCompile(`[$€£]\s?\d+(?:[.,]\d{1,2})?|\b\d+(?:[.,]\d{1,2})?\s?(?:usd|eur|gbp|dollars|euros)\b`)},
			{"phone", regexp.MustCompile(`\+\d{1,3}[\s.-]?\(?\d{1,4}\)?(?:[\s.-]?\d{2,4}){2,4}|\(?\b\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}\b`)},
			{"date", regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b|\b(?:today|yesterday|tomorrow|last week|next week)\b`)},
			{"device", regexp.MustCompile(`\b(iphone|ipad|android|pixel|galaxy|macbook|mac|windows|linux|laptop|tablet)\b`)},
		},
	}
}

// Extract returns the entities found in text keyed by kind.
func (e *EntityExtractor) Extract(text string) map[string]string {
	entities := make(map[string]string)
	for _, p := range e.patterns {
		m := p.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value := m[0]
		if len(m) > 1 && m[1] != "" {
			value = m[1]
		}
		entities[p.kind] = value
	}
	return entities
}
