package utils

import (
	"context"
	"math"

	"support-chatbot-backend/config"
	"support-chatbot-backend/models"
)

const (
	ruleMatchConfidence   = 0.6
	ruleHitIncrement      = 0.15
	ruleMaxConfidence     = 0.95
	ruleNoMatchConfidence = 0.3
)

// Classifier is the contract every intent oracle satisfies.
type Classifier interface {
	Classify(ctx context.Context, text string, conv *models.ConversationContext) (*models.ClassificationResult, error)
}

// IntentClassifier matches catalog keywords against the message. It is the
// fallback oracle when no embedding model is configured.
type IntentClassifier struct {
	catalog   *config.Catalog
	extractor *EntityExtractor
}

func NewIntentClassifier(catalog *config.Catalog) *IntentClassifier {
	return &IntentClassifier{
		catalog:   catalog,
		extractor: NewEntityExtractor(),
	}
}

// Classify scores each intent by the number of its keywords found in text.
// The best-scoring intent wins, ties going to the one listed first.
func (ic *IntentClassifier) Classify(ctx context.Context, text string, conv *models.ConversationContext) (*models.ClassificationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	padded := tokenize(text)
	hits := make(map[models.MessageIntent]int, len(ic.catalog.Intents))
	total := 0
	var best models.MessageIntent
	bestHits := 0

	for _, spec := range ic.catalog.Intents {
		n := 0
		for _, kw := range spec.Keywords {
			if hasPhrase(padded, kw) {
				n++
			}
		}
		if n == 0 {
			continue
		}
		hits[spec.Name] = n
		total += n
		if n > bestHits {
			best, bestHits = spec.Name, n
		}
	}

	result := &models.ClassificationResult{
		Entities:      ic.extractor.Extract(text),
		Probabilities: make(map[models.MessageIntent]float64, len(ic.catalog.Intents)),
	}

	if bestHits == 0 {
		result.Intent = ic.catalog.DefaultIntent
		result.Confidence = ruleNoMatchConfidence
		share := 1 / float64(len(ic.catalog.Intents))
		for _, spec := range ic.catalog.Intents {
			result.Probabilities[spec.Name] = share
		}
		return result, nil
	}

	result.Intent = best
	result.Confidence = math.Min(ruleMaxConfidence, ruleMatchConfidence+ruleHitIncrement*float64(bestHits-1))
	for _, spec := range ic.catalog.Intents {
		result.Probabilities[spec.Name] = float64(hits[spec.Name]) / float64(total)
	}
	return result, nil
}
