package utils

import (
	"context"
	"math"

	"support-chatbot-backend/config"
	"support-chatbot-backend/models"
)

// Bonuses are the confidence increments granted from conversation context.
type Bonuses struct {
	SameIntent    float64
	RelatedIntent float64
	Entity        float64
}

// ContextualClassifier wraps another classifier and raises its confidence
// when the conversation so far supports the predicted intent.
type ContextualClassifier struct {
	base    Classifier
	catalog *config.Catalog
	bonuses Bonuses
}

func NewContextualClassifier(base Classifier, catalog *config.Catalog, bonuses Bonuses) *ContextualClassifier {
	return &ContextualClassifier{base: base, catalog: catalog, bonuses: bonuses}
}

func (c *ContextualClassifier) Classify(ctx context.Context, text string, conv *models.ConversationContext) (*models.ClassificationResult, error) {
	result, err := c.base.Classify(ctx, text, conv)
	if err != nil || result == nil || conv == nil {
		return result, err
	}
	result.Confidence = c.Adjust(result.Intent, result.Confidence, result.Entities, conv)
	return result, nil
}

// Adjust applies the continuity and entity bonuses. Each bonus is capped at
// 1.0 on its own.
func (c *ContextualClassifier) Adjust(intent models.MessageIntent, confidence float64, entities map[string]string, conv *models.ConversationContext) float64 {
	if intent == "" {
		return confidence
	}

	switch {
	case conv.CurrentIntent == "":
	case conv.CurrentIntent == intent:
		confidence = math.Min(1, confidence+c.bonuses.SameIntent)
	case c.catalog.Related(conv.CurrentIntent, intent):
		confidence = math.Min(1, confidence+c.bonuses.RelatedIntent)
	}

	for _, kind := range c.catalog.RelevantEntities(intent) {
		_, inMessage := entities[kind]
		_, inSession := conv.Entities[kind]
		if inMessage || inSession {
			confidence = math.Min(1, confidence+c.bonuses.Entity)
			break
		}
	}
	return confidence
}
