package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"support-chatbot-backend/config"
	"support-chatbot-backend/logger"
	"support-chatbot-backend/utils"
)

var ErrUnknownProvider = errors.New("unknown intent oracle provider")

const oracleWarmTimeout = 60 * time.Second

// NewIntentOracle builds the configured classifier wrapped with the context
// bonuses. The embedding oracle is warmed here so a missing model fails at
// startup rather than on the first message.
func NewIntentOracle(ctx context.Context, cfg *config.Config, catalog *config.Catalog) (IntentOracle, error) {
	var base utils.Classifier

	switch cfg.Oracle.Provider {
	case "rules":
		base = utils.NewIntentClassifier(catalog)
	case "embedding":
		ai, err := NewAIService(cfg.Oracle)
		if err != nil {
			return nil, err
		}

		warmCtx, cancel := context.WithTimeout(ctx, oracleWarmTimeout)
		defer cancel()
		if err := ai.Ping(warmCtx); err != nil {
			return nil, err
		}
		ec := utils.NewEmbeddingClassifier(catalog, ai, cfg.Oracle.SoftmaxTemperature)
		if err := ec.Warm(warmCtx); err != nil {
			return nil, err
		}
		base = ec
		logger.Infof(ctx, "Embedding model %s ready", ai.Model())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Oracle.Provider)
	}

	logger.Infof(ctx, "Using %s intent oracle", cfg.Oracle.Provider)
	return utils.NewContextualClassifier(base, catalog, utils.Bonuses{
		SameIntent:    cfg.Chatbot.SameIntentBonus,
		RelatedIntent: cfg.Chatbot.RelatedIntentBonus,
		Entity:        cfg.Chatbot.EntityBonus,
	}), nil
}
