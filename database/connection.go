package database

import (
	"context"
	"fmt"
	"time"

	"support-chatbot-backend/config"
	"support-chatbot-backend/models"
)

// Repository is durable transcript storage for chat exchanges.
type Repository interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Connect opens the transcript store selected by cfg. It returns a nil
// repository when storage is disabled.
func Connect(ctx context.Context, cfg *config.Config) (Repository, error) {
	switch cfg.Database.Type {
	case "none":
		return nil, nil
	case "mongodb":
		store, err := ConnectMongoDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "redis":
		store, err := ConnectRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
}

// HealthCheck pings repo. Disabled storage is always healthy.
func HealthCheck(ctx context.Context, repo Repository) error {
	if repo == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return repo.Ping(ctx)
}

// Disconnect closes repo if there is one.
func Disconnect(repo Repository) error {
	if repo == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return repo.Close(ctx)
}
