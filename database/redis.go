package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"support-chatbot-backend/config"
	"support-chatbot-backend/logger"
	"support-chatbot-backend/models"
)

// RedisStore keeps each session transcript as a capped list with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	maxLen int
}

// ConnectRedis creates a Redis-backed transcript store from cfg.
func ConnectRedis(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.BuildDatabaseURI())
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infof(ctx, "Connected to Redis at %s", opts.Addr)
	return NewRedisStore(client, cfg.Database.TranscriptTTL, cfg.Database.TranscriptMaxLen), nil
}

func NewRedisStore(client *redis.Client, ttl time.Duration, maxLen int) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, maxLen: maxLen}
}

func transcriptKey(sessionID string) string {
	return fmt.Sprintf("transcript:%s", sessionID)
}

// SaveMessage appends msg, trims the list to the newest maxLen entries and
// refreshes the TTL in one transaction.
func (s *RedisStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	key := transcriptKey(msg.SessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		if s.maxLen > 0 {
			pipe.LTrim(ctx, key, int64(-s.maxLen), -1)
		}
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append message for session %s: %w", msg.SessionID, err)
	}
	return nil
}

func (s *RedisStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	raw, err := s.client.LRange(ctx, transcriptKey(sessionID), start, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []models.Message{}, nil
		}
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	messages := make([]models.Message, 0, len(raw))
	for _, item := range raw {
		var msg models.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, transcriptKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close(ctx context.Context) error {
	return s.client.Close()
}
