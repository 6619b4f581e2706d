package database

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"support-chatbot-backend/config"
	"support-chatbot-backend/logger"
	"support-chatbot-backend/models"
)

const messagesCollection = "messages"

// MongoStore keeps transcripts in the messages collection.
type MongoStore struct {
	client   *mongo.Client
	messages *mongo.Collection
}

// ConnectMongoDB establishes connection to MongoDB
func ConnectMongoDB(ctx context.Context, cfg *config.Config) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.BuildDatabaseURI()).
		SetMaxPoolSize(uint64(cfg.Database.MaxConnections)).
		SetMinPoolSize(uint64(cfg.Database.MinConnections)).
		SetMaxConnIdleTime(cfg.Database.MaxIdleTime)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := NewMongoStore(client.Database(cfg.Database.Name))
	logger.Infof(ctx, "Connected to MongoDB database: %s", cfg.Database.Name)

	if err := store.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:   db.Client(),
		messages: db.Collection(messagesCollection),
	}
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "session_id", Value: 1},
				{Key: "timestamp", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "intent", Value: 1}},
		},
	}

	if _, err := s.messages.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	logger.Info(ctx, "Database indexes created successfully")
	return nil
}

func (s *MongoStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	if _, err := s.messages.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to insert message for session %s: %w", msg.SessionID, err)
	}
	return nil
}

// ListMessages returns the latest limit messages of a session, oldest first.
// A non-positive limit returns them all.
func (s *MongoStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.messages.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := []models.Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

func (s *MongoStore) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.messages.DeleteMany(ctx, bson.M{"session_id": sessionID}); err != nil {
		return fmt.Errorf("failed to delete messages for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the MongoDB client
func (s *MongoStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	logger.Info(ctx, "Disconnected from MongoDB")
	return nil
}
