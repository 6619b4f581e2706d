package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "none", cfg.Database.Type)
	assert.Equal(t, 0.7, cfg.Chatbot.ConfidenceThreshold)
	assert.Equal(t, 50, cfg.Chatbot.MaxHistory)
	assert.Equal(t, 24*time.Hour, cfg.Chatbot.SessionMaxAge)
	assert.Equal(t, 0.1, cfg.Chatbot.SameIntentBonus)
	assert.Equal(t, 0.05, cfg.Chatbot.RelatedIntentBonus)
	assert.Equal(t, 0.05, cfg.Chatbot.EntityBonus)
	assert.Equal(t, "1.0.0", cfg.Chatbot.ModelVersion)
	assert.Equal(t, "rules", cfg.Oracle.Provider)
	assert.Empty(t, cfg.Security.AdminAPIKey)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CONFIDENCE_THRESHOLD", "0.55")
	t.Setenv("MAX_HISTORY", "10")
	t.Setenv("SESSION_MAX_AGE", "2h")
	t.Setenv("SAME_INTENT_BONUS", "0.2")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DB_TYPE", "redis")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("ADMIN_API_KEY", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.55, cfg.Chatbot.ConfidenceThreshold)
	assert.Equal(t, 10, cfg.Chatbot.MaxHistory)
	assert.Equal(t, 2*time.Hour, cfg.Chatbot.SessionMaxAge)
	assert.Equal(t, 0.2, cfg.Chatbot.SameIntentBonus)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, "redis://cache:6379/1", cfg.BuildDatabaseURI())
	assert.Equal(t, "s3cret", cfg.Security.AdminAPIKey)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct{ key, value string }{
		{"CONFIDENCE_THRESHOLD", "1.5"},
		{"CONFIDENCE_THRESHOLD", "NaN"},
		{"MAX_HISTORY", "0"},
		{"ENTITY_BONUS", "-0.1"},
		{"SAME_INTENT_BONUS", "nan"},
		{"ORACLE_PROVIDER", "magic"},
		{"DB_TYPE", "postgres"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestBuildDatabaseURI_Mongo(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Type:     "mongodb",
		Host:     "db",
		Port:     "27017",
		Name:     "support",
		Username: "bot",
		Password: "secret",
	}}
	assert.Equal(t, "mongodb://bot:secret@db:27017/support", cfg.BuildDatabaseURI())

	cfg.Database.URI = "mongodb://override"
	assert.Equal(t, "mongodb://override", cfg.BuildDatabaseURI())
}
