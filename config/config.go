package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port        string
	Environment string

	// Transcript storage
	Database DatabaseConfig

	// Conversation pipeline
	Chatbot ChatbotConfig

	// Intent oracle
	Oracle OracleConfig

	// WhatsApp channel
	WhatsApp WhatsAppConfig

	// Security
	Security SecurityConfig

	// Logging
	Logging LoggingConfig
}

type DatabaseConfig struct {
	Type     string // "none", "mongodb" or "redis"
	URI      string
	Name     string
	Host     string
	Port     string
	Username string
	Password string

	// Connection pool settings
	MaxConnections int
	MinConnections int
	MaxIdleTime    time.Duration

	// Redis transcript lists
	RedisURL         string
	TranscriptTTL    time.Duration
	TranscriptMaxLen int

	// Size of the worker pool writing transcripts
	Workers int
}

type ChatbotConfig struct {
	ConfidenceThreshold float64
	MaxHistory          int
	SessionMaxAge       time.Duration
	SweepInterval       time.Duration
	ModelVersion        string
	CatalogPath         string

	// Context bonuses applied on top of the oracle confidence
	SameIntentBonus    float64
	RelatedIntentBonus float64
	EntityBonus        float64
}

type OracleConfig struct {
	Provider           string // "rules" or "embedding"
	OllamaHost         string
	EmbeddingModel     string
	SoftmaxTemperature float64
}

type WhatsAppConfig struct {
	APIURL        string
	APIVersion    string
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	AppSecret     string
}

type SecurityConfig struct {
	RateLimitPerMin int
	AllowedOrigins  []string
	TrustedProxies  []string

	// Admin routes are only registered when a key is set
	AdminAPIKey string
}

type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
	File   string
}

// Load initializes the configuration from the environment and an optional
// .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	c := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		Database: DatabaseConfig{
			Type:     getEnv("DB_TYPE", "none"),
			URI:      getEnv("DATABASE_URL", ""),
			Name:     getEnv("DB_NAME", "support_chatbot"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "27017"),
			Username: getEnv("DB_USERNAME", ""),
			Password: getEnv("DB_PASSWORD", ""),

			MaxConnections: getEnvAsInt("DB_MAX_CONNECTIONS", 100),
			MinConnections: getEnvAsInt("DB_MIN_CONNECTIONS", 10),
			MaxIdleTime:    getEnvAsDuration("DB_MAX_IDLE_TIME", "30m"),

			RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
			TranscriptTTL:    getEnvAsDuration("TRANSCRIPT_TTL", "168h"),
			TranscriptMaxLen: getEnvAsInt("TRANSCRIPT_MAX_LEN", 500),

			Workers: getEnvAsInt("TRANSCRIPT_WORKERS", 8),
		},

		Chatbot: ChatbotConfig{
			ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.7),
			MaxHistory:          getEnvAsInt("MAX_HISTORY", 50),
			SessionMaxAge:       getEnvAsDuration("SESSION_MAX_AGE", "24h"),
			SweepInterval:       getEnvAsDuration("SESSION_SWEEP_INTERVAL", "10m"),
			ModelVersion:        getEnv("MODEL_VERSION", "1.0.0"),
			CatalogPath:         getEnv("CATALOG_PATH", ""),

			SameIntentBonus:    getEnvAsFloat("SAME_INTENT_BONUS", 0.1),
			RelatedIntentBonus: getEnvAsFloat("RELATED_INTENT_BONUS", 0.05),
			EntityBonus:        getEnvAsFloat("ENTITY_BONUS", 0.05),
		},

		Oracle: OracleConfig{
			Provider:           getEnv("ORACLE_PROVIDER", "rules"),
			OllamaHost:         getEnv("OLLAMA_HOST", ""),
			EmbeddingModel:     getEnv("EMBEDDING_MODEL", "all-minilm:l6-v2"),
			SoftmaxTemperature: getEnvAsFloat("SOFTMAX_TEMPERATURE", 0.05),
		},

		WhatsApp: WhatsAppConfig{
			APIURL:        getEnv("WHATSAPP_API_URL", "https://graph.facebook.com"),
			APIVersion:    getEnv("WHATSAPP_API_VERSION", "v18.0"),
			AccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
			PhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
			VerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
			AppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		},

		Security: SecurityConfig{
			RateLimitPerMin: getEnvAsInt("RATE_LIMIT_PER_MIN", 60),
			AllowedOrigins:  getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
			TrustedProxies:  getEnvAsSlice("TRUSTED_PROXIES", []string{}),
			AdminAPIKey:     getEnv("ADMIN_API_KEY", ""),
		},

		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
			File:   getEnv("LOG_FILE", ""),
		},
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return c, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Validate checks the settings that would otherwise fail per request.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "none", "redis":
	case "mongodb":
		if c.Database.URI == "" && (c.Database.Host == "" || c.Database.Port == "") {
			return fmt.Errorf("database URI or host/port must be provided")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if !inUnitRange(c.Chatbot.ConfidenceThreshold) {
		return fmt.Errorf("confidence threshold must be within [0,1], got %v", c.Chatbot.ConfidenceThreshold)
	}
	if c.Chatbot.MaxHistory <= 0 {
		return fmt.Errorf("max history must be positive, got %d", c.Chatbot.MaxHistory)
	}
	for name, bonus := range map[string]float64{
		"SAME_INTENT_BONUS":    c.Chatbot.SameIntentBonus,
		"RELATED_INTENT_BONUS": c.Chatbot.RelatedIntentBonus,
		"ENTITY_BONUS":         c.Chatbot.EntityBonus,
	} {
		if !inUnitRange(bonus) {
			return fmt.Errorf("%s must be within [0,1], got %v", name, bonus)
		}
	}

	switch c.Oracle.Provider {
	case "rules", "embedding":
	default:
		return fmt.Errorf("unsupported oracle provider: %s", c.Oracle.Provider)
	}

	if c.Database.Workers <= 0 {
		return fmt.Errorf("transcript workers must be positive, got %d", c.Database.Workers)
	}

	return nil
}

// inUnitRange rejects NaN, which compares false against both bounds.
func inUnitRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// WhatsAppEnabled reports whether the WhatsApp channel has credentials.
func (c *Config) WhatsAppEnabled() bool {
	return c.WhatsApp.AccessToken != "" && c.WhatsApp.PhoneNumberID != "" && c.WhatsApp.VerifyToken != ""
}

// BuildDatabaseURI constructs the database URI if not provided
func (c *Config) BuildDatabaseURI() string {
	if c.Database.URI != "" {
		return c.Database.URI
	}

	switch c.Database.Type {
	case "mongodb":
		if c.Database.Username != "" && c.Database.Password != "" {
			return fmt.Sprintf("mongodb://%s:%s@%s:%s/%s",
				c.Database.Username,
				c.Database.Password,
				c.Database.Host,
				c.Database.Port,
				c.Database.Name,
			)
		}
		return fmt.Sprintf("mongodb://%s:%s/%s",
			c.Database.Host,
			c.Database.Port,
			c.Database.Name,
		)
	case "redis":
		return c.Database.RedisURL
	default:
		return ""
	}
}
