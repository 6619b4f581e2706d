package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"support-chatbot-backend/config"
)

// AIService talks to an Ollama server for sentence embeddings.
type AIService struct {
	client *api.Client
	model  string
}

// NewAIService builds a client for cfg.OllamaHost, or from OLLAMA_HOST when
// no host is configured.
func NewAIService(cfg config.OracleConfig) (*AIService, error) {
	var client *api.Client
	if cfg.OllamaHost != "" {
		base, err := url.Parse(cfg.OllamaHost)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", cfg.OllamaHost, err)
		}
		client = api.NewClient(base, &http.Client{Timeout: 30 * time.Second})
	} else {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		client = c
	}

	return &AIService{
		client: client,
		model:  cfg.EmbeddingModel,
	}, nil
}

func (s *AIService) Model() string {
	return s.model
}

// Embed returns one vector per input text.
func (s *AIService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := s.client.Embed(ctx, &api.EmbedRequest{
		Model: s.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// Ping checks that the server answers and the model is available.
func (s *AIService) Ping(ctx context.Context) error {
	if _, err := s.client.Show(ctx, &api.ShowRequest{Model: s.model}); err != nil {
		return fmt.Errorf("ollama model %s unavailable: %w", s.model, err)
	}
	return nil
}
