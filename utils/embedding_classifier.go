package utils

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"support-chatbot-backend/config"
	"support-chatbot-backend/models"
)

var ErrNoExamples = errors.New("catalog intents have no examples to embed")

// Embedder turns texts into vectors, one per input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingClassifier predicts the intent whose example centroid is closest
// to the message embedding. Centroids are computed on first use.
type EmbeddingClassifier struct {
	catalog     *config.Catalog
	embedder    Embedder
	extractor   *EntityExtractor
	temperature float64

	mu        sync.Mutex
	centroids map[models.MessageIntent][]float32
}

func NewEmbeddingClassifier(catalog *config.Catalog, embedder Embedder, temperature float64) *EmbeddingClassifier {
	if temperature <= 0 {
		temperature = 0.05
	}
	return &EmbeddingClassifier{
		catalog:     catalog,
		embedder:    embedder,
		extractor:   NewEntityExtractor(),
		temperature: temperature,
	}
}

// Warm embeds the catalog examples if that has not happened yet.
func (ec *EmbeddingClassifier) Warm(ctx context.Context) error {
	_, err := ec.loadCentroids(ctx)
	return err
}

func (ec *EmbeddingClassifier) loadCentroids(ctx context.Context) (map[models.MessageIntent][]float32, error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	if ec.centroids != nil {
		return ec.centroids, nil
	}

	var texts []string
	var owners []models.MessageIntent
	for _, spec := range ec.catalog.Intents {
		for _, ex := range spec.Examples {
			texts = append(texts, Clean(ex))
			owners = append(owners, spec.Name)
		}
	}
	if len(texts) == 0 {
		return nil, ErrNoExamples
	}

	vectors, err := ec.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed catalog examples: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}

	sums := make(map[models.MessageIntent][]float32)
	for i, v := range vectors {
		sum, ok := sums[owners[i]]
		if !ok {
			sum = make([]float32, len(v))
			sums[owners[i]] = sum
		}
		if len(v) != len(sum) {
			return nil, fmt.Errorf("embedding dimension mismatch for intent %s", owners[i])
		}
		for j := range v {
			sum[j] += v[j]
		}
	}

	centroids := make(map[models.MessageIntent][]float32, len(sums))
	for intent, sum := range sums {
		centroids[intent] = normalize(sum)
	}
	ec.centroids = centroids
	return centroids, nil
}

func (ec *EmbeddingClassifier) Classify(ctx context.Context, text string, conv *models.ConversationContext) (*models.ClassificationResult, error) {
	centroids, err := ec.loadCentroids(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.ClassificationResult{
		Entities:      ec.extractor.Extract(text),
		Probabilities: make(map[models.MessageIntent]float64, len(centroids)),
	}
	if strings.TrimSpace(text) == "" {
		result.Intent = ec.catalog.DefaultIntent
		return result, nil
	}

	vectors, err := ec.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed message: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want 1", len(vectors))
	}
	query := normalize(vectors[0])

	// Softmax over cosine similarities, iterating the catalog for a stable
	// tie-break order.
	scores := make(map[models.MessageIntent]float64, len(centroids))
	maxScore := math.Inf(-1)
	for _, spec := range ec.catalog.Intents {
		c, ok := centroids[spec.Name]
		if !ok {
			continue
		}
		s := dot(query, c) / ec.temperature
		scores[spec.Name] = s
		if s > maxScore {
			maxScore = s
		}
	}

	var total float64
	for intent, s := range scores {
		e := math.Exp(s - maxScore)
		scores[intent] = e
		total += e
	}
	for _, spec := range ec.catalog.Intents {
		e, ok := scores[spec.Name]
		if !ok {
			continue
		}
		p := e / total
		result.Probabilities[spec.Name] = p
		if p > result.Confidence {
			result.Intent, result.Confidence = spec.Name, p
		}
	}
	return result, nil
}

func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
