package provider

import (
	"context"
	"errors"

	"github.com/compintel/cibot/config"
	"github.com/compintel/cibot/provider/models"
	openai_provider "github.com/compintel/cibot/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI Client = "openai"
)

// Provider is the interface that all LLM implementations must satisfy.
// One handle is constructed at startup and shared read-only across
// concurrent requests.
type Provider interface {
	// ExtractEntities parses a free-form comparison prompt into exactly
	// two subject entities with search-optimized query strings.
	ExtractEntities(ctx context.Context, prompt string) (models.Extraction, error)
	// GenerateComparison produces a grounded comparison of the two
	// entities from the retrieved context.
	GenerateComparison(ctx context.Context, prompt, entityA, entityB string, chunks []models.ContextChunk) (string, error)
	// CreateEmbedding maps texts to fixed-dimension dense vectors, in
	// 1:1 order correspondence with the input.
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

var ErrUnsupportedProvider = errors.New("unsupported LLM provider")

// NewProvider creates a new LLM client based on the provided configuration
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch Client(cfg.Type) {
	case OpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New("llm api key not set")
		}
		return openai_provider.NewOpenAIClient(
			cfg.APIKey,
			cfg.BaseURL,
			cfg.CompletionModel,
			cfg.EmbeddingModel,
			cfg.EmbeddingDimension,
			cfg.Temperature,
			cfg.MaxTokens,
			cfg.Timeout,
		), nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
