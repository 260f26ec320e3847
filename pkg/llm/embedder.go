package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/xhad/shelf/internal/types"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// EmbedderConfig represents the configuration for an embedder.
type EmbedderConfig struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	RateLimit float64 // requests per second, 0 disables throttling

	// OnEmbed is called after every successful embedding request.
	OnEmbed func(text string)
}

// Embedder turns text into vectors through a langchaingo embedding client.
type Embedder struct {
	config  EmbedderConfig
	embed   embeddings.Embedder
	limiter *rate.Limiter
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Provider == "" {
		config.Provider = ProviderOpenAI
	}

	var client embeddings.EmbedderClient
	switch config.Provider {
	case ProviderOpenAI:
		if config.Model == "" {
			config.Model = "text-embedding-3-small"
		}
		opts := []openai.Option{openai.WithEmbeddingModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		c, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai embedder: %w", err)
		}
		client = c
	case ProviderOllama:
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		c, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama embedder: %w", err)
		}
		client = c
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}

	return NewEmbedderWithClient(client, config)
}

// NewEmbedderWithClient wraps an existing langchaingo embedding client.
func NewEmbedderWithClient(client embeddings.EmbedderClient, config EmbedderConfig) (*Embedder, error) {
	emb, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	e := &Embedder{config: config, embed: emb}
	if config.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return e, nil
}

// Model names the embedding model; collections record it at creation.
func (e *Embedder) Model() string {
	return e.config.Model
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	vec, err := e.embed.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedding model %s returned an empty vector", e.config.Model)
	}

	if e.config.OnEmbed != nil {
		e.config.OnEmbed(text)
	}
	return vec, nil
}

// Func exposes the embedder in the shape vector stores expect.
func (e *Embedder) Func() types.EmbeddingFunc {
	return e.EmbedQuery
}
