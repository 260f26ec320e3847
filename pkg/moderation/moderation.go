// Package moderation screens user queries before they reach search.
package moderation

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// Moderator reports whether text may be processed.
type Moderator interface {
	Allowed(ctx context.Context, text string) (bool, error)
}

// Noop allows everything. It stands in when no moderation endpoint exists,
// as with a local Ollama setup.
type Noop struct{}

func (Noop) Allowed(ctx context.Context, text string) (bool, error) {
	return true, nil
}

type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// New returns the moderator for config.Provider.
func New(config Config) (Moderator, error) {
	switch config.Provider {
	case "", ProviderNone:
		return Noop{}, nil
	case ProviderOpenAI:
		m, err := NewOpenAI(config)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown moderation provider %q", config.Provider)
	}
}

type moderationClient interface {
	Moderations(ctx context.Context, request openai.ModerationRequest) (openai.ModerationResponse, error)
}

// OpenAIModerator calls the OpenAI moderation endpoint.
type OpenAIModerator struct {
	client moderationClient
	model  string
}

func NewOpenAI(config Config) (*OpenAIModerator, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required for moderation")
	}
	if config.Model == "" {
		config.Model = openai.ModerationOmniLatest
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIModerator{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.Model,
	}, nil
}

// Allowed is false when any result is flagged.
func (m *OpenAIModerator) Allowed(ctx context.Context, text string) (bool, error) {
	resp, err := m.client.Moderations(ctx, openai.ModerationRequest{
		Model: m.model,
		Input: text,
	})
	if err != nil {
		return false, fmt.Errorf("moderation request failed: %w", err)
	}
	if len(resp.Results) == 0 {
		return false, fmt.Errorf("moderation returned no results")
	}

	for _, r := range resp.Results {
		if r.Flagged {
			return false, nil
		}
	}
	return true, nil
}

// Allow fails open: a moderator error is logged and the text is let through.
// A nil moderator allows everything.
func Allow(ctx context.Context, m Moderator, text string, logger *zap.Logger) bool {
	if m == nil {
		return true
	}
	ok, err := m.Allowed(ctx, text)
	if err != nil {
		if logger != nil {
			logger.Warn("moderation check failed, allowing query", zap.Error(err))
		}
		return true
	}
	return ok
}
