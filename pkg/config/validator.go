package config

import (
	"fmt"
	"net/url"
	"regexp"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var collectionRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,62}$`)

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Corpus.Path == "" {
		errors = append(errors, ValidationError{
			Field:   "corpus.path",
			Message: "corpus path is required",
		})
	}

	// Validate Store config
	switch c.Store.Backend {
	case "chromem":
	case "pgvector":
		if c.Store.DatabaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "store.database_url",
				Message: "database URL is required for the pgvector backend",
			})
		} else if u, err := url.Parse(c.Store.DatabaseURL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "store.database_url",
				Message: "invalid database URL",
			})
		}
		if c.Store.VectorDim < 1 {
			errors = append(errors, ValidationError{
				Field:   "store.vector_dim",
				Message: "vector_dim must be positive",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown backend %q (want chromem or pgvector)", c.Store.Backend),
		})
	}

	if !collectionRe.MatchString(c.Store.Collection) {
		errors = append(errors, ValidationError{
			Field:   "store.collection",
			Message: "collection must be 1-63 letters, digits, '_' or '-'",
		})
	} else if c.Store.Backend == "pgvector" && len(c.Store.Collection) > 57 {
		errors = append(errors, ValidationError{
			Field:   "store.collection",
			Message: "collection must be at most 57 characters for the pgvector backend",
		})
	}

	// Validate Embedding config
	errors = append(errors, validateProvider("embedding", c.Embedding.Provider, c.Embedding.APIKey, c.Embedding.BaseURL)...)

	if c.Embedding.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "embedding.rate_limit",
			Message: "rate_limit cannot be negative",
		})
	}

	// Validate LLM config
	errors = append(errors, validateProvider("llm", c.LLM.Provider, c.LLM.APIKey, c.LLM.BaseURL)...)

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature != nil && (*c.LLM.Temperature < 0 || *c.LLM.Temperature > 1) {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 1",
		})
	}

	// Validate Moderation config
	switch c.Moderation.Provider {
	case "none":
	case "openai":
		if c.Moderation.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "moderation.api_key",
				Message: "OpenAI API key is required (set OPENAI_API_KEY)",
			})
		}
		if c.Moderation.BaseURL != "" {
			if u, err := url.Parse(c.Moderation.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				errors = append(errors, ValidationError{
					Field:   "moderation.base_url",
					Message: "invalid base URL",
				})
			}
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "moderation.provider",
			Message: fmt.Sprintf("unknown provider %q (want openai or none)", c.Moderation.Provider),
		})
	}

	// Validate Search config
	if c.Search.MaxK < 1 {
		errors = append(errors, ValidationError{
			Field:   "search.max_k",
			Message: "max_k must be positive",
		})
	}

	if c.Search.K < 1 || c.Search.K > c.Search.MaxK {
		errors = append(errors, ValidationError{
			Field:   "search.k",
			Message: "k must be between 1 and max_k",
		})
	}

	return errors
}

func validateProvider(section, provider, apiKey, baseURL string) []ValidationError {
	var errors []ValidationError

	switch provider {
	case "openai":
		if apiKey == "" {
			errors = append(errors, ValidationError{
				Field:   section + ".api_key",
				Message: "OpenAI API key is required (set OPENAI_API_KEY)",
			})
		}
	case "ollama":
	default:
		errors = append(errors, ValidationError{
			Field:   section + ".provider",
			Message: fmt.Sprintf("unknown provider %q (want openai or ollama)", provider),
		})
	}

	if baseURL != "" {
		if u, err := url.Parse(baseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   section + ".base_url",
				Message: "invalid base URL",
			})
		}
	}

	return errors
}
