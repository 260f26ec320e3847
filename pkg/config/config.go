package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Corpus struct {
		Path string `yaml:"path"`
	} `yaml:"corpus"`

	Store struct {
		Backend     string `yaml:"backend"`
		Path        string `yaml:"path"`
		Compress    bool   `yaml:"compress"`
		Collection  string `yaml:"collection"`
		DatabaseURL string `yaml:"database_url"`
		VectorDim   int    `yaml:"vector_dim"`
	} `yaml:"store"`

	Embedding struct {
		Provider  string  `yaml:"provider"`
		Model     string  `yaml:"model"`
		BaseURL   string  `yaml:"base_url"`
		APIKey    string  `yaml:"api_key"`
		RateLimit float64 `yaml:"rate_limit"`
	} `yaml:"embedding"`

	LLM struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		BaseURL     string  `yaml:"base_url"`
		APIKey      string  `yaml:"api_key"`
		MaxTokens   int     `yaml:"max_tokens"`
		// Temperature is a pointer so an explicit 0 survives defaulting.
		Temperature *float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Moderation struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		BaseURL  string `yaml:"base_url"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"moderation"`

	Search struct {
		K    int `yaml:"k"`
		MaxK int `yaml:"max_k"`
	} `yaml:"search"`

	Server struct {
		Addr      string `yaml:"addr"`
		Streaming bool   `yaml:"streaming"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/shelf/config.yaml"),
			"/etc/shelf/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Corpus.Path == "" {
		config.Corpus.Path = "data/book_summaries.json"
	}

	if config.Store.Backend == "" {
		config.Store.Backend = "chromem"
	}
	if config.Store.Path == "" {
		config.Store.Path = ".chroma"
	}
	if config.Store.Collection == "" {
		config.Store.Collection = "books"
	}
	if config.Store.VectorDim == 0 {
		config.Store.VectorDim = 1536
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "openai"
	}
	if config.Embedding.Model == "" {
		switch config.Embedding.Provider {
		case "ollama":
			config.Embedding.Model = "nomic-embed-text:latest"
		default:
			config.Embedding.Model = "text-embedding-3-small"
		}
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	if config.LLM.Model == "" {
		switch config.LLM.Provider {
		case "ollama":
			config.LLM.Model = "mistral"
		default:
			config.LLM.Model = "gpt-4o-mini"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == nil {
		temperature := 0.3
		config.LLM.Temperature = &temperature
	}

	if config.Moderation.Provider == "" {
		switch config.LLM.Provider {
		case "openai":
			config.Moderation.Provider = "openai"
		default:
			config.Moderation.Provider = "none"
		}
	}
	if config.Moderation.Provider == "openai" && config.Moderation.Model == "" {
		config.Moderation.Model = "omni-moderation-latest"
	}

	if config.Search.K == 0 {
		config.Search.K = 3
	}
	if config.Search.MaxK == 0 {
		config.Search.MaxK = 5
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
}

func mergeWithEnv(config *Config) {
	if path := os.Getenv("CORPUS_PATH"); path != "" {
		config.Corpus.Path = path
	}
	if dir := os.Getenv("CHROMA_DIR"); dir != "" {
		config.Store.Path = dir
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Store.DatabaseURL = dbURL
	}
	if model := os.Getenv("EMBEDDING_MODEL"); model != "" {
		config.Embedding.Model = model
	}
	if model := os.Getenv("CHAT_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if config.Embedding.APIKey == "" {
			config.Embedding.APIKey = key
		}
		if config.LLM.APIKey == "" {
			config.LLM.APIKey = key
		}
		if config.Moderation.APIKey == "" {
			config.Moderation.APIKey = key
		}
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if config.Embedding.Provider == "ollama" {
			config.Embedding.BaseURL = baseURL
		}
		if config.LLM.Provider == "ollama" {
			config.LLM.BaseURL = baseURL
		}
	}
}
