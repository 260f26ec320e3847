package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/xhad/shelf/internal/models"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider        string
	Model           string
	Temperature     float64
	MaxTokens       int
	SystemTemplate  string
	ContextTemplate string
	BaseURL         string
	APIKey          string
}

// Recommendation is the model's pick among the retrieved books.
type Recommendation struct {
	// Title is the book the answer names, see MatchTitle.
	Title string
	Text  string
}

// ChatEngine is an engine that uses an LLM to recommend a single book.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

const defaultSystemTemplate = "Ești un asistent bibliotecar. Pe baza fragmentelor recuperate, recomandă O SINGURĂ carte potrivită. " +
	"Răspunde concis în română: titlul recomandat pe prima linie, apoi 2–4 motive pe linii noi. " +
	"Nu inventa titluri și nu recomanda mai multe deodată."

const defaultContextTemplate = "Întrebare: %s\n\nCărți candidate:\n%s\n\nAlege o singură carte din cele de mai sus."

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Provider == "" {
		config.Provider = ProviderOpenAI
	}

	var model llms.Model
	switch config.Provider {
	case ProviderOpenAI:
		if config.Model == "" {
			config.Model = "gpt-4o-mini"
		}
		opts := []openai.Option{openai.WithModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		m, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		model = m
	case ProviderOllama:
		if config.Model == "" {
			config.Model = "mistral" // Default Ollama model
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		m, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		model = m
	default:
		return nil, fmt.Errorf("unknown llm provider %q", config.Provider)
	}

	return NewWithModel(model, config)
}

// NewWithModel builds a ChatEngine around an already constructed model.
func NewWithModel(model llms.Model, config ChatConfig) (*ChatEngine, error) {
	if config.Temperature < 0 || config.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = defaultSystemTemplate
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = defaultContextTemplate
	}

	return &ChatEngine{
		config: config,
		llm:    model,
	}, nil
}

func (ce *ChatEngine) messages(query string, hits []models.SearchHit) []llms.MessageContent {
	var contextBuilder strings.Builder
	for i, hit := range hits {
		if i > 0 {
			contextBuilder.WriteString("\n\n")
		}
		contextBuilder.WriteString(fmt.Sprintf("- %s: %s", hit.Title, hit.Doc))
	}

	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(ce.config.ContextTemplate, query, contextBuilder.String())),
	}
}

func (ce *ChatEngine) callOptions() []llms.CallOption {
	return []llms.CallOption{
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	}
}

// Recommend asks the model to pick one of hits for query.
func (ce *ChatEngine) Recommend(ctx context.Context, query string, hits []models.SearchHit) (*Recommendation, error) {
	if len(hits) == 0 {
		return nil, fmt.Errorf("no candidate books to recommend from")
	}

	resp, err := ce.llm.GenerateContent(ctx, ce.messages(query, hits), ce.callOptions()...)
	if err != nil {
		return nil, fmt.Errorf("chat error: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, fmt.Errorf("chat error: no response from LLM")
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	return &Recommendation{
		Title: MatchTitle(text, hits),
		Text:  text,
	}, nil
}

// StreamChunk is one piece of a streamed answer. Err is set only on the last
// chunk, when generation failed.
type StreamChunk struct {
	Text string
	Err  error
}

// RecommendStream streams the answer chunk by chunk. The channel closes when
// the model finishes; callers must drain it.
func (ce *ChatEngine) RecommendStream(ctx context.Context, query string, hits []models.SearchHit) (<-chan StreamChunk, error) {
	if len(hits) == 0 {
		return nil, fmt.Errorf("no candidate books to recommend from")
	}

	resultChan := make(chan StreamChunk)
	content := ce.messages(query, hits)

	go func() {
		defer close(resultChan)

		opts := append(ce.callOptions(), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			select {
			case resultChan <- StreamChunk{Text: string(chunk)}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}))

		if _, err := ce.llm.GenerateContent(ctx, content, opts...); err != nil {
			select {
			case resultChan <- StreamChunk{Err: fmt.Errorf("chat error: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return resultChan, nil
}

// MatchTitle finds which book the answer recommends. The candidate title
// appearing earliest anywhere in the answer wins; with none present the
// first non-empty line, stripped of markup and quotes, is returned as is.
func MatchTitle(answer string, hits []models.SearchHit) string {
	lower := strings.ToLower(answer)

	best, bestPos := "", -1
	for _, hit := range hits {
		title := strings.ToLower(strings.TrimSpace(hit.Title))
		if title == "" {
			continue
		}
		if pos := strings.Index(lower, title); pos >= 0 && (bestPos < 0 || pos < bestPos) {
			best, bestPos = hit.Title, pos
		}
	}
	if bestPos >= 0 {
		return best
	}

	return firstLine(answer)
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "*#\"'„”“ ")
		if line != "" {
			return line
		}
	}
	return ""
}
