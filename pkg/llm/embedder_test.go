package llm_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/shelf/pkg/llm"
)

type fakeEmbedClient struct {
	calls int
	err   error
	dim   int
}

func (c *fakeEmbedClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, c.dim)
		for j := range vec {
			vec[j] = float32(len(text) + j)
		}
		out[i] = vec
	}
	return out, nil
}

func TestEmbedder_Func(t *testing.T) {
	client := &fakeEmbedClient{dim: 4}
	var seen []string
	emb, err := llm.NewEmbedderWithClient(client, llm.EmbedderConfig{
		Model:   "fake",
		OnEmbed: func(text string) { seen = append(seen, text) },
	})
	require.NoError(t, err)

	vec, err := emb.Func()(context.Background(), "dune")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 5, 6, 7}, vec)
	assert.Equal(t, []string{"dune"}, seen)
	assert.Equal(t, "fake", emb.Model())
}

func TestEmbedder_Errors(t *testing.T) {
	emb, err := llm.NewEmbedderWithClient(&fakeEmbedClient{err: errors.New("401 unauthorized")}, llm.EmbedderConfig{})
	require.NoError(t, err)
	_, err = emb.EmbedQuery(context.Background(), "dune")
	assert.ErrorContains(t, err, "401 unauthorized")

	emb, err = llm.NewEmbedderWithClient(&fakeEmbedClient{dim: 0}, llm.EmbedderConfig{})
	require.NoError(t, err)
	_, err = emb.EmbedQuery(context.Background(), "dune")
	assert.Error(t, err)
}

func TestEmbedder_RateLimitHonoursContext(t *testing.T) {
	client := &fakeEmbedClient{dim: 2}
	emb, err := llm.NewEmbedderWithClient(client, llm.EmbedderConfig{RateLimit: 0.001})
	require.NoError(t, err)

	_, err = emb.EmbedQuery(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = emb.EmbedQuery(ctx, "second")
	assert.Error(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestNewEmbedderWithConfig_UnknownProvider(t *testing.T) {
	_, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{Provider: "cohere"})
	assert.Error(t, err)
}

func TestCreateEmbedding_Ollama(t *testing.T) {
	// This test requires a running Ollama server with the embedding model pulled.
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		t.Skip("OLLAMA_BASE_URL not set")
	}

	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider: llm.ProviderOllama,
		Model:    "nomic-embed-text:latest",
		BaseURL:  baseURL,
	})
	require.NoError(t, err)

	vec, err := emb.EmbedQuery(context.Background(), "A desert planet and its politics.")
	require.NoError(t, err)
	assert.Len(t, vec, 768)
}
