package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/shelf/internal/models"
	"github.com/xhad/shelf/pkg/llm"
)

type fakeModel struct {
	answer   string
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, o := range options {
		o(&m.opts)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.opts.StreamingFunc != nil {
		for _, word := range strings.SplitAfter(m.answer, " ") {
			if err := m.opts.StreamingFunc(ctx, []byte(word)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.answer}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

var hits = []models.SearchHit{
	{Title: "Dune", Doc: "Dune. Rezumat: desert planet politics. Teme: sci-fi, politics"},
	{Title: "Hobbit", Doc: "Hobbit. Rezumat: small creature adventure. Teme: fantasy"},
}

func TestNewWithModel_Validation(t *testing.T) {
	_, err := llm.NewWithModel(&fakeModel{}, llm.ChatConfig{Temperature: 1.5})
	assert.Error(t, err)
	_, err = llm.NewWithModel(&fakeModel{}, llm.ChatConfig{MaxTokens: -1})
	assert.Error(t, err)

	engine, err := llm.NewWithModel(&fakeModel{}, llm.ChatConfig{Temperature: 0.5})
	assert.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestRecommend(t *testing.T) {
	model := &fakeModel{answer: "**Dune**\n- intrigă politică\n- o lume deșertică"}
	engine, err := llm.NewWithModel(model, llm.ChatConfig{Temperature: 0.3, MaxTokens: 300})
	require.NoError(t, err)

	rec, err := engine.Recommend(context.Background(), "political intrigue on a desert world", hits)
	require.NoError(t, err)

	assert.Equal(t, "Dune", rec.Title)
	assert.True(t, strings.HasPrefix(rec.Text, "**Dune**"))

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	human := model.messages[1].Parts[0].(llms.TextContent).Text
	assert.Contains(t, human, "political intrigue on a desert world")
	assert.Contains(t, human, "- Hobbit: Hobbit. Rezumat: small creature adventure")
	assert.Equal(t, 300, model.opts.MaxTokens)
	assert.Equal(t, 0.3, model.opts.Temperature)
}

func TestRecommend_NoHits(t *testing.T) {
	engine, err := llm.NewWithModel(&fakeModel{}, llm.ChatConfig{})
	require.NoError(t, err)

	_, err = engine.Recommend(context.Background(), "anything", nil)
	assert.Error(t, err)
}

func TestRecommend_ModelError(t *testing.T) {
	engine, err := llm.NewWithModel(&fakeModel{err: errors.New("quota exceeded")}, llm.ChatConfig{})
	require.NoError(t, err)

	_, err = engine.Recommend(context.Background(), "anything", hits)
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestRecommendStream(t *testing.T) {
	engine, err := llm.NewWithModel(&fakeModel{answer: "Hobbit pentru aventură"}, llm.ChatConfig{})
	require.NoError(t, err)

	stream, err := engine.RecommendStream(context.Background(), "an adventure", hits)
	require.NoError(t, err)

	var b strings.Builder
	for chunk := range stream {
		require.NoError(t, chunk.Err)
		b.WriteString(chunk.Text)
	}
	assert.Equal(t, "Hobbit pentru aventură", b.String())
}

func TestRecommendStream_ErrorPrefixedAnswer(t *testing.T) {
	engine, err := llm.NewWithModel(&fakeModel{answer: "Error: nu există. Dune"}, llm.ChatConfig{})
	require.NoError(t, err)

	stream, err := engine.RecommendStream(context.Background(), "anything", hits)
	require.NoError(t, err)

	var b strings.Builder
	for chunk := range stream {
		assert.NoError(t, chunk.Err)
		b.WriteString(chunk.Text)
	}
	assert.Equal(t, "Error: nu există. Dune", b.String())
}

func TestRecommendStream_Error(t *testing.T) {
	engine, err := llm.NewWithModel(&fakeModel{err: errors.New("boom")}, llm.ChatConfig{})
	require.NoError(t, err)

	stream, err := engine.RecommendStream(context.Background(), "an adventure", hits)
	require.NoError(t, err)

	var chunks []llm.StreamChunk
	for chunk := range stream {
		chunks = append(chunks, chunk)
	}
	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].Text)
	assert.ErrorContains(t, chunks[0].Err, "boom")
}

func TestMatchTitle(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{name: "exact first line", answer: "Hobbit\nmotive", want: "Hobbit"},
		{name: "case and markup", answer: "## \"dune\"\n", want: "Dune"},
		{name: "mentioned in first line", answer: "Recomand: Dune de Frank Herbert\n", want: "Dune"},
		{name: "leading blank lines", answer: "\n\nHobbit", want: "Hobbit"},
		{name: "title after an intro line", answer: "Îți recomand următoarea carte:\nDune\n- motive", want: "Dune"},
		{name: "earliest title wins", answer: "Hobbit\n- mai potrivită decât Dune", want: "Hobbit"},
		{name: "no candidate falls back to first line", answer: "„Emma”\n- motive", want: "Emma"},
		{name: "empty", answer: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llm.MatchTitle(tt.answer, hits))
		})
	}
}
