package corpus_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/shelf/internal/models"
	"github.com/xhad/shelf/pkg/corpus"
)

func writeCorpus(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book_summaries.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadBooks(t *testing.T) {
	path := writeCorpus(t, `[
  {"title": "Dune", "summary": "desert planet politics", "themes": ["sci-fi", "politics"]},
  {"title": "Hobbit", "summary": "small creature adventure"}
]`)

	books, err := corpus.NewLoader(path).LoadBooks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []models.BookRecord{
		{Title: "Dune", Summary: "desert planet politics", Themes: []string{"sci-fi", "politics"}},
		{Title: "Hobbit", Summary: "small creature adventure", Themes: []string{}},
	}, books)
}

func TestLoadBooks_EmptyArray(t *testing.T) {
	books, err := corpus.LoadBooks(writeCorpus(t, `[]`))
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestLoadBooks_Missing(t *testing.T) {
	_, err := corpus.LoadBooks(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, corpus.ErrCorpusMissing)
}

func TestLoadBooks_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: `title: Dune`},
		{name: "object instead of array", content: `{"title": "Dune", "summary": "x"}`},
		{name: "missing title", content: `[{"summary": "x"}]`},
		{name: "blank title", content: `[{"title": "  ", "summary": "x"}]`},
		{name: "missing summary", content: `[{"title": "Dune"}]`},
		{name: "themes not a list", content: `[{"title": "Dune", "summary": "x", "themes": "sci-fi"}]`},
		{name: "numeric title", content: `[{"title": 7, "summary": "x"}]`},
		{name: "duplicate title", content: `[{"title": "Dune", "summary": "a"}, {"title": "Dune", "summary": "b"}]`},
		{name: "truncated", content: `[{"title": "Dune", "summary": "a"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := corpus.LoadBooks(writeCorpus(t, tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, corpus.ErrCorpusMalformed)
		})
	}
}

func TestLoader_ReadsFreshEachCall(t *testing.T) {
	path := writeCorpus(t, `[{"title": "Dune", "summary": "a"}]`)
	loader := corpus.NewLoader(path)

	books, err := loader.LoadBooks(context.Background())
	require.NoError(t, err)
	require.Len(t, books, 1)

	require.NoError(t, os.WriteFile(path, []byte(`[{"title": "Dune", "summary": "a"}, {"title": "Emma", "summary": "b"}]`), 0644))

	books, err = loader.LoadBooks(context.Background())
	require.NoError(t, err)
	assert.Len(t, books, 2)
}

func TestLibrary_SummaryByTitle(t *testing.T) {
	lib := corpus.NewLibrary([]models.BookRecord{
		{Title: "Dune", Summary: "desert planet politics"},
		{Title: "The Hobbit", Summary: "small creature adventure"},
	})

	summary, ok := lib.SummaryByTitle("  the hobbit ")
	assert.True(t, ok)
	assert.Equal(t, "small creature adventure", summary)

	_, ok = lib.SummaryByTitle("Emma")
	assert.False(t, ok)

	assert.Len(t, lib.Books(), 2)
}
