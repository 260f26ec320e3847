// Package corpus loads the book records that can be indexed.
package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/xhad/shelf/internal/models"
)

var (
	// ErrCorpusMissing is returned when the corpus file does not exist.
	ErrCorpusMissing = errors.New("corpus file not found")

	// ErrCorpusMalformed is returned when the corpus is not an array of
	// {title, summary, themes?} objects.
	ErrCorpusMalformed = errors.New("corpus file malformed")
)

// Loader reads the corpus from a fixed path. It keeps nothing between calls.
type Loader struct {
	path string
}

func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// LoadBooks reads the corpus fresh on every call.
func (l *Loader) LoadBooks(ctx context.Context) ([]models.BookRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadBooks(l.path)
}

type rawBook struct {
	Title   *string  `json:"title"`
	Summary *string  `json:"summary"`
	Themes  []string `json:"themes"`
}

func LoadBooks(path string) ([]models.BookRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCorpusMissing, path)
		}
		return nil, fmt.Errorf("reading corpus %s: %w", path, err)
	}

	books, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return books, nil
}

// Parse decodes a corpus document. Titles must be non-empty and unique since
// they double as index ids.
func Parse(data []byte) ([]models.BookRecord, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		return nil, fmt.Errorf("%w: expected a JSON array of books", ErrCorpusMalformed)
	}

	var raw []rawBook
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorpusMalformed, err)
	}

	books := make([]models.BookRecord, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, rb := range raw {
		if rb.Title == nil || strings.TrimSpace(*rb.Title) == "" {
			return nil, fmt.Errorf("%w: book %d has no title", ErrCorpusMalformed, i)
		}
		if rb.Summary == nil {
			return nil, fmt.Errorf("%w: book %q has no summary", ErrCorpusMalformed, *rb.Title)
		}
		if seen[*rb.Title] {
			return nil, fmt.Errorf("%w: duplicate title %q", ErrCorpusMalformed, *rb.Title)
		}
		seen[*rb.Title] = true

		themes := rb.Themes
		if themes == nil {
			themes = []string{}
		}
		books = append(books, models.BookRecord{
			Title:   *rb.Title,
			Summary: *rb.Summary,
			Themes:  themes,
		})
	}

	return books, nil
}
