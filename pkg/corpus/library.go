package corpus

import (
	"strings"

	"github.com/xhad/shelf/internal/models"
)

// Library answers title lookups over a loaded corpus.
type Library struct {
	books  []models.BookRecord
	byName map[string]int
}

func NewLibrary(books []models.BookRecord) *Library {
	byName := make(map[string]int, len(books))
	for i, b := range books {
		key := normalizeTitle(b.Title)
		if _, ok := byName[key]; !ok {
			byName[key] = i
		}
	}
	return &Library{books: books, byName: byName}
}

func (l *Library) Books() []models.BookRecord {
	return l.books
}

func (l *Library) Book(title string) (models.BookRecord, bool) {
	i, ok := l.byName[normalizeTitle(title)]
	if !ok {
		return models.BookRecord{}, false
	}
	return l.books[i], true
}

// SummaryByTitle matches titles case-insensitively, ignoring surrounding space.
func (l *Library) SummaryByTitle(title string) (string, bool) {
	b, ok := l.Book(title)
	if !ok {
		return "", false
	}
	return b.Summary, true
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
