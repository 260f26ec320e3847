package processor

import (
	"strings"
	"unicode/utf8"

	"github.com/xhad/shelf/internal/models"
)

type ProcessorConfig struct {
	// SummaryLabel and ThemesLabel prefix the summary and themes in the
	// searchable text.
	SummaryLabel string
	ThemesLabel  string
}

// Processor projects corpus records into the documents written to the store.
type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.SummaryLabel == "" {
		config.SummaryLabel = "Rezumat"
	}
	if config.ThemesLabel == "" {
		config.ThemesLabel = "Teme"
	}

	return Processor{
		config: config,
	}
}

func New() Processor {
	return NewWithConfig(ProcessorConfig{})
}

func (p *Processor) Process(books []models.BookRecord) []models.IndexedDocument {
	docs := make([]models.IndexedDocument, 0, len(books))
	for _, book := range books {
		docs = append(docs, p.ProcessOne(book))
	}
	return docs
}

// ProcessOne builds "<title>. <SummaryLabel>: <summary>. <ThemesLabel>: <themes>".
// Fields keep their corpus text; only invalid UTF-8 bytes are dropped. The id
// is the untouched title so it matches the corpus key exactly.
func (p *Processor) ProcessOne(book models.BookRecord) models.IndexedDocument {
	themes := make([]string, 0, len(book.Themes))
	for _, theme := range book.Themes {
		themes = append(themes, sanitizeUTF8(theme))
	}
	joined := models.JoinThemes(themes)

	var b strings.Builder
	b.WriteString(sanitizeUTF8(book.Title))
	b.WriteString(". ")
	b.WriteString(p.config.SummaryLabel)
	b.WriteString(": ")
	b.WriteString(sanitizeUTF8(book.Summary))
	b.WriteString(". ")
	b.WriteString(p.config.ThemesLabel)
	b.WriteString(": ")
	b.WriteString(joined)

	return models.IndexedDocument{
		ID:       book.Title,
		Document: b.String(),
		Metadata: map[string]string{
			models.MetaTitle:  book.Title,
			models.MetaThemes: joined,
		},
	}
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
