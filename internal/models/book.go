package models

import "strings"

// ThemesDelimiter joins themes into the single metadata string stored alongside
// each indexed document. Stores without list-valued metadata only see this form.
const ThemesDelimiter = ", "

// Metadata keys written for every indexed document.
const (
	MetaTitle  = "title"
	MetaThemes = "themes"
)

// BookRecord is one entry of the corpus file. Title is the unique key.
type BookRecord struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Themes  []string `json:"themes"`
}

// IndexedDocument is a BookRecord as it is written to the vector store.
type IndexedDocument struct {
	ID       string
	Document string
	Metadata map[string]string
}

// SearchHit is a single ranked result of a semantic search.
type SearchHit struct {
	Title string `json:"title"`
	Doc   string `json:"doc"`
}

// JoinThemes renders themes as the delimited display string.
func JoinThemes(themes []string) string {
	return strings.Join(themes, ThemesDelimiter)
}

// DecodeThemes splits a themes metadata string back into a list. Themes that
// themselves contain the delimiter do not survive the round trip.
func DecodeThemes(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ThemesDelimiter)
	themes := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			themes = append(themes, p)
		}
	}
	return themes
}
