package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/shelf/internal/models"
	"github.com/xhad/shelf/pkg/corpus"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show every book in the corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(opts)
			if err != nil {
				return err
			}
			books, err := corpus.LoadBooks(cfg.Corpus.Path)
			if err != nil {
				return err
			}
			return writeArchive(os.Stdout, corpus.NewLibrary(books), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw records as JSON")
	return cmd
}

func writeArchive(w io.Writer, lib *corpus.Library, asJSON bool) error {
	books := lib.Books()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(books)
	}

	title := color.New(color.FgCyan, color.Bold).FprintfFunc()
	for i, b := range books {
		title(w, "%d. %s\n", i+1, b.Title)
		if len(b.Themes) > 0 {
			fmt.Fprintf(w, "   %s\n", models.JoinThemes(b.Themes))
		}
		fmt.Fprintf(w, "   %s\n", strings.TrimSpace(b.Summary))
	}
	fmt.Fprintf(w, "\n%d books\n", len(books))
	return nil
}
