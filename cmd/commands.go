package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/shelf/internal/models"
	"github.com/xhad/shelf/pkg/corpus"
	"github.com/xhad/shelf/pkg/llm"
	"github.com/xhad/shelf/pkg/moderation"
	"github.com/xhad/shelf/server"
)

// ensureIndexed runs the startup indexing pass with a progress bar fed by
// embedding calls.
func ensureIndexed(ctx context.Context, a *app, progress *embedProgress) error {
	bar := getProgressBar(-1, "📚 Indexing books...")
	progress.attach(bar)
	added, err := a.engine.EnsureIndexed(ctx)
	progress.attach(nil)
	bar.Finish()
	fmt.Print("\r")
	if err != nil {
		return err
	}

	total, err := a.engine.Stats(ctx)
	if err != nil {
		return err
	}
	if added > 0 {
		color.Green("✓ Indexed %d new books (%d in collection)\n", added, total)
	} else {
		color.Green("✓ Collection up to date (%d books)\n", total)
	}
	return nil
}

func setup(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	progress := &embedProgress{}
	a, err := newApp(opts, progress.onEmbed)
	if err != nil {
		return nil, err
	}
	if err := ensureIndexed(cmd.Context(), a, progress); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func validateK(k, maxK int) error {
	if k < 1 || k > maxK {
		return fmt.Errorf("k must be between 1 and %d, got %d", maxK, k)
	}
	return nil
}

func newIndexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Add corpus books that are not yet in the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			a.Close()
			return nil
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the books closest to a description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("k") {
				k = a.cfg.Search.K
			}
			if err := validateK(k, a.cfg.Search.MaxK); err != nil {
				return err
			}

			hits, err := search(cmd.Context(), a, strings.Join(args, " "), k)
			if err != nil {
				return err
			}
			printHits(hits)
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 3, "Number of books to retrieve")
	return cmd
}

func newRecommendCmd(opts *rootOptions) *cobra.Command {
	var k int
	var stream bool
	cmd := &cobra.Command{
		Use:   "recommend <query>",
		Short: "Recommend one book for a description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("k") {
				k = a.cfg.Search.K
			}
			if err := validateK(k, a.cfg.Search.MaxK); err != nil {
				return err
			}

			sess, err := newSession(cmd.Context(), a)
			if err != nil {
				return err
			}
			_, err = recommend(cmd.Context(), a, sess, strings.Join(args, " "), k, stream)
			return err
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 3, "Number of candidate books to retrieve")
	cmd.Flags().BoolVar(&stream, "stream", true, "Stream the answer as it is generated")
	return cmd
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var k int
	var stream bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask for recommendations interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("k") {
				k = a.cfg.Search.K
			}
			if err := validateK(k, a.cfg.Search.MaxK); err != nil {
				return err
			}

			sess, err := newSession(cmd.Context(), a)
			if err != nil {
				return err
			}

			// Interactive chat loop with colored output
			color.Cyan("\nDescribe the book you are looking for (type 'exit' to quit)")

			scanner := bufio.NewScanner(os.Stdin)
			userPrompt := color.New(color.FgGreen).PrintfFunc()

			for {
				userPrompt("\nYou: ")
				if !scanner.Scan() {
					break
				}

				query := strings.TrimSpace(scanner.Text())
				if strings.ToLower(query) == "exit" {
					break
				}
				if query == "" {
					continue
				}

				if _, err := recommend(cmd.Context(), a, sess, query, k, stream); err != nil {
					color.Red("Error: %v\n", err)
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 3, "Number of candidate books to retrieve")
	cmd.Flags().BoolVar(&stream, "stream", true, "Stream answers as they are generated")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recommendations over a websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := newSession(ctx, a)
			if err != nil {
				return err
			}

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			srv, err := server.NewWSServer(server.Config{
				Addr:      addr,
				Streaming: a.cfg.Server.Streaming,
				DefaultK:  a.cfg.Search.K,
				MaxK:      a.cfg.Search.MaxK,
			}, a.engine, sess.chat, sess.lib, sess.moderator, a.logger)
			if err != nil {
				return err
			}

			color.Cyan("Listening on %s\n", addr)
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func search(ctx context.Context, a *app, query string, k int) ([]models.SearchHit, error) {
	spinner := getSpinner("🔍 Searching books...")
	hits, err := a.engine.Search(ctx, query, k)
	spinner.Finish()
	fmt.Print("\r") // Clear spinner line
	return hits, err
}

func printHits(hits []models.SearchHit) {
	if len(hits) == 0 {
		color.Yellow("No matching books.\n")
		return
	}
	for i, hit := range hits {
		color.New(color.FgCyan, color.Bold).Printf("%d. %s\n", i+1, hit.Title)
		fmt.Printf("   %s\n", hit.Doc)
	}
}

// session bundles what a recommendation needs beyond the index.
type session struct {
	chat      *llm.ChatEngine
	lib       *corpus.Library
	moderator moderation.Moderator
}

func newSession(ctx context.Context, a *app) (*session, error) {
	chat, err := a.newChatEngine()
	if err != nil {
		return nil, err
	}
	lib, err := a.library(ctx)
	if err != nil {
		return nil, err
	}
	moderator, err := a.newModerator()
	if err != nil {
		return nil, err
	}
	return &session{chat: chat, lib: lib, moderator: moderator}, nil
}

// recommend reports whether the query got past moderation.
func recommend(ctx context.Context, a *app, s *session, query string, k int, stream bool) (bool, error) {
	if !moderation.Allow(ctx, s.moderator, query, a.logger) {
		color.Yellow("Your message was blocked by the content filter. Please rephrase.\n")
		return false, nil
	}

	hits, err := search(ctx, a, query, k)
	if err != nil {
		return true, err
	}
	if len(hits) == 0 {
		color.Yellow("No matching books.\n")
		return true, nil
	}

	assistantPrompt := color.New(color.FgCyan).PrintfFunc()
	var title string

	if stream {
		ch, err := s.chat.RecommendStream(ctx, query, hits)
		if err != nil {
			return true, err
		}
		assistantPrompt("\nLibrarian: ")
		var b strings.Builder
		var streamErr error
		for chunk := range ch {
			if chunk.Err != nil {
				streamErr = chunk.Err
				continue
			}
			b.WriteString(chunk.Text)
			assistantPrompt("%s", chunk.Text)
		}
		fmt.Print("\n")
		if streamErr != nil {
			return true, streamErr
		}
		title = llm.MatchTitle(b.String(), hits)
	} else {
		spinner := getSpinner("🤖 Choosing a book...")
		rec, err := s.chat.Recommend(ctx, query, hits)
		spinner.Finish()
		fmt.Print("\r")
		if err != nil {
			return true, err
		}
		assistantPrompt("\nLibrarian: %s\n", rec.Text)
		title = rec.Title
	}

	if title == "" {
		return true, nil
	}
	if summary, ok := s.lib.SummaryByTitle(title); ok {
		color.New(color.Bold).Printf("\n%s\n", title)
		fmt.Println(summary)
	}
	return true, nil
}
