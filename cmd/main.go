package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xhad/shelf/internal/types"
	cfgPkg "github.com/xhad/shelf/pkg/config"
	"github.com/xhad/shelf/pkg/corpus"
	"github.com/xhad/shelf/pkg/index"
	"github.com/xhad/shelf/pkg/llm"
	"github.com/xhad/shelf/pkg/moderation"
	"github.com/xhad/shelf/pkg/store"
)

type rootOptions struct {
	configPath string
	corpusPath string
	backend    string
	collection string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "shelf",
		Short:         "Recommend a book from an indexed corpus of summaries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file")
	root.PersistentFlags().StringVar(&opts.corpusPath, "corpus", "", "Path to the book summaries JSON file")
	root.PersistentFlags().StringVar(&opts.backend, "store", "", "Vector store backend (chromem or pgvector)")
	root.PersistentFlags().StringVar(&opts.collection, "collection", "", "Collection name")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	root.AddCommand(
		newIndexCmd(opts),
		newSearchCmd(opts),
		newRecommendCmd(opts),
		newChatCmd(opts),
		newServeCmd(opts),
		newListCmd(opts),
	)
	return root
}

// resolveConfig loads the config file and applies flag overrides without
// validating provider settings.
func resolveConfig(opts *rootOptions) (*cfgPkg.Config, error) {
	cfg, err := cfgPkg.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	// Override config with command line flags if provided
	if opts.corpusPath != "" {
		cfg.Corpus.Path = opts.corpusPath
	}
	if opts.backend != "" {
		cfg.Store.Backend = opts.backend
	}
	if opts.collection != "" {
		cfg.Store.Collection = opts.collection
	}
	return cfg, nil
}

func loadConfig(opts *rootOptions) (*cfgPkg.Config, error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}
	return cfg, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// app holds everything a command needs; it is built once per invocation.
type app struct {
	cfg      *cfgPkg.Config
	logger   *zap.Logger
	loader   *corpus.Loader
	embedder *llm.Embedder
	client   types.Client
	engine   *index.Engine
}

func newApp(opts *rootOptions, onEmbed func(text string)) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(opts.verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		RateLimit: cfg.Embedding.RateLimit,
		OnEmbed:   onEmbed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	client, err := store.New(store.Config{
		Backend:    cfg.Store.Backend,
		Path:       cfg.Store.Path,
		Compress:   cfg.Store.Compress,
		ConnString: cfg.Store.DatabaseURL,
		VectorDim:  cfg.Store.VectorDim,
	}, embedder.Func(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	loader := corpus.NewLoader(cfg.Corpus.Path)

	engine, err := index.NewWithConfig(index.EngineConfig{
		Collection:     cfg.Store.Collection,
		EmbeddingModel: embedder.Model(),
	}, loader, client, embedder.Func(), logger)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize index: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		loader:   loader,
		embedder: embedder,
		client:   client,
		engine:   engine,
	}, nil
}

func (a *app) Close() {
	a.client.Close()
	a.logger.Sync()
}

func (a *app) newChatEngine() (*llm.ChatEngine, error) {
	engine, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    a.cfg.LLM.Provider,
		Model:       a.cfg.LLM.Model,
		BaseURL:     a.cfg.LLM.BaseURL,
		APIKey:      a.cfg.LLM.APIKey,
		MaxTokens:   a.cfg.LLM.MaxTokens,
		Temperature: *a.cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}
	return engine, nil
}

func (a *app) newModerator() (moderation.Moderator, error) {
	m, err := moderation.New(moderation.Config{
		Provider: a.cfg.Moderation.Provider,
		Model:    a.cfg.Moderation.Model,
		APIKey:   a.cfg.Moderation.APIKey,
		BaseURL:  a.cfg.Moderation.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize moderation: %w", err)
	}
	return m, nil
}

func (a *app) library(ctx context.Context) (*corpus.Library, error) {
	books, err := a.loader.LoadBooks(ctx)
	if err != nil {
		return nil, err
	}
	return corpus.NewLibrary(books), nil
}
