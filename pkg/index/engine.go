// Package index keeps the book collection in sync with the corpus and answers
// semantic searches against it.
//
// EnsureIndexed only ever adds: a title that is already an id in the
// collection is skipped, so edits to an indexed book stay invisible until its
// id is removed from the store by other means. Callers run EnsureIndexed from
// a single process at startup; Search is read-only and may run concurrently.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xhad/shelf/internal/models"
	"github.com/xhad/shelf/internal/types"
	"github.com/xhad/shelf/pkg/processor"
)

var (
	// ErrIndexWrite wraps a failed bulk insert. Re-running EnsureIndexed is safe.
	ErrIndexWrite = errors.New("index write failed")

	// ErrSearchUnavailable wraps a store fault during a query. An empty result
	// set is not a fault.
	ErrSearchUnavailable = errors.New("search unavailable")
)

// BookLoader is satisfied by *corpus.Loader.
type BookLoader interface {
	LoadBooks(ctx context.Context) ([]models.BookRecord, error)
}

type EngineConfig struct {
	Collection     string
	EmbeddingModel string
	Space          string
}

type Engine struct {
	config    EngineConfig
	loader    BookLoader
	client    types.Client
	embed     types.EmbeddingFunc
	processor processor.Processor
	logger    *zap.Logger
}

func NewWithConfig(config EngineConfig, loader BookLoader, client types.Client, embed types.EmbeddingFunc, logger *zap.Logger) (*Engine, error) {
	if loader == nil {
		return nil, fmt.Errorf("book loader is required")
	}
	if client == nil {
		return nil, fmt.Errorf("vector store client is required")
	}
	if embed == nil {
		return nil, fmt.Errorf("embedding function is required")
	}
	if config.Collection == "" {
		config.Collection = "books"
	}
	if config.Space == "" {
		config.Space = types.SpaceCosine
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		config:    config,
		loader:    loader,
		client:    client,
		embed:     embed,
		processor: processor.New(),
		logger:    logger,
	}, nil
}

// GetOrCreateCollection never fails because the collection already exists.
func (e *Engine) GetOrCreateCollection(ctx context.Context) (types.Collection, error) {
	col, err := e.client.GetCollection(ctx, e.config.Collection)
	if err == nil {
		return col, nil
	}
	if !errors.Is(err, types.ErrCollectionNotFound) {
		return nil, fmt.Errorf("getting collection %s: %w", e.config.Collection, err)
	}

	col, err = e.client.CreateCollection(ctx, e.config.Collection, e.embed, types.CollectionConfig{
		Space:          e.config.Space,
		EmbeddingModel: e.config.EmbeddingModel,
	})
	if errors.Is(err, types.ErrCollectionExists) {
		// lost a create race; the winner's collection is the one we want
		col, err = e.client.GetCollection(ctx, e.config.Collection)
	}
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", e.config.Collection, err)
	}

	e.logger.Info("created collection",
		zap.String("collection", e.config.Collection),
		zap.String("space", e.config.Space),
		zap.String("embedding_model", e.config.EmbeddingModel),
	)
	return col, nil
}

// EnsureIndexed adds every corpus book whose title is not yet an id and
// returns how many were added.
func (e *Engine) EnsureIndexed(ctx context.Context) (int, error) {
	books, err := e.loader.LoadBooks(ctx)
	if err != nil {
		return 0, err
	}

	col, err := e.GetOrCreateCollection(ctx)
	if err != nil {
		return 0, err
	}

	titles := make([]string, len(books))
	for i, b := range books {
		titles[i] = b.Title
	}

	existing := e.existingIDs(ctx, col, titles)

	var toAdd []models.BookRecord
	for _, b := range books {
		if !existing[b.Title] {
			toAdd = append(toAdd, b)
		}
	}

	if len(toAdd) == 0 {
		e.logger.Debug("collection up to date",
			zap.String("collection", col.Name()),
			zap.Int("books", len(books)),
		)
		return 0, nil
	}

	docs := e.processor.Process(toAdd)
	ids := make([]string, len(docs))
	texts := make([]string, len(docs))
	metas := make([]map[string]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		texts[i] = d.Document
		metas[i] = d.Metadata
	}

	if err := col.Add(ctx, ids, texts, metas); err != nil {
		return 0, fmt.Errorf("%w: adding %d documents to %s: %v", ErrIndexWrite, len(ids), col.Name(), err)
	}

	e.logger.Info("indexed books",
		zap.String("collection", col.Name()),
		zap.Int("added", len(ids)),
		zap.Int("already_indexed", len(books)-len(ids)),
	)
	return len(ids), nil
}

func (e *Engine) existingIDs(ctx context.Context, col types.Collection, titles []string) map[string]bool {
	existing := make(map[string]bool, len(titles))
	if len(titles) == 0 {
		return existing
	}

	res, err := col.GetByIDs(ctx, titles)
	if err != nil {
		e.logger.Warn("existing id lookup failed, treating collection as empty",
			zap.String("collection", col.Name()),
			zap.Error(err),
		)
		return existing
	}

	switch res.Status {
	case types.LookupNotFoundOrEmpty:
		return existing
	case types.LookupFound:
		for _, id := range res.IDs {
			existing[id] = true
		}
	}
	return existing
}

// Search returns up to k hits in the store's similarity order, closest first.
// A blank query or an empty collection yields no hits and no error.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]models.SearchHit, error) {
	hits := []models.SearchHit{}
	if strings.TrimSpace(query) == "" {
		return hits, nil
	}

	col, err := e.GetOrCreateCollection(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}

	res, err := col.Query(ctx, []string{query}, k)
	if err != nil {
		return nil, fmt.Errorf("%w: querying %s: %v", ErrSearchUnavailable, col.Name(), err)
	}
	if len(res.IDs) == 0 {
		return hits, nil
	}

	for i := range res.IDs[0] {
		hit := models.SearchHit{}
		if len(res.Metadatas) > 0 && i < len(res.Metadatas[0]) {
			hit.Title = res.Metadatas[0][i][models.MetaTitle]
		}
		if len(res.Documents) > 0 && i < len(res.Documents[0]) {
			hit.Doc = res.Documents[0][i]
		}
		hits = append(hits, hit)
	}

	e.logger.Debug("searched collection",
		zap.String("collection", col.Name()),
		zap.Int("k", k),
		zap.Int("hits", len(hits)),
	)
	return hits, nil
}

// Stats reports how many documents the collection holds.
func (e *Engine) Stats(ctx context.Context) (int, error) {
	col, err := e.GetOrCreateCollection(ctx)
	if err != nil {
		return 0, err
	}
	return col.Count(ctx)
}
