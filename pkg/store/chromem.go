package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/xhad/shelf/internal/types"
)

type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	Path     string
	Compress bool
}

// ChromemClient stores collections in an embedded chromem-go database.
// chromem always ranks by cosine similarity.
type ChromemClient struct {
	db     *chromem.DB
	embed  types.EmbeddingFunc
	logger *zap.Logger

	// serializes get-then-create so concurrent creators see ErrCollectionExists
	createMu sync.Mutex
}

func NewChromemClient(config ChromemConfig, embed types.EmbeddingFunc, logger *zap.Logger) (*ChromemClient, error) {
	if embed == nil {
		return nil, fmt.Errorf("embedding function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem DB: %w", err)
		}
		config.Path = path
	}

	logger.Info("chromem store opened",
		zap.String("path", config.Path),
		zap.Bool("compress", config.Compress),
	)

	return &ChromemClient{db: db, embed: embed, logger: logger}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (c *ChromemClient) GetCollection(ctx context.Context, name string) (types.Collection, error) {
	if err := validateCollectionName(name); err != nil {
		return nil, err
	}
	// chromem falls back to its OpenAI embedder when given nil
	col := c.db.GetCollection(name, chromem.EmbeddingFunc(c.embed))
	if col == nil {
		return nil, types.ErrCollectionNotFound
	}
	return &chromemCollection{col: col, embed: c.embed, logger: c.logger}, nil
}

func (c *ChromemClient) CreateCollection(ctx context.Context, name string, embed types.EmbeddingFunc, cfg types.CollectionConfig) (types.Collection, error) {
	if err := validateCollectionName(name); err != nil {
		return nil, err
	}
	if cfg.Space != "" && cfg.Space != types.SpaceCosine {
		return nil, fmt.Errorf("chromem only supports %s similarity, got %q", types.SpaceCosine, cfg.Space)
	}
	if embed == nil {
		embed = c.embed
	}

	c.createMu.Lock()
	defer c.createMu.Unlock()

	if existing := c.db.GetCollection(name, chromem.EmbeddingFunc(embed)); existing != nil {
		return nil, types.ErrCollectionExists
	}

	col, err := c.db.CreateCollection(name, map[string]string{
		metaSpace:          types.SpaceCosine,
		metaEmbeddingModel: cfg.EmbeddingModel,
	}, chromem.EmbeddingFunc(embed))
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}

	c.logger.Info("created chromem collection",
		zap.String("collection", name),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)
	return &chromemCollection{col: col, embed: embed, logger: c.logger}, nil
}

// Close is a no-op; chromem persists on every write.
func (c *ChromemClient) Close() error {
	return nil
}

type chromemCollection struct {
	col    *chromem.Collection
	embed  types.EmbeddingFunc
	logger *zap.Logger
}

func (c *chromemCollection) Name() string {
	return c.col.Name
}

func (c *chromemCollection) Count(ctx context.Context) (int, error) {
	return c.col.Count(), nil
}

func (c *chromemCollection) GetByIDs(ctx context.Context, ids []string) (types.GetResult, error) {
	if c.col.Count() == 0 {
		return types.GetResult{Status: types.LookupNotFoundOrEmpty}, nil
	}

	found := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return types.GetResult{}, err
		}
		// chromem reports a missing id as a plain error
		if _, err := c.col.GetByID(ctx, id); err == nil {
			found = append(found, id)
		}
	}
	return types.GetResult{Status: types.LookupFound, IDs: found}, nil
}

// Add embeds every document before writing any of them, so an embedding
// failure leaves the collection untouched. A failure while persisting can
// still leave a prefix of the batch on disk.
func (c *chromemCollection) Add(ctx context.Context, ids, documents []string, metadatas []map[string]string) error {
	if len(ids) != len(documents) || len(ids) != len(metadatas) {
		return fmt.Errorf("ids, documents and metadatas differ in length: %d, %d, %d", len(ids), len(documents), len(metadatas))
	}
	if len(ids) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(ids))
	for i, id := range ids {
		embedding, err := c.embed(ctx, documents[i])
		if err != nil {
			return fmt.Errorf("embedding %q: %w", id, err)
		}
		docs[i] = chromem.Document{
			ID:        id,
			Content:   documents[i],
			Metadata:  metadatas[i],
			Embedding: embedding,
		}
	}

	if err := c.col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	c.logger.Debug("added documents to chromem",
		zap.String("collection", c.col.Name),
		zap.Int("count", len(docs)),
	)
	return nil
}

func (c *chromemCollection) Query(ctx context.Context, queryTexts []string, nResults int) (types.QueryResult, error) {
	res := types.QueryResult{
		IDs:       make([][]string, len(queryTexts)),
		Documents: make([][]string, len(queryTexts)),
		Metadatas: make([][]map[string]string, len(queryTexts)),
	}

	// chromem rejects nResults above the document count
	n := nResults
	if count := c.col.Count(); n > count {
		n = count
	}

	for q, text := range queryTexts {
		res.IDs[q] = []string{}
		res.Documents[q] = []string{}
		res.Metadatas[q] = []map[string]string{}
		if n <= 0 || strings.TrimSpace(text) == "" {
			continue
		}

		results, err := c.col.Query(ctx, text, n, nil, nil)
		if err != nil {
			return types.QueryResult{}, fmt.Errorf("querying collection %s: %w", c.col.Name, err)
		}
		for _, r := range results {
			res.IDs[q] = append(res.IDs[q], r.ID)
			res.Documents[q] = append(res.Documents[q], r.Content)
			res.Metadatas[q] = append(res.Metadatas[q], r.Metadata)
		}
	}

	return res, nil
}
