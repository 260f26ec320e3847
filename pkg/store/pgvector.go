package store

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/xhad/shelf/internal/types"
)

type PgConfig struct {
	ConnString string
	VectorDim  int
}

// PgClient keeps each collection in its own table, registered in
// shelf_collections. Similarity is cosine distance (<=>).
type PgClient struct {
	config PgConfig
	pool   *pgxpool.Pool
	embed  types.EmbeddingFunc
	logger *zap.Logger
}

func NewPgClient(config PgConfig, embed types.EmbeddingFunc, logger *zap.Logger) (*PgClient, error) {
	if embed == nil {
		return nil, fmt.Errorf("embedding function is required")
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // Default for OpenAI embeddings
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	c := &PgClient{
		config: config,
		pool:   pool,
		embed:  embed,
		logger: logger,
	}

	if err := c.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("pgvector store opened", zap.Int("vector_dim", config.VectorDim))
	return c, nil
}

func (c *PgClient) initialize(ctx context.Context) error {
	// Enable pgvector extension
	if _, err := c.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	_, err := c.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS shelf_collections (
			name TEXT PRIMARY KEY,
			space TEXT NOT NULL,
			embedding_model TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create collections table: %w", err)
	}
	return nil
}

// Postgres truncates identifiers past 63 bytes, so table names leave room
// for the "shelf_" prefix and index names are derived from a hash.
const maxPgCollectionName = 63 - len("shelf_")

func validatePgCollectionName(name string) error {
	if err := validateCollectionName(name); err != nil {
		return err
	}
	if len(name) > maxPgCollectionName {
		return fmt.Errorf("collection name %q is longer than %d characters", name, maxPgCollectionName)
	}
	return nil
}

func tableName(collection string) string {
	return pgx.Identifier{"shelf_" + collection}.Sanitize()
}

func indexName(collection string) string {
	h := fnv.New64a()
	h.Write([]byte(collection))
	return pgx.Identifier{fmt.Sprintf("shelf_%016x_hnsw", h.Sum64())}.Sanitize()
}

func (c *PgClient) GetCollection(ctx context.Context, name string) (types.Collection, error) {
	if err := validatePgCollectionName(name); err != nil {
		return nil, err
	}

	var space string
	err := c.pool.QueryRow(ctx, "SELECT space FROM shelf_collections WHERE name = $1", name).Scan(&space)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrCollectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up collection %s: %w", name, err)
	}

	return &pgCollection{name: name, table: tableName(name), pool: c.pool, embed: c.embed, logger: c.logger}, nil
}

func (c *PgClient) CreateCollection(ctx context.Context, name string, embed types.EmbeddingFunc, cfg types.CollectionConfig) (types.Collection, error) {
	if err := validatePgCollectionName(name); err != nil {
		return nil, err
	}
	if cfg.Space == "" {
		cfg.Space = types.SpaceCosine
	}
	if cfg.Space != types.SpaceCosine {
		return nil, fmt.Errorf("pgvector backend only supports %s similarity, got %q", types.SpaceCosine, cfg.Space)
	}
	if embed == nil {
		embed = c.embed
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO shelf_collections (name, space, embedding_model)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING`,
		name, cfg.Space, cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("registering collection %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, types.ErrCollectionExists
	}

	table := tableName(name)
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d) NOT NULL
		)`, table, c.config.VectorDim)
	if _, err := tx.Exec(ctx, createTable); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING hnsw (embedding vector_cosine_ops)`,
		indexName(name), table)
	if _, err := tx.Exec(ctx, createIndex); err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.logger.Info("created pgvector collection",
		zap.String("collection", name),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)
	return &pgCollection{name: name, table: table, pool: c.pool, embed: embed, logger: c.logger}, nil
}

func (c *PgClient) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	return nil
}

type pgCollection struct {
	name   string
	table  string
	pool   *pgxpool.Pool
	embed  types.EmbeddingFunc
	logger *zap.Logger
}

func (c *pgCollection) Name() string {
	return c.name
}

func (c *pgCollection) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", c.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", c.name, err)
	}
	return n, nil
}

func (c *pgCollection) GetByIDs(ctx context.Context, ids []string) (types.GetResult, error) {
	rows, err := c.pool.Query(ctx, fmt.Sprintf("SELECT id FROM %s WHERE id = ANY($1)", c.table), ids)
	if err != nil {
		return types.GetResult{}, fmt.Errorf("failed to look up ids: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return types.GetResult{}, fmt.Errorf("failed to scan ids: %w", err)
	}

	if len(found) == 0 {
		n, err := c.Count(ctx)
		if err != nil {
			return types.GetResult{}, err
		}
		if n == 0 {
			return types.GetResult{Status: types.LookupNotFoundOrEmpty}, nil
		}
	}
	return types.GetResult{Status: types.LookupFound, IDs: found}, nil
}

// Add embeds the whole batch, then inserts it in one transaction. Ids that
// already exist are left as they are.
func (c *pgCollection) Add(ctx context.Context, ids, documents []string, metadatas []map[string]string) error {
	if len(ids) != len(documents) || len(ids) != len(metadatas) {
		return fmt.Errorf("ids, documents and metadatas differ in length: %d, %d, %d", len(ids), len(documents), len(metadatas))
	}
	if len(ids) == 0 {
		return nil
	}

	vectors := make([]pgvector.Vector, len(ids))
	for i, doc := range documents {
		embedding, err := c.embed(ctx, doc)
		if err != nil {
			return fmt.Errorf("embedding %q: %w", ids[i], err)
		}
		vectors[i] = pgvector.NewVector(embedding)
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document, metadata, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		c.table)

	batch := &pgx.Batch{}
	for i, id := range ids {
		batch.Queue(stmt, id, documents[i], metadatas[i], vectors[i])
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert documents: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.logger.Debug("added documents to pgvector",
		zap.String("collection", c.name),
		zap.Int("count", len(ids)),
	)
	return nil
}

func (c *pgCollection) Query(ctx context.Context, queryTexts []string, nResults int) (types.QueryResult, error) {
	res := types.QueryResult{
		IDs:       make([][]string, len(queryTexts)),
		Documents: make([][]string, len(queryTexts)),
		Metadatas: make([][]map[string]string, len(queryTexts)),
	}

	query := fmt.Sprintf(`
		SELECT id, document, metadata
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		c.table)

	for q, text := range queryTexts {
		res.IDs[q] = []string{}
		res.Documents[q] = []string{}
		res.Metadatas[q] = []map[string]string{}
		if nResults <= 0 {
			continue
		}

		embedding, err := c.embed(ctx, text)
		if err != nil {
			return types.QueryResult{}, fmt.Errorf("embedding query: %w", err)
		}

		rows, err := c.pool.Query(ctx, query, pgvector.NewVector(embedding), nResults)
		if err != nil {
			return types.QueryResult{}, fmt.Errorf("failed to query documents: %w", err)
		}
		for rows.Next() {
			var id, doc string
			var meta map[string]string
			if err := rows.Scan(&id, &doc, &meta); err != nil {
				rows.Close()
				return types.QueryResult{}, fmt.Errorf("failed to scan row: %w", err)
			}
			res.IDs[q] = append(res.IDs[q], id)
			res.Documents[q] = append(res.Documents[q], doc)
			res.Metadatas[q] = append(res.Metadatas[q], meta)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return types.QueryResult{}, fmt.Errorf("failed to read rows: %w", err)
		}
	}

	return res, nil
}
