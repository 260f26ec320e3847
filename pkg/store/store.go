// Package store provides the vector-store backends behind types.Client.
package store

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/xhad/shelf/internal/types"
)

const (
	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"
)

// Metadata keys recorded for every collection.
const (
	metaSpace          = "hnsw:space"
	metaEmbeddingModel = "embedding_model"
)

var collectionNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,62}$`)

func validateCollectionName(name string) error {
	if !collectionNameRe.MatchString(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}

type Config struct {
	Backend string

	// chromem
	Path     string
	Compress bool

	// pgvector
	ConnString string
	VectorDim  int
}

// New opens the configured backend. embed is used to reopen collections that
// already exist on disk or in the database.
func New(config Config, embed types.EmbeddingFunc, logger *zap.Logger) (types.Client, error) {
	switch config.Backend {
	case "", BackendChromem:
		c, err := NewChromemClient(ChromemConfig{Path: config.Path, Compress: config.Compress}, embed, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendPgvector:
		c, err := NewPgClient(PgConfig{ConnString: config.ConnString, VectorDim: config.VectorDim}, embed, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", config.Backend)
	}
}
