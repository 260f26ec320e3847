package types

import (
	"context"
	"errors"
)

// ErrCollectionNotFound is returned by Client.GetCollection when no collection
// with the requested name exists.
var ErrCollectionNotFound = errors.New("collection not found")

// ErrCollectionExists is returned by Client.CreateCollection when another
// caller created the collection first.
var ErrCollectionExists = errors.New("collection already exists")

// EmbeddingFunc turns text into a fixed-dimension vector. It is bound to a
// collection at creation time; the store calls it, callers never do.
type EmbeddingFunc func(ctx context.Context, text string) ([]float32, error)

// Similarity spaces understood by the store backends.
const (
	SpaceCosine = "cosine"
)

type CollectionConfig struct {
	Space          string
	EmbeddingModel string
}

// LookupStatus tells apart a lookup that found ids from one that ran against
// an empty or fresh collection.
type LookupStatus int

const (
	LookupFound LookupStatus = iota
	LookupNotFoundOrEmpty
)

type GetResult struct {
	Status LookupStatus
	IDs    []string
}

// QueryResult is laid out per query text: IDs[q][rank].
type QueryResult struct {
	IDs       [][]string
	Documents [][]string
	Metadatas [][]map[string]string
}

// Core interfaces
type Client interface {
	GetCollection(ctx context.Context, name string) (Collection, error)
	CreateCollection(ctx context.Context, name string, embed EmbeddingFunc, cfg CollectionConfig) (Collection, error)
	Close() error
}

type Collection interface {
	Name() string
	Count(ctx context.Context) (int, error)
	GetByIDs(ctx context.Context, ids []string) (GetResult, error)
	Add(ctx context.Context, ids, documents []string, metadatas []map[string]string) error
	Query(ctx context.Context, queryTexts []string, nResults int) (QueryResult, error)
}
