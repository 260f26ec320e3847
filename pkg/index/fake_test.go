package index_test

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/xhad/shelf/internal/models"
	"github.com/xhad/shelf/internal/types"
)

type sliceLoader struct {
	books []models.BookRecord
	err   error
}

func (l *sliceLoader) LoadBooks(ctx context.Context) ([]models.BookRecord, error) {
	if l.err != nil {
		return nil, l.err
	}
	out := make([]models.BookRecord, len(l.books))
	copy(out, l.books)
	return out, nil
}

type fakeClient struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	creates     int
	// raceOnCreate makes the first CreateCollection behave as if another
	// process created the collection between our get and create.
	raceOnCreate bool
	createErr    error
}

func newFakeClient() *fakeClient {
	return &fakeClient{collections: map[string]*fakeCollection{}}
}

func (c *fakeClient) GetCollection(ctx context.Context, name string) (types.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	col, ok := c.collections[name]
	if !ok {
		return nil, types.ErrCollectionNotFound
	}
	return col, nil
}

func (c *fakeClient) CreateCollection(ctx context.Context, name string, embed types.EmbeddingFunc, cfg types.CollectionConfig) (types.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return nil, c.createErr
	}
	c.creates++
	if _, ok := c.collections[name]; ok {
		return nil, types.ErrCollectionExists
	}
	col := &fakeCollection{name: name, config: cfg}
	c.collections[name] = col
	if c.raceOnCreate {
		c.raceOnCreate = false
		return nil, types.ErrCollectionExists
	}
	return col, nil
}

func (c *fakeClient) Close() error { return nil }

type fakeDoc struct {
	id       string
	document string
	metadata map[string]string
}

type fakeCollection struct {
	mu     sync.Mutex
	name   string
	config types.CollectionConfig
	docs   []fakeDoc

	addCalls   int
	queryCalls int
	getErr     error
	addErr     error
	queryErr   error
	// order, when set, replaces token-overlap ranking with a fixed id order.
	order []string
}

func (c *fakeCollection) Name() string { return c.name }

func (c *fakeCollection) Count(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docs), nil
}

func (c *fakeCollection) GetByIDs(ctx context.Context, ids []string) (types.GetResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return types.GetResult{}, c.getErr
	}
	if len(c.docs) == 0 {
		return types.GetResult{Status: types.LookupNotFoundOrEmpty}, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var found []string
	for _, d := range c.docs {
		if want[d.id] {
			found = append(found, d.id)
		}
	}
	return types.GetResult{Status: types.LookupFound, IDs: found}, nil
}

func (c *fakeCollection) Add(ctx context.Context, ids, documents []string, metadatas []map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addCalls++
	if c.addErr != nil {
		return c.addErr
	}
	for i, id := range ids {
		for _, d := range c.docs {
			if d.id == id {
				panic("fake: overwrite of existing id " + id)
			}
		}
		c.docs = append(c.docs, fakeDoc{id: id, document: documents[i], metadata: metadatas[i]})
	}
	return nil
}

func (c *fakeCollection) Query(ctx context.Context, queryTexts []string, nResults int) (types.QueryResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queryCalls++
	if c.queryErr != nil {
		return types.QueryResult{}, c.queryErr
	}

	res := types.QueryResult{}
	for _, q := range queryTexts {
		ranked := c.rank(q)
		if nResults < len(ranked) {
			ranked = ranked[:nResults]
		}
		ids := []string{}
		docs := []string{}
		metas := []map[string]string{}
		for _, d := range ranked {
			ids = append(ids, d.id)
			docs = append(docs, d.document)
			metas = append(metas, d.metadata)
		}
		res.IDs = append(res.IDs, ids)
		res.Documents = append(res.Documents, docs)
		res.Metadatas = append(res.Metadatas, metas)
	}
	return res, nil
}

func (c *fakeCollection) rank(query string) []fakeDoc {
	if c.order != nil {
		byID := make(map[string]fakeDoc, len(c.docs))
		for _, d := range c.docs {
			byID[d.id] = d
		}
		out := make([]fakeDoc, 0, len(c.order))
		for _, id := range c.order {
			if d, ok := byID[id]; ok {
				out = append(out, d)
			}
		}
		return out
	}

	qTokens := tokens(query)
	type scored struct {
		doc   fakeDoc
		score int
	}
	all := make([]scored, len(c.docs))
	for i, d := range c.docs {
		s := 0
		for tok := range tokens(d.document) {
			if qTokens[tok] {
				s++
			}
		}
		all[i] = scored{doc: d, score: s}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	out := make([]fakeDoc, len(all))
	for i, s := range all {
		out[i] = s.doc
	}
	return out
}

func (c *fakeCollection) document(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.docs {
		if d.id == id {
			return d.document, true
		}
	}
	return "", false
}

func tokens(s string) map[string]bool {
	out := map[string]bool{}
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-')
	}) {
		out[f] = true
	}
	return out
}
