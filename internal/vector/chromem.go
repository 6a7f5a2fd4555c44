package vector

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

const chromemOwnerKey = "owner"

// ChromemIndex is an embedded index backed by chromem-go, in memory or
// persisted to a directory.
type ChromemIndex struct {
	mu         sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
	dim        int
}

var _ Index = (*ChromemIndex)(nil)

// NewChromemIndex opens the named collection. An empty path keeps data in memory.
func NewChromemIndex(path, collection string, dim int) (*ChromemIndex, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}
	// Embeddings are always supplied, so no embedding func is needed.
	c, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get or create collection: %w", err)
	}
	return &ChromemIndex{db: db, collection: c, dim: dim}, nil
}

func (c *ChromemIndex) Name() string { return "chromem" }

func (c *ChromemIndex) Upsert(ctx context.Context, records ...Record) error {
	const op = "upsert"
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(op, c.dim, records); err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		meta := make(map[string]string, len(r.Payload)+1)
		for k, v := range r.Payload {
			meta[k] = v
		}
		meta[chromemOwnerKey] = r.Owner
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Content:   r.ID,
			Metadata:  meta,
			Embedding: append([]float32(nil), r.Vector...),
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Replacing an id requires removing the old document first.
	if err := c.collection.Delete(ctx, nil, nil, idsOf(records)...); err != nil {
		return opErr(op, OperationErrorQueryFailed, "replace documents", err)
	}
	if err := c.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return opErr(op, OperationErrorQueryFailed, "add documents", err)
	}
	return nil
}

func (c *ChromemIndex) Query(ctx context.Context, vec []float32, filter Filter, k int) ([]Match, error) {
	const op = "query"
	if err := validateQuery(op, c.dim, vec, filter); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// chromem rejects NResults above the collection size.
	if n := c.collection.Count(); n == 0 {
		return []Match{}, nil
	} else if k > n {
		k = n
	}

	results, err := c.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vec,
		NResults:       k,
		Where:          map[string]string{chromemOwnerKey: filter.Owner},
	})
	if err != nil {
		return nil, opErr(op, OperationErrorQueryFailed, "query collection", err)
	}

	out := make([]Match, 0, len(results))
	for _, r := range results {
		out = append(out, Match{ID: r.ID, Score: float64(r.Similarity)})
	}
	sortMatches(out)
	return out, nil
}

func (c *ChromemIndex) Delete(ctx context.Context, ids ...string) error {
	ids = dedupeIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return opErr("delete", OperationErrorQueryFailed, "delete documents", err)
	}
	return nil
}

func idsOf(records []Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
