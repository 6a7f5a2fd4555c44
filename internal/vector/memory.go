package vector

import (
	"context"
	"sync"
)

// MemoryIndex is an exact in-process index. Contents are lost on restart.
type MemoryIndex struct {
	mu      sync.RWMutex
	dim     int
	records map[string]Record
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty index. dim 0 accepts any dimension.
func NewMemoryIndex(dim int) *MemoryIndex {
	return &MemoryIndex{dim: dim, records: make(map[string]Record)}
}

func (m *MemoryIndex) Name() string { return "memory" }

func (m *MemoryIndex) Upsert(_ context.Context, records ...Record) error {
	if err := validateRecords("upsert", m.dim, records); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		m.records[r.ID] = r
	}
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, vec []float32, filter Filter, k int) ([]Match, error) {
	if err := validateQuery("query", m.dim, vec, filter); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Match, 0, k)
	for _, r := range m.records {
		if r.Owner != filter.Owner {
			continue
		}
		out = append(out, Match{ID: r.ID, Score: cosine(vec, r.Vector)})
	}
	sortMatches(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, ctx.Err()
}

func (m *MemoryIndex) Delete(_ context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

// Len returns the number of stored records.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
