package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/mindbase/internal/config"
	"github.com/raphaelgruber/mindbase/internal/db"
	"github.com/raphaelgruber/mindbase/internal/metrics"
)

// NewFromConfig builds the configured backend, wrapped with timing metrics.
// client is required only for the SurrealDB backend.
func NewFromConfig(ctx context.Context, cfg config.Config, client *db.Client, m *metrics.Collector) (Index, error) {
	var idx Index
	var err error

	switch cfg.VectorBackend {
	case config.VectorSurrealDB, "":
		if client == nil {
			return nil, fmt.Errorf("surrealdb vector backend requires a database client")
		}
		idx, err = NewSurrealIndex(ctx, client, cfg.EmbedDimension)
	case config.VectorQdrant:
		idx, err = NewQdrantIndex(ctx, QdrantConfig{
			URL:        cfg.QdrantURL,
			Collection: cfg.QdrantCollection,
			APIKey:     cfg.QdrantAPIKey,
			Dimension:  cfg.EmbedDimension,
		})
	case config.VectorChromem:
		idx, err = NewChromemIndex(cfg.ChromemPath, cfg.QdrantCollection, cfg.EmbedDimension)
	case config.VectorMemory:
		idx = NewMemoryIndex(cfg.EmbedDimension)
	default:
		return nil, fmt.Errorf("unsupported vector backend: %s", cfg.VectorBackend)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(idx, m), nil
}

type instrumented struct {
	Index
	metrics *metrics.Collector
}

// Instrument records upsert and query timings for idx. A nil collector returns idx unchanged.
func Instrument(idx Index, m *metrics.Collector) Index {
	if m == nil {
		return idx
	}
	return &instrumented{Index: idx, metrics: m}
}

func (i *instrumented) Upsert(ctx context.Context, records ...Record) error {
	start := time.Now()
	err := i.Index.Upsert(ctx, records...)
	i.metrics.Observe(metrics.OpVectorUpsert, start, err)
	return err
}

func (i *instrumented) Query(ctx context.Context, vec []float32, filter Filter, k int) ([]Match, error) {
	start := time.Now()
	out, err := i.Index.Query(ctx, vec, filter, k)
	i.metrics.Observe(metrics.OpVectorQuery, start, err)
	return out, err
}
