package embedding

import (
	"context"
	"time"

	"github.com/raphaelgruber/mindbase/internal/metrics"
)

type instrumented struct {
	Embedder
	metrics *metrics.Collector
}

// Instrument records embedding timings for e. A nil collector returns e unchanged.
func Instrument(e Embedder, m *metrics.Collector) Embedder {
	if m == nil || e == nil {
		return e
	}
	return &instrumented{Embedder: e, metrics: m}
}

func (i *instrumented) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	v, err := i.Embedder.Embed(ctx, text)
	i.metrics.Observe(metrics.OpEmbedding, start, err)
	return v, err
}

func (i *instrumented) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	v, err := i.Embedder.EmbedBatch(ctx, texts)
	i.metrics.Observe(metrics.OpEmbedding, start, err)
	return v, err
}
