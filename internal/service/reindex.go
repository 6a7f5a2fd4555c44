package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/raphaelgruber/mindbase/internal/models"
	"github.com/raphaelgruber/mindbase/internal/vector"
)

const reindexBatchSize = 100

// ReindexOptions configures a reindex run.
type ReindexOptions struct {
	// Owner limits the run to one owner's items. Empty means every owner.
	Owner string `json:"owner,omitempty"`
	// Reenrich also regenerates summaries and categories.
	Reenrich bool `json:"reenrich,omitempty"`
	// Concurrency overrides the service's worker count.
	Concurrency int `json:"-"`
}

// ReindexResult summarizes a reindex run.
type ReindexResult struct {
	Scanned   int      `json:"scanned"`
	Reindexed int      `json:"reindexed"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// ProgressFunc receives the number of processed items out of total.
type ProgressFunc func(done, total int)

// ReindexService recomputes embeddings for stored items and upserts them,
// repairing items whose vector write failed at save time.
type ReindexService struct {
	store       Store
	index       vector.Index
	enricher    Enricher
	concurrency int
}

// NewReindexService creates a reindex service.
func NewReindexService(store Store, index vector.Index, enricher Enricher, concurrency int) *ReindexService {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ReindexService{store: store, index: index, enricher: enricher, concurrency: concurrency}
}

// Concurrency returns the configured worker count.
func (s *ReindexService) Concurrency() int {
	return s.concurrency
}

// Total returns how many items a run with opts would scan.
func (s *ReindexService) Total(ctx context.Context, opts ReindexOptions) (int, error) {
	n, err := s.store.TotalItems(ctx, opts.Owner)
	if err != nil {
		return 0, storeErr("count items", err)
	}
	return n, nil
}

// Reindex re-embeds every item in scope. Upserts make it safe to run
// repeatedly. Per-item failures are counted, not returned.
func (s *ReindexService) Reindex(ctx context.Context, opts ReindexOptions, progress ProgressFunc) (*ReindexResult, error) {
	if s.index == nil {
		return nil, fmt.Errorf("%w: no vector index configured", ErrStoreUnavailable)
	}
	total, err := s.Total(ctx, opts)
	if err != nil {
		return nil, err
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = s.concurrency
	}
	slog.Info("starting reindex", "owner", opts.Owner, "total", total, "reenrich", opts.Reenrich, "index", s.index.Name(), "concurrency", concurrency)

	var (
		scanned   atomic.Int32
		reindexed atomic.Int32
		skipped   atomic.Int32
		failed    atomic.Int32
		errorsMu  sync.Mutex
		errs      []string
	)

	itemChan := make(chan models.SavedItem, reindexBatchSize)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for item := range itemChan {
				if ctx.Err() != nil {
					continue
				}
				done := int(scanned.Add(1))

				ok, err := s.reindexItem(ctx, item, opts.Reenrich)
				switch {
				case err != nil:
					failed.Add(1)
					errorsMu.Lock()
					errs = append(errs, fmt.Sprintf("%s: %v", item.ID, err))
					errorsMu.Unlock()
					slog.Warn("reindex item failed", "worker", workerID, "item_id", item.ID, "error", err)
				case ok:
					reindexed.Add(1)
				default:
					skipped.Add(1)
				}

				if progress != nil {
					progress(done, max(total, done))
				}
			}
		}(i)
	}

	iterErr := s.store.IterateItems(ctx, opts.Owner, reindexBatchSize, func(batch []models.SavedItem) error {
		for _, item := range batch {
			select {
			case itemChan <- item:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	close(itemChan)
	wg.Wait()

	result := &ReindexResult{
		Scanned:   int(scanned.Load()),
		Reindexed: int(reindexed.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
		Errors:    errs,
	}
	if iterErr != nil {
		return result, storeErr("reindex", iterErr)
	}
	slog.Info("reindex complete", "owner", opts.Owner, "scanned", result.Scanned, "reindexed", result.Reindexed, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

// reindexItem reports whether a vector was written. Items without any
// searchable text are skipped.
func (s *ReindexService) reindexItem(ctx context.Context, item models.SavedItem, reenrich bool) (bool, error) {
	text := item.SearchableText()
	if text == "" {
		return false, nil
	}

	var vec []float32
	if reenrich {
		res := s.enricher.Enrich(ctx, text)
		cats := res.Categories
		if item.ContentType == models.ContentImage {
			cats = withImagesCategory(cats)
		}
		if len(cats) > 0 || res.Summary != nil {
			if _, err := s.store.UpdateEnrichment(ctx, item.Owner, item.ID, res.Summary, nonNil(cats)); err != nil {
				return false, storeErr("update enrichment", err)
			}
		}
		vec = res.Embedding
	} else {
		vec = s.enricher.Embed(ctx, text)
	}
	if len(vec) == 0 {
		return false, fmt.Errorf("embedding unavailable")
	}
	if err := upsertVector(ctx, s.index, item, vec); err != nil {
		return false, fmt.Errorf("upsert vector: %w", err)
	}
	return true, nil
}
