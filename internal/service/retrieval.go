package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/raphaelgruber/mindbase/internal/db"
	"github.com/raphaelgruber/mindbase/internal/metrics"
	"github.com/raphaelgruber/mindbase/internal/models"
	"github.com/raphaelgruber/mindbase/internal/storage"
	"github.com/raphaelgruber/mindbase/internal/vector"
)

const (
	// DefaultLimit applies to list and search when the caller gives none.
	DefaultLimit = 20
	// MaxLimit caps list and search page sizes.
	MaxLimit = 100
)

// categoryPalette colours categories by rank.
var categoryPalette = []string{
	"#6366f1", "#8b5cf6", "#ec4899", "#f43f5e",
	"#f97316", "#eab308", "#22c55e", "#14b8a6",
	"#0ea5e9", "#3b82f6",
}

// RetrievalConfig tunes search and chat.
type RetrievalConfig struct {
	// SimilarityThreshold drops vector matches scoring below it. 0 disables.
	SimilarityThreshold float64
	// ChatContextItems is how many items ground a chat answer.
	ChatContextItems int
	// ChatHistoryTurns is how many prior turns are sent to the model.
	ChatHistoryTurns int
}

// RetrievalService serves list, search and chat reads, plus the
// post-creation mutations (star, delete).
type RetrievalService struct {
	store    Store
	index    vector.Index
	enricher Enricher
	model    ChatModel
	blobs    storage.BlobStore
	metrics  *metrics.Collector
	cfg      RetrievalConfig
}

// NewRetrievalService creates a retrieval service. index, model, blobs and
// metrics may be nil.
func NewRetrievalService(store Store, index vector.Index, enricher Enricher, model ChatModel, blobs storage.BlobStore, m *metrics.Collector, cfg RetrievalConfig) *RetrievalService {
	if cfg.ChatContextItems <= 0 {
		cfg.ChatContextItems = 5
	}
	if cfg.ChatHistoryTurns <= 0 {
		cfg.ChatHistoryTurns = 10
	}
	return &RetrievalService{
		store:    store,
		index:    index,
		enricher: enricher,
		model:    model,
		blobs:    blobs,
		metrics:  m,
		cfg:      cfg,
	}
}

// ClampLimit applies the default and maximum page size.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	}
	return n
}

// List returns the owner's items newest first. opts.Owner is overwritten.
func (s *RetrievalService) List(ctx context.Context, owner string, opts db.ListOptions) ([]models.SavedItem, error) {
	opts.Owner = owner
	opts.Limit = ClampLimit(opts.Limit)
	if opts.Platform != "" && !opts.Platform.Valid() {
		return nil, invalidf("unknown platform %q", opts.Platform)
	}
	if opts.ContentType != "" && !opts.ContentType.Valid() {
		return nil, invalidf("unknown content type %q", opts.ContentType)
	}
	items, err := s.store.ListItems(ctx, opts)
	if err != nil {
		return nil, storeErr("list items", err)
	}
	return items, nil
}

// Count returns how many of the owner's items match the list filters.
func (s *RetrievalService) Count(ctx context.Context, owner string, opts db.ListOptions) (int, error) {
	opts.Owner = owner
	n, err := s.store.CountItems(ctx, opts)
	if err != nil {
		return 0, storeErr("count items", err)
	}
	return n, nil
}

// Get returns one of the owner's items.
func (s *RetrievalService) Get(ctx context.Context, owner, id string) (*models.SavedItem, error) {
	if id == "" {
		return nil, invalidf("id is required")
	}
	item, err := s.store.GetItem(ctx, owner, id)
	if err != nil {
		return nil, storeErr("get item", err)
	}
	return item, nil
}

// Delete removes the item from the store, then its vector and media.
// Only the store delete can fail the call.
func (s *RetrievalService) Delete(ctx context.Context, owner, id string) error {
	if id == "" {
		return invalidf("id is required")
	}
	deleted, err := s.store.DeleteItem(ctx, owner, id)
	if err != nil {
		return storeErr("delete item", err)
	}

	// The item is gone for the caller; finish cleanup even if they disconnect.
	ctx = context.WithoutCancel(ctx)
	if s.index != nil {
		if err := s.index.Delete(ctx, id); err != nil {
			slog.Warn("vector delete failed", "stage", "delete", "item_id", id, "index", s.index.Name(), "error", err)
		}
	}
	if s.blobs != nil && deleted.ContentType == models.ContentImage {
		if key, ok := s.blobs.KeyFromURL(deleted.RawContent); ok {
			if err := s.blobs.Delete(ctx, key); err != nil {
				slog.Warn("media delete failed", "stage", "delete", "item_id", id, "key", key, "error", err)
			}
		}
	}
	slog.Info("item deleted", "item_id", id, "owner", owner)
	return nil
}

// ToggleStar flips the starred flag and returns the updated item.
func (s *RetrievalService) ToggleStar(ctx context.Context, owner, id string) (*models.SavedItem, error) {
	if id == "" {
		return nil, invalidf("id is required")
	}
	item, err := s.store.ToggleStar(ctx, owner, id)
	if err != nil {
		return nil, storeErr("toggle star", err)
	}
	return item, nil
}

// ListCategories returns the owner's labels by item count (desc), then name.
func (s *RetrievalService) ListCategories(ctx context.Context, owner string) ([]models.CategoryCount, error) {
	labels, err := s.store.ListCategories(ctx, owner)
	if err != nil {
		return nil, storeErr("list categories", err)
	}
	sort.SliceStable(labels, func(i, j int) bool {
		if labels[i].Count != labels[j].Count {
			return labels[i].Count > labels[j].Count
		}
		return strings.ToLower(labels[i].Label) < strings.ToLower(labels[j].Label)
	})

	out := make([]models.CategoryCount, 0, len(labels))
	for i, l := range labels {
		out = append(out, models.CategoryCount{
			ID:    models.CategoryID(l.Label),
			Name:  l.Label,
			Count: l.Count,
			Color: categoryPalette[i%len(categoryPalette)],
		})
	}
	return out, nil
}
