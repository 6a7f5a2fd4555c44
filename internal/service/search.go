package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/mindbase/internal/db"
	"github.com/raphaelgruber/mindbase/internal/metrics"
	"github.com/raphaelgruber/mindbase/internal/models"
	"github.com/raphaelgruber/mindbase/internal/vector"
)

// SearchMode reports which path produced search results.
type SearchMode string

const (
	ModeSemantic SearchMode = "semantic"
	ModeKeyword  SearchMode = "keyword"
)

// SearchOptions configures a search.
type SearchOptions struct {
	Query      string            `json:"query"`
	Limit      int               `json:"limit,omitempty"`
	Categories []string          `json:"categories,omitempty"`
	Platforms  []models.Platform `json:"platforms,omitempty"`
}

// SearchResult is a ranked result set.
type SearchResult struct {
	Items []models.SavedItem `json:"items"`
	Mode  SearchMode         `json:"mode"`
}

// Search embeds the query and ranks the owner's items by vector similarity.
// When that yields nothing (no index, embedding failure, empty or
// below-threshold result) it falls back to keyword matching. Only a store
// failure is returned as an error.
func (s *RetrievalService) Search(ctx context.Context, owner string, opts SearchOptions) (*SearchResult, error) {
	query := strings.TrimSpace(opts.Query)
	if query == "" {
		return nil, invalidf("query is empty")
	}
	for _, p := range opts.Platforms {
		if !p.Valid() {
			return nil, invalidf("unknown platform %q", p)
		}
	}
	limit := ClampLimit(opts.Limit)

	if items := s.semanticSearch(ctx, owner, query, limit, opts); len(items) > 0 {
		return &SearchResult{Items: items, Mode: ModeSemantic}, nil
	}

	start := time.Now()
	items, err := s.store.KeywordSearch(ctx, db.KeywordQuery{
		Owner:      owner,
		Query:      query,
		Categories: opts.Categories,
		Platforms:  opts.Platforms,
		Limit:      limit,
	})
	s.metrics.Observe(metrics.OpKeywordFallback, start, err)
	if err != nil {
		return nil, storeErr("keyword search", err)
	}
	slog.Info("search used keyword fallback", "stage", "keyword_fallback", "owner", owner, "query", query, "results", len(items))
	return &SearchResult{Items: nonNilItems(items), Mode: ModeKeyword}, nil
}

// semanticSearch returns items in similarity order, or nil when the vector
// path is unavailable or empty. Failures are logged, never returned.
func (s *RetrievalService) semanticSearch(ctx context.Context, owner, query string, limit int, opts SearchOptions) []models.SavedItem {
	if s.index == nil || s.enricher == nil {
		return nil
	}
	vec := s.enricher.Embed(ctx, query)
	if len(vec) == 0 {
		slog.Warn("query embedding unavailable", "stage", "search", "owner", owner, "query", query)
		return nil
	}

	k := limit
	if len(opts.Categories) > 0 || len(opts.Platforms) > 0 {
		// Filters are applied after the vector query; fetch extra candidates.
		k = min(limit*4, 4*MaxLimit)
	}
	matches, err := s.index.Query(ctx, vec, vector.Filter{Owner: owner}, k)
	if err != nil {
		slog.Warn("vector query failed", "stage", "search", "owner", owner, "index", s.index.Name(), "error", err)
		return nil
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if s.cfg.SimilarityThreshold > 0 && m.Score < s.cfg.SimilarityThreshold {
			continue
		}
		ids = append(ids, m.ID)
	}
	if len(ids) == 0 {
		return nil
	}

	rows, err := s.store.GetItemsByIDs(ctx, owner, ids, opts.Categories, opts.Platforms)
	if err != nil {
		slog.Warn("hydrating vector matches failed", "stage", "search", "owner", owner, "error", err)
		return nil
	}
	byID := make(map[string]models.SavedItem, len(rows))
	for _, it := range rows {
		byID[it.ID] = it
	}

	// Keep vector rank; ids without a stored item (stale vectors) drop out.
	items := make([]models.SavedItem, 0, min(limit, len(ids)))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			items = append(items, it)
			if len(items) == limit {
				break
			}
		}
	}
	return items
}

func nonNilItems(items []models.SavedItem) []models.SavedItem {
	if items == nil {
		return []models.SavedItem{}
	}
	return items
}
