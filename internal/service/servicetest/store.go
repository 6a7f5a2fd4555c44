// Package servicetest provides in-memory doubles for service dependencies.
package servicetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/mindbase/internal/db"
	"github.com/raphaelgruber/mindbase/internal/models"
)

// MemStore is an in-memory implementation of the store used by the
// services. Items are kept newest first; Fail makes every read and write
// return an error.
type MemStore struct {
	mu      sync.Mutex
	items   map[string]models.SavedItem
	clock   time.Time
	failAll error
}

// Fail makes every subsequent call return err. nil restores normal operation.
func (s *MemStore) Fail(err error) {
	s.mu.Lock()
	s.failAll = err
	s.mu.Unlock()
}

// Len returns the number of stored items across all owners.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func NewMemStore() *MemStore {
	return &MemStore{items: map[string]models.SavedItem{}, clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (s *MemStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *MemStore) CreateItem(_ context.Context, item models.SavedItem) (*models.SavedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	if _, ok := s.items[item.ID]; ok {
		return nil, db.ErrAlreadyExists
	}
	item.CreatedAt = s.tick()
	item.UpdatedAt = item.CreatedAt
	if item.Categories == nil {
		item.Categories = []string{}
	}
	s.items[item.ID] = item
	return &item, nil
}

func (s *MemStore) GetItem(_ context.Context, owner, id string) (*models.SavedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	it, ok := s.items[id]
	if !ok || it.Owner != owner {
		return nil, db.ErrNotFound
	}
	return &it, nil
}

func (s *MemStore) filtered(owner string, keep func(models.SavedItem) bool) []models.SavedItem {
	var out []models.SavedItem
	for _, it := range s.items {
		if (owner == "" || it.Owner == owner) && keep(it) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func matchesList(opts db.ListOptions) func(models.SavedItem) bool {
	return func(it models.SavedItem) bool {
		if opts.Category != "" && !containsFold(it.Categories, opts.Category, false) {
			return false
		}
		if opts.Platform != "" && it.SourcePlatform != opts.Platform {
			return false
		}
		if opts.ContentType != "" && it.ContentType != opts.ContentType {
			return false
		}
		if opts.Starred != nil && it.IsStarred != *opts.Starred {
			return false
		}
		return true
	}
}

func (s *MemStore) ListItems(_ context.Context, opts db.ListOptions) ([]models.SavedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	out := s.filtered(opts.Owner, matchesList(opts))
	if opts.Offset >= len(out) {
		return []models.SavedItem{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemStore) CountItems(_ context.Context, opts db.ListOptions) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.filtered(opts.Owner, matchesList(opts))), s.failAll
}

func (s *MemStore) TotalItems(_ context.Context, owner string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.filtered(owner, func(models.SavedItem) bool { return true })), s.failAll
}

func (s *MemStore) DeleteItem(_ context.Context, owner, id string) (*models.SavedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	it, ok := s.items[id]
	if !ok || it.Owner != owner {
		return nil, db.ErrNotFound
	}
	delete(s.items, id)
	return &it, nil
}

func (s *MemStore) ToggleStar(_ context.Context, owner, id string) (*models.SavedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	it, ok := s.items[id]
	if !ok || it.Owner != owner {
		return nil, db.ErrNotFound
	}
	it.IsStarred = !it.IsStarred
	it.UpdatedAt = s.tick()
	s.items[id] = it
	return &it, nil
}

func (s *MemStore) UpdateEnrichment(_ context.Context, owner, id string, summary *string, categories []string) (*models.SavedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	it, ok := s.items[id]
	if !ok || it.Owner != owner {
		return nil, db.ErrNotFound
	}
	it.AISummary = summary
	it.Categories = categories
	it.UpdatedAt = s.tick()
	s.items[id] = it
	return &it, nil
}

func (s *MemStore) KeywordSearch(_ context.Context, q db.KeywordQuery) ([]models.SavedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	needle := strings.ToLower(q.Query)
	out := s.filtered(q.Owner, func(it models.SavedItem) bool {
		if !passesSearchFilter(it, q.Categories, q.Platforms) {
			return false
		}
		for _, f := range []*string{it.Title, it.Description, it.AISummary, it.ExtractedText, it.Notes} {
			if strings.Contains(strings.ToLower(models.Deref(f)), needle) {
				return true
			}
		}
		return containsFold(it.Categories, needle, true) || strings.Contains(string(it.SourcePlatform), needle)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemStore) GetItemsByIDs(_ context.Context, owner string, ids []string, categories []string, platforms []models.Platform) ([]models.SavedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	var out []models.SavedItem
	for _, id := range ids {
		if it, ok := s.items[id]; ok && it.Owner == owner && passesSearchFilter(it, categories, platforms) {
			out = append(out, it)
		}
	}
	// Unspecified order, like the real store.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) ListCategories(_ context.Context, owner string) ([]db.LabelCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	counts := map[string]int{}
	for _, it := range s.items {
		if it.Owner != owner {
			continue
		}
		for _, c := range it.Categories {
			counts[c]++
		}
	}
	out := make([]db.LabelCount, 0, len(counts))
	for l, n := range counts {
		out = append(out, db.LabelCount{Label: l, Count: n})
	}
	return out, nil
}

func (s *MemStore) IterateItems(ctx context.Context, owner string, batchSize int, fn func([]models.SavedItem) error) error {
	s.mu.Lock()
	all := s.filtered(owner, func(models.SavedItem) bool { return true })
	fail := s.failAll
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	for start := 0; start < len(all); start += batchSize {
		end := min(start+batchSize, len(all))
		if err := fn(all[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func passesSearchFilter(it models.SavedItem, categories []string, platforms []models.Platform) bool {
	if len(categories) > 0 {
		ok := false
		for _, c := range categories {
			if containsFold(it.Categories, c, false) {
				ok = true
			}
		}
		if !ok {
			return false
		}
	}
	if len(platforms) > 0 {
		for _, p := range platforms {
			if it.SourcePlatform == p {
				return true
			}
		}
		return false
	}
	return true
}

func containsFold(list []string, s string, substring bool) bool {
	for _, v := range list {
		if substring && strings.Contains(strings.ToLower(v), s) {
			return true
		}
		if !substring && v == s {
			return true
		}
	}
	return false
}
