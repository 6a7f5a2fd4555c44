package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/mindbase/internal/models"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const itemTable = "saved_item"

// itemRow is the stored form of models.SavedItem.
type itemRow struct {
	ID             surrealmodels.RecordID `json:"id"`
	Owner          string                 `json:"owner"`
	SourcePlatform string                 `json:"source_platform"`
	SourceURL      *string                `json:"source_url,omitempty"`
	ContentType    string                 `json:"content_type"`
	Title          *string                `json:"title,omitempty"`
	Description    *string                `json:"description,omitempty"`
	ThumbnailURL   *string                `json:"thumbnail_url,omitempty"`
	RawContent     string                 `json:"raw_content"`
	ExtractedText  *string                `json:"extracted_text,omitempty"`
	AISummary      *string                `json:"ai_summary,omitempty"`
	Categories     []string               `json:"categories"`
	Notes          *string                `json:"notes,omitempty"`
	IsStarred      bool                   `json:"is_starred"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

func (r itemRow) toModel() (models.SavedItem, error) {
	id, err := models.RecordIDString(r.ID)
	if err != nil {
		return models.SavedItem{}, err
	}
	cats := r.Categories
	if cats == nil {
		cats = []string{}
	}
	return models.SavedItem{
		ID:             id,
		Owner:          r.Owner,
		SourcePlatform: models.Platform(r.SourcePlatform),
		SourceURL:      r.SourceURL,
		ContentType:    models.ContentType(r.ContentType),
		Title:          r.Title,
		Description:    r.Description,
		ThumbnailURL:   r.ThumbnailURL,
		RawContent:     r.RawContent,
		ExtractedText:  r.ExtractedText,
		AISummary:      r.AISummary,
		Categories:     cats,
		Notes:          r.Notes,
		IsStarred:      r.IsStarred,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}, nil
}

func toModels(rows []itemRow) ([]models.SavedItem, error) {
	items := make([]models.SavedItem, 0, len(rows))
	for _, r := range rows {
		it, err := r.toModel()
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func itemRecordID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(itemTable, id)
}

// CreateItem persists a new item with the ID set by the caller.
// Timestamps and is_starred are assigned by the database.
func (c *Client) CreateItem(ctx context.Context, item models.SavedItem) (*models.SavedItem, error) {
	if item.ID == "" || item.Owner == "" {
		return nil, fmt.Errorf("create item: id and owner are required")
	}
	cats := item.Categories
	if cats == nil {
		cats = []string{}
	}

	rows, err := queryRows[itemRow](ctx, c, `
		CREATE type::record("saved_item", $id) CONTENT {
			owner: $owner,
			source_platform: $source_platform,
			source_url: $source_url,
			content_type: $content_type,
			title: $title,
			description: $description,
			thumbnail_url: $thumbnail_url,
			raw_content: $raw_content,
			extracted_text: $extracted_text,
			ai_summary: $ai_summary,
			categories: $categories,
			notes: $notes,
			is_starred: false,
			created_at: time::now(),
			updated_at: time::now()
		} RETURN AFTER
	`, map[string]any{
		"id":              item.ID,
		"owner":           item.Owner,
		"source_platform": string(item.SourcePlatform),
		"source_url":      item.SourceURL,
		"content_type":    string(item.ContentType),
		"title":           item.Title,
		"description":     item.Description,
		"thumbnail_url":   item.ThumbnailURL,
		"raw_content":     item.RawContent,
		"extracted_text":  item.ExtractedText,
		"ai_summary":      item.AISummary,
		"categories":      cats,
		"notes":           item.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("create item: no result returned")
	}
	created, err := rows[0].toModel()
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	return &created, nil
}

// GetItem returns the owner's item by id, or ErrNotFound.
func (c *Client) GetItem(ctx context.Context, owner, id string) (*models.SavedItem, error) {
	rows, err := queryRows[itemRow](ctx, c, `
		SELECT * FROM type::record("saved_item", $id) WHERE owner = $owner
	`, map[string]any{"id": id, "owner": owner})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return firstItem(rows, "get item")
}

func firstItem(rows []itemRow, op string) (*models.SavedItem, error) {
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	it, err := rows[0].toModel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &it, nil
}

// ListOptions filters and paginates ListItems.
// Zero values mean "no filter"; Limit <= 0 means 20.
type ListOptions struct {
	Owner       string
	Category    string
	Platform    models.Platform
	ContentType models.ContentType
	Starred     *bool
	Limit       int
	Offset      int
}

// whereClause builds the shared filter for list and count queries.
func (o ListOptions) whereClause() (string, map[string]any) {
	conds := []string{"owner = $owner"}
	vars := map[string]any{"owner": o.Owner}
	if o.Category != "" {
		conds = append(conds, "categories CONTAINS $category")
		vars["category"] = o.Category
	}
	if o.Platform != "" {
		conds = append(conds, "source_platform = $platform")
		vars["platform"] = string(o.Platform)
	}
	if o.ContentType != "" {
		conds = append(conds, "content_type = $content_type")
		vars["content_type"] = string(o.ContentType)
	}
	if o.Starred != nil {
		conds = append(conds, "is_starred = $starred")
		vars["starred"] = *o.Starred
	}
	return "WHERE " + strings.Join(conds, " AND "), vars
}

// ListItems returns the owner's items, newest first.
func (c *Client) ListItems(ctx context.Context, opts ListOptions) ([]models.SavedItem, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	where, vars := opts.whereClause()
	vars["limit"] = opts.Limit
	vars["offset"] = opts.Offset

	sql := fmt.Sprintf(`
		SELECT * FROM saved_item %s ORDER BY created_at DESC LIMIT $limit START $offset
	`, where)

	rows, err := queryRows[itemRow](ctx, c, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	items, err := toModels(rows)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// CountItems returns how many items match the filters, ignoring pagination.
func (c *Client) CountItems(ctx context.Context, opts ListOptions) (int, error) {
	where, vars := opts.whereClause()
	sql := fmt.Sprintf(`SELECT count() AS count FROM saved_item %s GROUP ALL`, where)

	rows, err := queryRows[struct {
		Count int `json:"count"`
	}](ctx, c, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Count, nil
}

// TotalItems counts stored items. An empty owner counts every owner's items.
func (c *Client) TotalItems(ctx context.Context, owner string) (int, error) {
	where := ""
	vars := map[string]any{}
	if owner != "" {
		where = "WHERE owner = $owner"
		vars["owner"] = owner
	}
	rows, err := queryRows[struct {
		Count int `json:"count"`
	}](ctx, c, fmt.Sprintf(`SELECT count() AS count FROM saved_item %s GROUP ALL`, where), vars)
	if err != nil {
		return 0, fmt.Errorf("total items: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Count, nil
}

// DeleteItem removes the owner's item and returns it as it was before deletion.
// Returns ErrNotFound if nothing was deleted.
func (c *Client) DeleteItem(ctx context.Context, owner, id string) (*models.SavedItem, error) {
	rows, err := queryRows[itemRow](ctx, c, `
		DELETE type::record("saved_item", $id) WHERE owner = $owner RETURN BEFORE
	`, map[string]any{"id": id, "owner": owner})
	if err != nil {
		return nil, fmt.Errorf("delete item: %w", err)
	}
	return firstItem(rows, "delete item")
}

// ToggleStar flips is_starred atomically and returns the updated item.
func (c *Client) ToggleStar(ctx context.Context, owner, id string) (*models.SavedItem, error) {
	rows, err := queryRows[itemRow](ctx, c, `
		UPDATE type::record("saved_item", $id)
		SET is_starred = !is_starred, updated_at = time::now()
		WHERE owner = $owner
		RETURN AFTER
	`, map[string]any{"id": id, "owner": owner})
	if err != nil {
		return nil, fmt.Errorf("toggle star: %w", err)
	}
	return firstItem(rows, "toggle star")
}

// UpdateEnrichment replaces the summary and categories of an item.
func (c *Client) UpdateEnrichment(ctx context.Context, owner, id string, summary *string, categories []string) (*models.SavedItem, error) {
	if categories == nil {
		categories = []string{}
	}
	rows, err := queryRows[itemRow](ctx, c, `
		UPDATE type::record("saved_item", $id)
		SET ai_summary = $summary, categories = $categories, updated_at = time::now()
		WHERE owner = $owner
		RETURN AFTER
	`, map[string]any{"id": id, "owner": owner, "summary": summary, "categories": categories})
	if err != nil {
		return nil, fmt.Errorf("update enrichment: %w", err)
	}
	return firstItem(rows, "update enrichment")
}

// KeywordQuery is a case-insensitive substring search.
type KeywordQuery struct {
	Owner      string
	Query      string
	Categories []string
	Platforms  []models.Platform
	Limit      int
}

// KeywordSearch matches the query against title, description, summary,
// extracted text, notes, categories and platform. Newest first.
func (c *Client) KeywordSearch(ctx context.Context, q KeywordQuery) ([]models.SavedItem, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Query))
	if needle == "" {
		return []models.SavedItem{}, nil
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}

	where, vars := searchFilter(q.Owner, q.Categories, q.Platforms)
	vars["q"] = needle
	vars["limit"] = q.Limit

	sql := fmt.Sprintf(`
		SELECT * FROM saved_item %s AND (
			string::contains(string::lowercase(title ?? ""), $q)
			OR string::contains(string::lowercase(description ?? ""), $q)
			OR string::contains(string::lowercase(ai_summary ?? ""), $q)
			OR string::contains(string::lowercase(extracted_text ?? ""), $q)
			OR string::contains(string::lowercase(notes ?? ""), $q)
			OR string::contains(string::lowercase(array::join(categories, " ")), $q)
			OR string::contains(source_platform, $q)
		) ORDER BY created_at DESC LIMIT $limit
	`, where)

	rows, err := queryRows[itemRow](ctx, c, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	items, err := toModels(rows)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return items, nil
}

func searchFilter(owner string, categories []string, platforms []models.Platform) (string, map[string]any) {
	conds := []string{"owner = $owner"}
	vars := map[string]any{"owner": owner}
	if len(categories) > 0 {
		conds = append(conds, "categories CONTAINSANY $categories")
		vars["categories"] = categories
	}
	if len(platforms) > 0 {
		ps := make([]string, len(platforms))
		for i, p := range platforms {
			ps[i] = string(p)
		}
		conds = append(conds, "source_platform IN $platforms")
		vars["platforms"] = ps
	}
	return "WHERE " + strings.Join(conds, " AND "), vars
}

// GetItemsByIDs returns the owner's items among ids, optionally filtered.
// Missing ids are skipped; order is unspecified.
func (c *Client) GetItemsByIDs(ctx context.Context, owner string, ids []string, categories []string, platforms []models.Platform) ([]models.SavedItem, error) {
	if len(ids) == 0 {
		return []models.SavedItem{}, nil
	}
	recordIDs := make([]surrealmodels.RecordID, len(ids))
	for i, id := range ids {
		recordIDs[i] = itemRecordID(id)
	}

	where, vars := searchFilter(owner, categories, platforms)
	vars["ids"] = recordIDs

	rows, err := queryRows[itemRow](ctx, c, fmt.Sprintf(`SELECT * FROM saved_item %s AND id IN $ids`, where), vars)
	if err != nil {
		return nil, fmt.Errorf("get items by ids: %w", err)
	}
	items, err := toModels(rows)
	if err != nil {
		return nil, fmt.Errorf("get items by ids: %w", err)
	}
	return items, nil
}

// LabelCount is a category label with the number of items carrying it.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// ListCategories returns the owner's category labels with item counts,
// most used first.
func (c *Client) ListCategories(ctx context.Context, owner string) ([]LabelCount, error) {
	rows, err := queryRows[LabelCount](ctx, c, `
		SELECT label, count() AS count FROM (
			SELECT array::flatten(categories) AS label FROM saved_item WHERE owner = $owner
		) SPLIT label GROUP BY label ORDER BY count DESC
	`, map[string]any{"owner": owner})
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if rows == nil {
		return []LabelCount{}, nil
	}
	return rows, nil
}

// IterateItems pages through items, oldest first, calling fn per batch.
// An empty owner iterates every owner's items. fn returning an error stops iteration.
func (c *Client) IterateItems(ctx context.Context, owner string, batchSize int, fn func([]models.SavedItem) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	where := ""
	vars := map[string]any{"limit": batchSize}
	if owner != "" {
		where = "WHERE owner = $owner"
		vars["owner"] = owner
	}
	sql := fmt.Sprintf(`SELECT * FROM saved_item %s ORDER BY created_at ASC LIMIT $limit START $start`, where)

	for start := 0; ; start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		vars["start"] = start
		rows, err := queryRows[itemRow](ctx, c, sql, vars)
		if err != nil {
			return fmt.Errorf("iterate items: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		items, err := toModels(rows)
		if err != nil {
			return fmt.Errorf("iterate items: %w", err)
		}
		if err := fn(items); err != nil {
			return err
		}
		if len(rows) < batchSize {
			return nil
		}
	}
}
