// Package service implements the MindBase ingestion pipeline, retrieval
// engine and reindexing on top of the store, vector index and AI capabilities.
package service

import (
	"context"

	"github.com/raphaelgruber/mindbase/internal/db"
	"github.com/raphaelgruber/mindbase/internal/enrich"
	"github.com/raphaelgruber/mindbase/internal/extract"
	"github.com/raphaelgruber/mindbase/internal/llm"
	"github.com/raphaelgruber/mindbase/internal/models"
)

// Store is the relational store. *db.Client implements it.
type Store interface {
	CreateItem(ctx context.Context, item models.SavedItem) (*models.SavedItem, error)
	GetItem(ctx context.Context, owner, id string) (*models.SavedItem, error)
	ListItems(ctx context.Context, opts db.ListOptions) ([]models.SavedItem, error)
	CountItems(ctx context.Context, opts db.ListOptions) (int, error)
	TotalItems(ctx context.Context, owner string) (int, error)
	DeleteItem(ctx context.Context, owner, id string) (*models.SavedItem, error)
	ToggleStar(ctx context.Context, owner, id string) (*models.SavedItem, error)
	UpdateEnrichment(ctx context.Context, owner, id string, summary *string, categories []string) (*models.SavedItem, error)
	KeywordSearch(ctx context.Context, q db.KeywordQuery) ([]models.SavedItem, error)
	GetItemsByIDs(ctx context.Context, owner string, ids []string, categories []string, platforms []models.Platform) ([]models.SavedItem, error)
	ListCategories(ctx context.Context, owner string) ([]db.LabelCount, error)
	IterateItems(ctx context.Context, owner string, batchSize int, fn func([]models.SavedItem) error) error
}

// Extractor derives text and page metadata. *extract.Extractor implements it.
type Extractor interface {
	Extract(ctx context.Context, in extract.Input) extract.Result
}

// Enricher produces summaries, categories and embeddings without failing.
// *enrich.Enricher implements it.
type Enricher interface {
	Enrich(ctx context.Context, text string) enrich.Result
	Categorize(ctx context.Context, text string) []string
	Embed(ctx context.Context, text string) []float32
}

// ChatModel answers chat turns. *llm.Model implements it.
type ChatModel interface {
	Chat(ctx context.Context, systemPrompt string, history []models.ChatTurn, message string, opts ...llm.Option) (string, error)
	ChatStream(ctx context.Context, systemPrompt string, history []models.ChatTurn, message string, onToken func(string) error, opts ...llm.Option) (string, error)
}

var (
	_ Store     = (*db.Client)(nil)
	_ Extractor = (*extract.Extractor)(nil)
	_ Enricher  = (*enrich.Enricher)(nil)
	_ ChatModel = (*llm.Model)(nil)
)
