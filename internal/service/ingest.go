package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/mindbase/internal/classify"
	"github.com/raphaelgruber/mindbase/internal/db"
	"github.com/raphaelgruber/mindbase/internal/extract"
	"github.com/raphaelgruber/mindbase/internal/models"
	"github.com/raphaelgruber/mindbase/internal/storage"
	"github.com/raphaelgruber/mindbase/internal/vector"
)

// Stage is a step of the ingestion pipeline.
type Stage string

const (
	StageReceived   Stage = "received"
	StageClassified Stage = "classified"
	StageExtracted  Stage = "extracted"
	StageEnriched   Stage = "enriched"
	StagePersisted  Stage = "persisted"
	StageIndexed    Stage = "indexed"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

const (
	// ImagesCategory is always attached to uploaded images.
	ImagesCategory = "Images"

	titleMaxLen = 100
)

// IngestService runs the save pipeline:
// classify, extract, enrich, persist, index.
type IngestService struct {
	store         Store
	index         vector.Index
	extractor     Extractor
	enricher      Enricher
	blobs         storage.BlobStore
	maxImageBytes int
	now           func() time.Time
}

// NewIngestService creates an ingest service. index and blobs may be nil:
// items are then not indexed and image uploads are refused.
func NewIngestService(store Store, index vector.Index, extractor Extractor, enricher Enricher, blobs storage.BlobStore, maxImageBytes int) *IngestService {
	return &IngestService{
		store:         store,
		index:         index,
		extractor:     extractor,
		enricher:      enricher,
		blobs:         blobs,
		maxImageBytes: maxImageBytes,
		now:           time.Now,
	}
}

// SaveInput is content captured by a client.
type SaveInput struct {
	Content  string             `json:"content"`
	Notes    string             `json:"notes,omitempty"`
	Type     models.ContentType `json:"content_type,omitempty"`
	Platform models.Platform    `json:"source_platform,omitempty"`
}

// ImageInput is a base64 image upload.
type ImageInput struct {
	Data     string `json:"image_data"`
	MimeType string `json:"mime_type,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// pipeline logs stage transitions for one item.
type pipeline struct {
	log   *slog.Logger
	start time.Time
}

func newPipeline(id, owner string) *pipeline {
	p := &pipeline{log: slog.With("item_id", id, "owner", owner), start: time.Now()}
	p.advance(StageReceived)
	return p
}

func (p *pipeline) advance(stage Stage, args ...any) {
	p.log.Debug("ingest stage", append([]any{"stage", stage}, args...)...)
}

func (p *pipeline) done(item *models.SavedItem, indexed bool) {
	p.log.Info("item saved",
		"content_type", item.ContentType,
		"platform", item.SourcePlatform,
		"categories", len(item.Categories),
		"summary", item.AISummary != nil,
		"indexed", indexed,
		"duration_ms", time.Since(p.start).Milliseconds())
}

func (p *pipeline) fail(err error) error {
	p.log.Error("ingest failed", "stage", StageFailed, "error", err)
	return &StageError{Stage: StagePersisted, Err: err}
}

// Save runs the full pipeline for text or URL content. Only a failure to
// persist the item is returned as an error; every other stage degrades.
func (s *IngestService) Save(ctx context.Context, owner string, in SaveInput) (*models.SavedItem, error) {
	if owner == "" {
		return nil, invalidf("owner is required")
	}
	raw := strings.TrimSpace(in.Content)
	if raw == "" {
		return nil, invalidf("content is empty")
	}

	id := uuid.NewString()
	p := newPipeline(id, owner)

	cls, err := classify.Classify(raw, in.Type)
	if err != nil {
		return nil, invalidf("%v", err)
	}
	platform := cls.Platform
	if cls.Type == models.ContentText {
		if u, ok := classify.FindURL(raw); ok {
			platform = classify.DetectPlatform(u)
		}
	}
	if platform == models.PlatformGeneric && in.Platform.Valid() {
		platform = in.Platform
	}
	p.advance(StageClassified, "content_type", cls.Type, "platform", platform)

	ex := s.extractor.Extract(ctx, extract.Input{
		Type:      cls.Type,
		Raw:       raw,
		SourceURL: models.Deref(cls.SourceURL),
		Notes:     in.Notes,
	})
	p.advance(StageExtracted, "has_text", ex.Text != "")

	item := models.SavedItem{
		ID:             id,
		Owner:          owner,
		SourcePlatform: platform,
		SourceURL:      cls.SourceURL,
		ContentType:    cls.Type,
		Title:          models.Ptr(ex.Title),
		Description:    models.Ptr(ex.Description),
		ThumbnailURL:   models.Ptr(ex.ThumbnailURL),
		RawContent:     raw,
		ExtractedText:  models.Ptr(ex.Text),
		Notes:          models.Ptr(strings.TrimSpace(in.Notes)),
	}
	if item.Title == nil && cls.Type == models.ContentText {
		item.Title = models.Ptr(plainTextTitle(raw))
	}

	res := s.enricher.Enrich(ctx, item.SearchableText())
	item.AISummary = res.Summary
	item.Categories = nonNil(res.Categories)
	p.advance(StageEnriched, "categories", item.Categories, "embedding", len(res.Embedding) > 0)

	created, err := s.store.CreateItem(ctx, item)
	if err != nil {
		return nil, p.fail(storeErr("save item", err))
	}
	p.advance(StagePersisted)

	indexed := s.indexItem(ctx, *created, res.Embedding)
	p.done(created, indexed)
	return created, nil
}

// UploadImage decodes a base64 payload and saves it as an image item.
// MimeType falls back to the data URL prefix when empty.
func (s *IngestService) UploadImage(ctx context.Context, owner string, in ImageInput) (*models.SavedItem, error) {
	data, prefixMime, err := extract.DecodeBase64Image(in.Data)
	if err != nil {
		return nil, invalidf("%v", err)
	}
	mime := in.MimeType
	if mime == "" {
		mime = prefixMime
	}
	return s.SaveImage(ctx, owner, data, mime, in.Notes)
}

// SaveImage stores image bytes as a blob and saves an image item pointing at it.
func (s *IngestService) SaveImage(ctx context.Context, owner string, data []byte, mime, notes string) (*models.SavedItem, error) {
	if owner == "" {
		return nil, invalidf("owner is required")
	}
	if s.blobs == nil {
		return nil, fmt.Errorf("%w: media storage is not configured", ErrStoreUnavailable)
	}

	info, err := extract.ValidateImage(data, mime, s.maxImageBytes)
	if err != nil {
		return nil, invalidf("%v", err)
	}

	id := uuid.NewString()
	p := newPipeline(id, owner)
	p.advance(StageClassified, "content_type", models.ContentImage, "format", info.Format)

	key := storage.NewKey(owner, info.Extension())
	if err := s.blobs.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return nil, p.fail(fmt.Errorf("store image: %w: %w", ErrStoreUnavailable, err))
	}
	url := s.blobs.PublicURL(key)

	notes = strings.TrimSpace(notes)
	ex := s.extractor.Extract(ctx, extract.Input{Type: models.ContentImage, Notes: notes})
	p.advance(StageExtracted, "has_text", ex.Text != "")

	title := models.Truncate(notes, titleMaxLen, "")
	if title == "" {
		title = "Image saved " + s.now().Format("2006-01-02 15:04")
	}
	item := models.SavedItem{
		ID:             id,
		Owner:          owner,
		SourcePlatform: models.PlatformGeneric,
		ContentType:    models.ContentImage,
		Title:          &title,
		Description:    models.Ptr(notes),
		ThumbnailURL:   &url,
		RawContent:     url,
		ExtractedText:  models.Ptr(ex.Text),
		Notes:          models.Ptr(notes),
	}

	res := s.enricher.Enrich(ctx, ex.Text)
	item.AISummary = res.Summary
	item.Categories = withImagesCategory(res.Categories)
	p.advance(StageEnriched, "categories", item.Categories, "embedding", len(res.Embedding) > 0)

	created, err := s.store.CreateItem(ctx, item)
	if err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			p.log.Warn("failed to remove orphaned image", "key", key, "error", delErr)
		}
		return nil, p.fail(storeErr("save image", err))
	}
	p.advance(StagePersisted)

	indexed := s.indexItem(ctx, *created, res.Embedding)
	p.done(created, indexed)
	return created, nil
}

// indexItem upserts the item's vector. Failure leaves the item saved but
// absent from semantic search until the next reindex.
func (s *IngestService) indexItem(ctx context.Context, item models.SavedItem, vec []float32) bool {
	if s.index == nil || len(vec) == 0 {
		return false
	}
	if err := upsertVector(ctx, s.index, item, vec); err != nil {
		slog.Warn("vector upsert failed", "stage", StageIndexed, "item_id", item.ID, "index", s.index.Name(), "error", err)
		return false
	}
	// A delete that ran between persist and upsert leaves a vector with no
	// item. A delete after this check removes the vector itself.
	if _, err := s.store.GetItem(ctx, item.Owner, item.ID); errors.Is(err, db.ErrNotFound) {
		if err := s.index.Delete(ctx, item.ID); err != nil {
			slog.Warn("orphan vector delete failed", "stage", StageIndexed, "item_id", item.ID, "error", err)
		}
		return false
	}
	slog.Debug("ingest stage", "stage", StageIndexed, "item_id", item.ID)
	return true
}

func upsertVector(ctx context.Context, index vector.Index, item models.SavedItem, vec []float32) error {
	return index.Upsert(ctx, vector.Record{
		ID:     item.ID,
		Owner:  item.Owner,
		Vector: vec,
		Payload: map[string]string{
			"content_type":    string(item.ContentType),
			"source_platform": string(item.SourcePlatform),
		},
	})
}

func plainTextTitle(raw string) string {
	line := strings.Join(strings.Fields(raw), " ")
	return models.Truncate(line, titleMaxLen, "...")
}

// withImagesCategory returns labels with ImagesCategory present, keeping the
// total within models.MaxCategories.
func withImagesCategory(labels []string) []string {
	out := make([]string, 0, models.MaxCategories)
	for _, l := range labels {
		if strings.EqualFold(l, ImagesCategory) {
			continue
		}
		if len(out) == models.MaxCategories-1 {
			break
		}
		out = append(out, l)
	}
	return append(out, ImagesCategory)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
