package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/raphaelgruber/mindbase/internal/extract"
	"github.com/raphaelgruber/mindbase/internal/models"
	"github.com/raphaelgruber/mindbase/internal/service/servicetest"
	"github.com/raphaelgruber/mindbase/internal/storage"
	"github.com/raphaelgruber/mindbase/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "alice"

// brokenIndex fails every call.
type brokenIndex struct{}

func (brokenIndex) Name() string { return "broken" }
func (brokenIndex) Upsert(context.Context, ...vector.Record) error {
	return errors.New("index unreachable")
}
func (brokenIndex) Query(context.Context, []float32, vector.Filter, int) ([]vector.Match, error) {
	return nil, errors.New("index unreachable")
}
func (brokenIndex) Delete(context.Context, ...string) error { return errors.New("index unreachable") }

// deletingIndex removes the item from the store just before each upsert,
// as a concurrent Delete would.
type deletingIndex struct {
	*vector.MemoryIndex
	store *servicetest.MemStore
}

func (d deletingIndex) Upsert(ctx context.Context, records ...vector.Record) error {
	for _, r := range records {
		_, _ = d.store.DeleteItem(ctx, r.Owner, r.ID)
	}
	return d.MemoryIndex.Upsert(ctx, records...)
}

type ingestFixture struct {
	store    *servicetest.MemStore
	index    *vector.MemoryIndex
	enricher *fakeEnricher
	blobs    *storage.DiskStore
	svc      *IngestService
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	blobs, err := storage.NewDiskStore(t.TempDir(), "http://media.test")
	require.NoError(t, err)
	f := &ingestFixture{
		store:    servicetest.NewMemStore(),
		index:    vector.NewMemoryIndex(len(fakeVocab) + 1),
		enricher: &fakeEnricher{},
		blobs:    blobs,
	}
	f.svc = NewIngestService(f.store, f.index, fakeExtractor{url: extract.Result{
		Title:       "Example Article",
		Description: "An article about examples.",
		Text:        "Example Article\n\nAn article about examples.",
	}}, f.enricher, blobs, 1<<20)
	return f
}

func TestSaveURLScenario(t *testing.T) {
	f := newIngestFixture(t)
	f.enricher.summary = models.Ptr("An example article.")
	f.enricher.categories = []string{"Reading"}

	item, err := f.svc.Save(context.Background(), testOwner, SaveInput{Content: " https://example.com/article "})
	require.NoError(t, err)

	assert.NotEmpty(t, item.ID)
	assert.Equal(t, models.ContentURL, item.ContentType)
	assert.Equal(t, models.PlatformGeneric, item.SourcePlatform)
	assert.Equal(t, "https://example.com/article", models.Deref(item.SourceURL))
	assert.Equal(t, "https://example.com/article", item.RawContent)
	assert.Equal(t, "Example Article", models.Deref(item.Title))
	assert.Contains(t, models.Deref(item.ExtractedText), "Example Article")
	assert.Equal(t, "An example article.", models.Deref(item.AISummary))
	assert.Equal(t, []string{"Reading"}, item.Categories)
	assert.False(t, item.IsStarred)
	assert.Nil(t, item.Notes)
	assert.Equal(t, 1, f.index.Len())

	got, err := f.store.GetItem(context.Background(), testOwner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, *item, *got, "save returns the persisted item")
}

func TestSaveClassification(t *testing.T) {
	tests := []struct {
		name         string
		in           SaveInput
		wantType     models.ContentType
		wantPlatform models.Platform
		wantURL      bool
		wantTitle    string
	}{
		{
			name:         "plain text",
			in:           SaveInput{Content: "just some text"},
			wantType:     models.ContentText,
			wantPlatform: models.PlatformGeneric,
			wantTitle:    "just some text",
		},
		{
			name:         "youtube url",
			in:           SaveInput{Content: "https://www.youtube.com/watch?v=abc"},
			wantType:     models.ContentURL,
			wantPlatform: models.PlatformYouTube,
			wantURL:      true,
			wantTitle:    "Example Article",
		},
		{
			name:         "text with embedded link keeps text type",
			in:           SaveInput{Content: "watch this https://youtu.be/xyz later"},
			wantType:     models.ContentText,
			wantPlatform: models.PlatformYouTube,
			wantTitle:    "watch this https://youtu.be/xyz later",
		},
		{
			name:         "text hint on a url",
			in:           SaveInput{Content: "https://x.com/post/1", Type: models.ContentText},
			wantType:     models.ContentText,
			wantPlatform: models.PlatformTwitter,
			wantTitle:    "https://x.com/post/1",
		},
		{
			name:         "url hint on plain text falls back to text",
			in:           SaveInput{Content: "not a link", Type: models.ContentURL},
			wantType:     models.ContentText,
			wantPlatform: models.PlatformGeneric,
			wantTitle:    "not a link",
		},
		{
			name:         "image hint on a url is ignored",
			in:           SaveInput{Content: "https://www.youtube.com/watch?v=abc", Type: models.ContentImage},
			wantType:     models.ContentURL,
			wantPlatform: models.PlatformYouTube,
			wantURL:      true,
			wantTitle:    "Example Article",
		},
		{
			name:         "platform hint for generic content",
			in:           SaveInput{Content: "forwarded message", Platform: models.PlatformWhatsApp},
			wantType:     models.ContentText,
			wantPlatform: models.PlatformWhatsApp,
			wantTitle:    "forwarded message",
		},
		{
			name:         "platform hint never overrides detection",
			in:           SaveInput{Content: "https://t.me/channel/5", Platform: models.PlatformWhatsApp},
			wantType:     models.ContentURL,
			wantPlatform: models.PlatformTelegram,
			wantURL:      true,
			wantTitle:    "Example Article",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIngestFixture(t)
			item, err := f.svc.Save(context.Background(), testOwner, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, item.ContentType)
			assert.Equal(t, tt.wantPlatform, item.SourcePlatform)
			assert.Equal(t, tt.wantURL, item.SourceURL != nil, "source_url present iff url content")
			assert.Equal(t, tt.wantTitle, models.Deref(item.Title))
		})
	}
}

func TestSaveLongTextTitleIsTruncated(t *testing.T) {
	f := newIngestFixture(t)
	long := ""
	for i := 0; i < 30; i++ {
		long += "word "
	}
	item, err := f.svc.Save(context.Background(), testOwner, SaveInput{Content: long + "\n\nsecond paragraph"})
	require.NoError(t, err)
	title := models.Deref(item.Title)
	assert.Equal(t, 103, len([]rune(title)))
	assert.True(t, len(title) > 3 && title[len(title)-3:] == "...")
}

func TestSaveRejectsBadInput(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	_, err := f.svc.Save(ctx, testOwner, SaveInput{Content: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Save(ctx, "", SaveInput{Content: "abc"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSaveDegradesWhenEnrichmentFails(t *testing.T) {
	f := newIngestFixture(t)
	f.enricher.noEmbed = true

	item, err := f.svc.Save(context.Background(), testOwner, SaveInput{Content: "notes about chatgpt prompts"})
	require.NoError(t, err)
	assert.Empty(t, item.Categories)
	assert.NotNil(t, item.Categories, "categories is an empty set, not null")
	assert.Nil(t, item.AISummary)
	assert.Zero(t, f.index.Len(), "no vector without an embedding")

	listed, err := f.store.ListItems(context.Background(), listOpts(testOwner))
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestSaveSurvivesVectorFailure(t *testing.T) {
	f := newIngestFixture(t)
	f.svc.index = brokenIndex{}

	item, err := f.svc.Save(context.Background(), testOwner, SaveInput{Content: "rust borrow checker"})
	require.NoError(t, err)
	_, err = f.store.GetItem(context.Background(), testOwner, item.ID)
	assert.NoError(t, err)
}

func TestSaveFailsWhenStoreFails(t *testing.T) {
	f := newIngestFixture(t)
	f.store.Fail(errStoreDown)

	_, err := f.svc.Save(context.Background(), testOwner, SaveInput{Content: "anything"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePersisted, stageErr.Stage)
	assert.Zero(t, f.index.Len())
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func TestUploadImage(t *testing.T) {
	f := newIngestFixture(t)
	f.svc.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 0, 0, time.UTC) }
	raw := testPNG(t)

	item, err := f.svc.UploadImage(context.Background(), testOwner, ImageInput{
		Data: "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw),
	})
	require.NoError(t, err)

	assert.Equal(t, models.ContentImage, item.ContentType)
	assert.Nil(t, item.SourceURL)
	assert.Equal(t, "Image saved 2026-03-04 05:06", models.Deref(item.Title))
	assert.Equal(t, []string{ImagesCategory}, item.Categories)
	assert.Equal(t, item.RawContent, models.Deref(item.ThumbnailURL))
	assert.Nil(t, item.ExtractedText)
	assert.Zero(t, f.index.Len(), "images without notes have nothing to embed")

	key, ok := f.blobs.KeyFromURL(item.RawContent)
	require.True(t, ok)
	rc, err := f.blobs.Open(context.Background(), key)
	require.NoError(t, err)
	stored, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, raw, stored)
}

func TestUploadImageWithNotes(t *testing.T) {
	f := newIngestFixture(t)
	f.enricher.categories = []string{"Finance", "Images", "Reading", "News", "AI"}

	item, err := f.svc.UploadImage(context.Background(), testOwner, ImageInput{
		Data:     base64.StdEncoding.EncodeToString(testPNG(t)),
		MimeType: "image/png",
		Notes:    "photo of the finance whiteboard",
	})
	require.NoError(t, err)
	assert.Equal(t, "photo of the finance whiteboard", models.Deref(item.Title))
	assert.Equal(t, "photo of the finance whiteboard", models.Deref(item.ExtractedText))
	assert.Equal(t, []string{"Finance", "Reading", "News", "AI", "Images"}, item.Categories)
	assert.Equal(t, 1, f.index.Len())
}

func TestUploadImageRejectsBadPayloads(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	_, err := f.svc.UploadImage(ctx, testOwner, ImageInput{Data: "%%%"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.UploadImage(ctx, testOwner, ImageInput{Data: base64.StdEncoding.EncodeToString([]byte("hello"))})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.UploadImage(ctx, testOwner, ImageInput{Data: base64.StdEncoding.EncodeToString(testPNG(t)), MimeType: "image/jpeg"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	f.svc.maxImageBytes = 10
	_, err = f.svc.UploadImage(ctx, testOwner, ImageInput{Data: base64.StdEncoding.EncodeToString(testPNG(t))})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUploadImageRemovesBlobWhenStoreFails(t *testing.T) {
	f := newIngestFixture(t)
	f.store.Fail(errStoreDown)

	_, err := f.svc.SaveImage(context.Background(), testOwner, testPNG(t), "image/png", "")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestWithImagesCategory(t *testing.T) {
	assert.Equal(t, []string{"Images"}, withImagesCategory(nil))
	assert.Equal(t, []string{"AI", "Images"}, withImagesCategory([]string{"images", "AI"}))
	assert.Len(t, withImagesCategory([]string{"a", "b", "c", "d", "e"}), models.MaxCategories)
}

func TestSaveDropsVectorOfItemDeletedDuringIndexing(t *testing.T) {
	f := newIngestFixture(t)
	f.svc.index = deletingIndex{MemoryIndex: f.index, store: f.store}

	_, err := f.svc.Save(context.Background(), testOwner, SaveInput{Content: "short lived note"})
	require.NoError(t, err)
	assert.Zero(t, f.index.Len(), "no vector outlives its item")
}
