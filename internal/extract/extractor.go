// Package extract turns classified content into normalized text.
//
// Every failure here is soft: Extract never returns an error, it returns
// whatever it could derive and logs the rest.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raphaelgruber/mindbase/internal/metrics"
	"github.com/raphaelgruber/mindbase/internal/models"
)

const (
	// MaxTextLen caps extracted text handed to enrichment.
	MaxTextLen = 5000

	maxBodyBytes     = 2 << 20
	defaultUserAgent = "Mozilla/5.0 (compatible; MindBaseBot/1.0; +https://github.com/raphaelgruber/mindbase)"
)

// ErrNotHTML is returned by FetchMetadata for non-HTML responses.
var ErrNotHTML = errors.New("response is not HTML")

// Input is the classified content to extract from.
type Input struct {
	Type      models.ContentType
	Raw       string
	SourceURL string
	Notes     string
}

// Result holds extracted fields. Empty strings mean absent.
type Result struct {
	Title        string
	Description  string
	ThumbnailURL string
	Text         string
}

// Extractor fetches URL metadata and normalizes text.
type Extractor struct {
	http      *http.Client
	timeout   time.Duration
	userAgent string
	cache     MetadataCache
	metrics   *metrics.Collector
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) { e.http = c }
}

// WithCache enables metadata caching.
func WithCache(c MetadataCache) Option {
	return func(e *Extractor) { e.cache = c }
}

// WithMetrics records fetch timings.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Extractor) { e.metrics = m }
}

// New creates an Extractor whose URL fetches are bounded by timeout.
func New(timeout time.Duration, opts ...Option) *Extractor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	e := &Extractor{
		http:      &http.Client{},
		timeout:   timeout,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract derives normalized text and, for URLs, page metadata.
func (e *Extractor) Extract(ctx context.Context, in Input) Result {
	switch in.Type {
	case models.ContentText:
		return Result{Text: limitText(strings.TrimSpace(in.Raw))}

	case models.ContentURL:
		target := in.SourceURL
		if target == "" {
			target = strings.TrimSpace(in.Raw)
		}
		meta, err := e.FetchMetadata(ctx, target)
		if err != nil {
			slog.Warn("metadata extraction failed", "stage", "extract", "url", target, "error", err)
			return Result{}
		}
		return Result{
			Title:        meta.Title,
			Description:  meta.Description,
			ThumbnailURL: meta.ThumbnailURL,
			Text:         limitText(joinNonEmpty("\n\n", meta.Title, meta.Description)),
		}

	case models.ContentImage:
		return Result{Text: limitText(strings.TrimSpace(in.Notes))}
	}
	return Result{}
}

// FetchMetadata retrieves title, description and thumbnail for a page.
func (e *Extractor) FetchMetadata(ctx context.Context, pageURL string) (Metadata, error) {
	if e.cache != nil {
		if m, ok, err := e.cache.Get(ctx, pageURL); err != nil {
			slog.Debug("metadata cache read failed", "url", pageURL, "error", err)
		} else if ok {
			return m, nil
		}
	}

	start := time.Now()
	m, err := e.fetch(ctx, pageURL)
	e.metrics.Observe(metrics.OpExtract, start, err)
	if err != nil {
		return Metadata{}, err
	}
	if m.Empty() {
		return Metadata{}, errors.New("page has no usable metadata")
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, pageURL, m); err != nil {
			slog.Debug("metadata cache write failed", "url", pageURL, "error", err)
		}
	}
	return m, nil
}

func (e *Extractor) fetch(ctx context.Context, pageURL string) (Metadata, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return Metadata{}, fmt.Errorf("parse url: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := e.http.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Metadata{}, fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}
	if !isHTML(resp.Header.Get("Content-Type")) {
		return Metadata{}, fmt.Errorf("%w: %s", ErrNotHTML, resp.Header.Get("Content-Type"))
	}

	// Redirects may have moved us; resolve relative thumbnails against the final URL.
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}
	return ParseMetadata(io.LimitReader(resp.Body, maxBodyBytes), base), nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

func limitText(s string) string {
	return models.Truncate(s, MaxTextLen, "")
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
