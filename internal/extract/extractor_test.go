package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raphaelgruber/mindbase/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<!doctype html>
<html><head>
<title>  Fallback   Title </title>
<meta name="description" content="plain description">
<meta property="og:title" content="Example Article">
<meta property="og:description" content="An article about examples.">
<meta property="og:image" content="/img/cover.png">
</head><body><p>ignored</p></body></html>`

func TestParseMetadataPrecedence(t *testing.T) {
	tests := []struct {
		name string
		html string
		want Metadata
	}{
		{
			name: "open graph wins",
			html: articleHTML,
			want: Metadata{Title: "Example Article", Description: "An article about examples.", ThumbnailURL: "https://example.com/img/cover.png"},
		},
		{
			name: "twitter card",
			html: `<head><meta name="twitter:title" content="Tweet"><meta name="twitter:image" content="https://cdn.example.com/t.jpg"><title>T</title></head>`,
			want: Metadata{Title: "Tweet", ThumbnailURL: "https://cdn.example.com/t.jpg"},
		},
		{
			name: "plain head",
			html: `<html><head><title>Plain &amp; Simple</title><meta name="Description" content="desc"></head></html>`,
			want: Metadata{Title: "Plain & Simple", Description: "desc"},
		},
		{
			name: "nothing",
			html: `<html><body><h1>hi</h1></body></html>`,
			want: Metadata{},
		},
	}

	base, _ := url.Parse("https://example.com/article")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMetadata(strings.NewReader(tt.html), base)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractText(t *testing.T) {
	e := New(time.Second)
	res := e.Extract(context.Background(), Input{Type: models.ContentText, Raw: "  hello world \n"})
	assert.Equal(t, "hello world", res.Text)
	assert.Empty(t, res.Title)

	long := strings.Repeat("a", MaxTextLen+100)
	res = e.Extract(context.Background(), Input{Type: models.ContentText, Raw: long})
	assert.Len(t, res.Text, MaxTextLen)
}

func TestExtractURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	e := New(time.Second)
	res := e.Extract(context.Background(), Input{Type: models.ContentURL, Raw: srv.URL + "/article", SourceURL: srv.URL + "/article"})

	assert.Equal(t, "Example Article", res.Title)
	assert.Equal(t, "An article about examples.", res.Description)
	assert.Equal(t, srv.URL+"/img/cover.png", res.ThumbnailURL)
	assert.Contains(t, res.Text, "Example Article")
	assert.Contains(t, res.Text, "An article about examples.")
}

func TestExtractURLSoftFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"not html", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			fmt.Fprint(w, "%PDF-1.4")
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}},
		{"no metadata", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html><body>nothing</body></html>")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			e := New(100 * time.Millisecond)
			res := e.Extract(context.Background(), Input{Type: models.ContentURL, SourceURL: srv.URL})
			assert.Equal(t, Result{}, res)
		})
	}
}

func TestExtractURLUnreachable(t *testing.T) {
	e := New(100 * time.Millisecond)
	res := e.Extract(context.Background(), Input{Type: models.ContentURL, SourceURL: "http://127.0.0.1:1/nothing"})
	assert.Equal(t, Result{}, res)
}

func TestExtractImageUsesNotes(t *testing.T) {
	e := New(time.Second)
	res := e.Extract(context.Background(), Input{Type: models.ContentImage, Notes: " whiteboard photo "})
	assert.Equal(t, "whiteboard photo", res.Text)

	res = e.Extract(context.Background(), Input{Type: models.ContentImage})
	assert.Empty(t, res.Text)
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string]Metadata
}

func (c *memoryCache) Get(_ context.Context, url string) (Metadata, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.data[url]
	return m, ok, nil
}

func (c *memoryCache) Set(_ context.Context, url string, m Metadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[url] = m
	return nil
}

func TestFetchMetadataUsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	cache := &memoryCache{data: map[string]Metadata{}}
	e := New(time.Second, WithCache(cache))

	for i := 0; i < 3; i++ {
		m, err := e.FetchMetadata(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, "Example Article", m.Title)
	}
	assert.Equal(t, int32(1), hits.Load())
}
