package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/mindbase/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Setenv("MINDBASE_TOKEN", "secret-token")
	return New(srv.URL)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewConfig(t *testing.T) {
	t.Setenv("MINDBASE_SERVER_URL", "http://mindbase.test:9000/")
	t.Setenv("MINDBASE_CLIENT_TIMEOUT", "5s")
	t.Setenv("MINDBASE_TOKEN", "tok")

	c := New("")
	assert.Equal(t, "http://mindbase.test:9000", c.BaseURL())
	assert.Equal(t, 5*time.Second, c.httpClient.Timeout)
	assert.Equal(t, "tok", c.token)

	other := c.WithToken("other")
	assert.Equal(t, "other", other.token)
	assert.Equal(t, "tok", c.token)
}

func TestNewDefaults(t *testing.T) {
	t.Setenv("MINDBASE_SERVER_URL", "")
	t.Setenv("MINDBASE_CLIENT_TIMEOUT", "bogus")

	c := New("")
	assert.Equal(t, "http://localhost:8585", c.BaseURL())
	assert.Equal(t, 2*time.Minute, c.httpClient.Timeout)
}

func TestSave(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/items", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in SaveInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "https://example.com", in.Content)
		assert.Equal(t, "read later", in.Notes)

		writeJSON(w, http.StatusCreated, models.SavedItem{
			ID:          "abc",
			ContentType: models.ContentURL,
			SourceURL:   models.Ptr(in.Content),
			Categories:  []string{"reading"},
		})
	})
	c := newTestClient(t, mux)

	item, err := c.Save(context.Background(), SaveInput{Content: "https://example.com", Notes: "read later"})
	require.NoError(t, err)
	assert.Equal(t, "abc", item.ID)
	assert.Equal(t, models.ContentURL, item.ContentType)
	assert.Equal(t, []string{"reading"}, item.Categories)
}

func TestErrorEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, models.ErrorEnvelope{
			Error: models.APIError{Message: "item missing not found", Code: "not_found"},
		})
	})
	mux.HandleFunc("DELETE /api/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})
	c := newTestClient(t, mux)

	_, err := c.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Code)
	assert.Equal(t, "item missing not found", apiErr.Message)

	err = c.Delete(context.Background(), "x")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Empty(t, apiErr.Code)
	assert.Equal(t, "upstream exploded", apiErr.Message)
	assert.False(t, IsNotFound(err))
}

func TestListQuery(t *testing.T) {
	tests := []struct {
		name string
		opts ListOptions
		want string
	}{
		{name: "empty", opts: ListOptions{}, want: ""},
		{name: "paging", opts: ListOptions{Limit: 10, Offset: 20}, want: "limit=10&offset=20"},
		{
			name: "filters",
			opts: ListOptions{Category: "rust", Platform: "youtube", Type: "url", Starred: models.Ptr(true)},
			want: "category=rust&platform=youtube&starred=true&type=url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /api/v1/items", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.want, r.URL.RawQuery)
				writeJSON(w, http.StatusOK, models.ItemPage{Items: []models.SavedItem{}, Total: 3, Limit: 10})
			})
			c := newTestClient(t, mux)

			page, err := c.List(context.Background(), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, 3, page.Total)
		})
	}
}

func TestUploadImage(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/items/image", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whiteboard", r.FormValue("notes"))

		f, hdr, err := r.FormFile("image")
		require.NoError(t, err)
		defer f.Close()
		data, err := io.ReadAll(f)
		require.NoError(t, err)

		assert.Equal(t, "shot.png", hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		assert.Equal(t, png, data)

		writeJSON(w, http.StatusCreated, models.SavedItem{ID: "img", ContentType: models.ContentImage})
	})
	c := newTestClient(t, mux)

	item, err := c.UploadImage(context.Background(), "/tmp/shots/shot.png", png, "whiteboard")
	require.NoError(t, err)
	assert.Equal(t, "img", item.ID)
}

func TestCategoriesAndJobs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/categories", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"categories": []models.CategoryCount{{Name: "rust", Count: 4}, {Name: "music", Count: 1}},
		})
	})
	mux.HandleFunc("POST /api/v1/admin/reindex", func(w http.ResponseWriter, r *http.Request) {
		var opts ReindexOptions
		require.NoError(t, json.NewDecoder(r.Body).Decode(&opts))
		if r.URL.Query().Get("async") == "false" {
			writeJSON(w, http.StatusOK, ReindexResult{Scanned: 2, Reindexed: 2})
			return
		}
		assert.True(t, opts.Reenrich)
		writeJSON(w, http.StatusAccepted, Job{ID: "j1", Type: "reindex", Status: "pending"})
	})
	mux.HandleFunc("GET /api/v1/admin/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Job{ID: r.PathValue("id"), Status: "completed", Progress: 2, Total: 2,
			Result: &ReindexResult{Scanned: 2, Reindexed: 2}})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	cats, err := c.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "rust", cats[0].Name)
	assert.Equal(t, 4, cats[0].Count)

	job, err := c.StartReindex(ctx, ReindexOptions{Reenrich: true})
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
	assert.False(t, job.Done())

	job, err = c.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, job.Done())
	assert.Equal(t, 2, job.Result.Reindexed)

	res, err := c.Reindex(ctx, ReindexOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
}

func chatStreamServer(t *testing.T, frames []models.ChatFrame) *http.ServeMux {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/chat/stream", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var in chatRequest
		require.NoError(t, conn.ReadJSON(&in))
		assert.Equal(t, "what did I save about rust?", in.Message)
		require.Len(t, in.History, 1)

		for _, f := range frames {
			require.NoError(t, conn.WriteJSON(f))
		}
		// Wait for the client to close.
		_, _, _ = conn.ReadMessage()
	})
	return mux
}

func TestChatStream(t *testing.T) {
	source := models.SavedItem{ID: "s1", Title: models.Ptr("Rust ownership")}
	mux := chatStreamServer(t, []models.ChatFrame{
		{Type: models.FrameSources, Sources: []models.SavedItem{source}},
		{Type: models.FrameToken, Content: "You saved "},
		{Type: models.FrameToken, Content: "one note."},
		{Type: models.FrameDone, Answer: "You saved one note."},
	})
	c := newTestClient(t, mux)

	var tokens []string
	var sources []models.SavedItem
	history := []models.ChatTurn{{Role: models.RoleUser, Content: "hi"}}
	res, err := c.ChatStream(context.Background(), "what did I save about rust?", history,
		func(s []models.SavedItem) { sources = s },
		func(tok string) error {
			tokens = append(tokens, tok)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, []string{"You saved ", "one note."}, tokens)
	require.Len(t, sources, 1)
	assert.Equal(t, "s1", sources[0].ID)
	assert.Equal(t, "You saved one note.", res.Answer)
	assert.Equal(t, sources, res.Sources)
}

func TestChatStreamError(t *testing.T) {
	mux := chatStreamServer(t, []models.ChatFrame{
		{Type: models.FrameSources, Sources: []models.SavedItem{}},
		{Type: models.FrameError, Error: &models.APIError{Message: "chat model unavailable", Code: "model_unavailable"}},
	})
	c := newTestClient(t, mux)

	history := []models.ChatTurn{{Role: models.RoleUser, Content: "hi"}}
	_, err := c.ChatStream(context.Background(), "what did I save about rust?", history, nil, nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "model_unavailable", apiErr.Code)
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{base: "http://localhost:8585", want: "ws://localhost:8585/api/v1/chat/stream"},
		{base: "https://mind.example.com/", want: "wss://mind.example.com/api/v1/chat/stream"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := New(tt.base).streamURL()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
