package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/mindbase/internal/client"
	"github.com/raphaelgruber/mindbase/internal/metrics"
	"github.com/raphaelgruber/mindbase/internal/models"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag to its default so commands can run repeatedly.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// run executes the CLI against srv and returns stdout.
func run(t *testing.T, srv *httptest.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Setenv("MINDBASE_TOKEN", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func newServer(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sampleItem() models.SavedItem {
	return models.SavedItem{
		ID:             "item1",
		SourcePlatform: models.PlatformYouTube,
		SourceURL:      models.Ptr("https://youtube.com/watch?v=abc"),
		ContentType:    models.ContentURL,
		Title:          models.Ptr("Miso butter pasta"),
		AISummary:      models.Ptr("A quick weeknight pasta."),
		Categories:     []string{"cooking", "recipes"},
		CreatedAt:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSaveCommand(t *testing.T) {
	var got client.SaveInput
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/items", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusCreated, sampleItem())
	})
	srv := newServer(t, mux)

	out, err := run(t, srv, "", "save", "https://youtube.com/watch?v=abc", "--notes", "for friday")
	require.NoError(t, err)
	assert.Equal(t, "https://youtube.com/watch?v=abc", got.Content)
	assert.Equal(t, "for friday", got.Notes)
	assert.Contains(t, out, "Saved item1")
	assert.Contains(t, out, "Miso butter pasta")
	assert.Contains(t, out, "cooking, recipes")
}

func TestSaveFromStdin(t *testing.T) {
	var got client.SaveInput
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/items", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusCreated, models.SavedItem{ID: "n1", ContentType: models.ContentText, RawContent: got.Content})
	})
	srv := newServer(t, mux)

	_, err := run(t, srv, "remember the milk\n", "save", "-")
	require.NoError(t, err)
	assert.Equal(t, "remember the milk\n", got.Content)

	_, err = run(t, srv, "   ", "save", "-")
	assert.ErrorContains(t, err, "nothing to save")
}

func TestSaveServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/items", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, models.ErrorEnvelope{
			Error: models.APIError{Message: "content is required", Code: "invalid_input"},
		})
	})
	srv := newServer(t, mux)

	_, err := run(t, srv, "", "save", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content is required")
}

func TestListCommand(t *testing.T) {
	var query string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/items", func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		item := sampleItem()
		item.IsStarred = true
		writeJSON(w, http.StatusOK, models.ItemPage{Items: []models.SavedItem{item}, Total: 7, Limit: 5, Offset: 0})
	})
	mux.HandleFunc("GET /api/v1/categories", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"categories": []models.CategoryCount{{Name: "cooking", Count: 3}},
		})
	})
	srv := newServer(t, mux)

	out, err := run(t, srv, "", "list", "--category", "cooking", "--starred", "-n", "5")
	require.NoError(t, err)
	assert.Equal(t, "category=cooking&limit=5&starred=true", query)
	assert.Contains(t, out, "Items 1-1 of 7")
	assert.Contains(t, out, "Miso butter pasta")
	assert.Contains(t, out, "★")

	out, err = run(t, srv, "", "list")
	require.NoError(t, err)
	assert.Equal(t, "limit=20", query)
	assert.Contains(t, out, "Items 1-1 of 7")

	out, err = run(t, srv, "", "list", "categories")
	require.NoError(t, err)
	assert.Contains(t, out, "cooking (3)")
}

func TestDeleteCommand(t *testing.T) {
	var mu sync.Mutex
	deleted := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "item1" {
			writeJSON(w, http.StatusNotFound, models.ErrorEnvelope{Error: models.APIError{Message: "not found", Code: "not_found"}})
			return
		}
		writeJSON(w, http.StatusOK, sampleItem())
	})
	mux.HandleFunc("DELETE /api/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		deleted++
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	srv := newServer(t, mux)

	out, err := run(t, srv, "n\n", "delete", "item1")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled.")
	assert.Equal(t, 0, deleted)

	out, err = run(t, srv, "yes\n", "delete", "item1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted: Miso butter pasta")
	assert.Equal(t, 1, deleted)

	_, err = run(t, srv, "", "delete", "item1", "--force")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = run(t, srv, "", "delete", "nope", "-f")
	assert.ErrorContains(t, err, "item not found: nope")
}

func TestSearchCommand(t *testing.T) {
	var got client.SearchOptions
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/search", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, client.SearchResult{Items: []models.SavedItem{sampleItem()}, Mode: "keyword"})
	})
	srv := newServer(t, mux)

	out, err := run(t, srv, "", "search", "pasta", "recipes", "--categories", "cooking", "-n", "3")
	require.NoError(t, err)
	assert.Equal(t, "pasta recipes", got.Query)
	assert.Equal(t, 3, got.Limit)
	assert.Equal(t, []string{"cooking"}, got.Categories)
	assert.Contains(t, out, "Found 1 results")
	assert.Contains(t, out, "keyword match")
	assert.Contains(t, out, "1. Miso butter pasta")
}

// chatServer answers every websocket message with the sample item as source
// and records how many history turns each question carried.
func chatServer(t *testing.T) (*httptest.Server, func() []int) {
	t.Helper()
	var mu sync.Mutex
	var historyLens []int

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/chat/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var in struct {
			Message string            `json:"message"`
			History []models.ChatTurn `json:"history"`
		}
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		mu.Lock()
		historyLens = append(historyLens, len(in.History))
		mu.Unlock()

		_ = conn.WriteJSON(models.ChatFrame{Type: models.FrameSources, Sources: []models.SavedItem{sampleItem()}})
		_ = conn.WriteJSON(models.ChatFrame{Type: models.FrameToken, Content: "Try the "})
		_ = conn.WriteJSON(models.ChatFrame{Type: models.FrameToken, Content: "miso pasta."})
		_ = conn.WriteJSON(models.ChatFrame{Type: models.FrameDone, Answer: "Try the miso pasta."})
		_, _, _ = conn.ReadMessage()
	})
	srv := newServer(t, mux)
	return srv, func() []int {
		mu.Lock()
		defer mu.Unlock()
		return append([]int(nil), historyLens...)
	}
}

func TestChatCommand(t *testing.T) {
	srv, _ := chatServer(t)

	out, err := run(t, srv, "", "chat", "what", "should", "I", "cook?")
	require.NoError(t, err)
	assert.Contains(t, out, "Try the miso pasta.")
	assert.Contains(t, out, "Sources:")
	assert.Contains(t, out, "[1] Miso butter pasta")
}

func TestChatFromPipe(t *testing.T) {
	srv, histories := chatServer(t)

	out, err := run(t, srv, "what should I cook?\n", "chat", "--sources=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Try the miso pasta.")
	assert.NotContains(t, out, "Sources:")
	assert.Equal(t, []int{0}, histories())
}

func TestChatLoopKeepsHistory(t *testing.T) {
	srv, histories := chatServer(t)
	resetFlags(rootCmd)
	apiClient = client.New(srv.URL)

	var out bytes.Buffer
	in := strings.NewReader("first question\n\nsecond question\nexit\nnever sent\n")
	require.NoError(t, chatLoop(t.Context(), in, &out))

	assert.Equal(t, []int{0, 2}, histories())
	assert.Equal(t, 2, strings.Count(out.String(), "Try the miso pasta."))
}

func TestReindexCommand(t *testing.T) {
	var got []client.ReindexOptions
	var mu sync.Mutex
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/admin/reindex", func(w http.ResponseWriter, r *http.Request) {
		var opts client.ReindexOptions
		require.NoError(t, json.NewDecoder(r.Body).Decode(&opts))
		mu.Lock()
		got = append(got, opts)
		mu.Unlock()
		if r.URL.Query().Get("async") == "false" {
			writeJSON(w, http.StatusOK, client.ReindexResult{Scanned: 4, Reindexed: 3, Skipped: 1})
			return
		}
		writeJSON(w, http.StatusAccepted, client.Job{ID: "job42", Type: "reindex", Status: "pending"})
	})
	srv := newServer(t, mux)

	// Output is not a terminal, so the command does not wait.
	out, err := run(t, srv, "", "reindex", "--reenrich")
	require.NoError(t, err)
	assert.Contains(t, out, "Started job job42")

	out, err = run(t, srv, "", "reindex", "--sync", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Items scanned:    4")
	assert.Contains(t, out, "Skipped (empty):  1")

	require.Len(t, got, 2)
	assert.Equal(t, client.ReindexOptions{Reenrich: true}, got[0])
	assert.Equal(t, client.ReindexOptions{All: true}, got[1])
}

func TestJobsCommand(t *testing.T) {
	started := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	done := started.Add(90 * time.Second)
	job := client.Job{
		ID: "job42", Type: "reindex", Status: "completed", RequestedBy: "alice",
		Progress: 4, Total: 4, StartedAt: started, CompletedAt: &done,
		Result: &client.ReindexResult{Scanned: 4, Reindexed: 4},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/admin/jobs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"jobs": []client.Job{job}})
	})
	mux.HandleFunc("GET /api/v1/admin/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != job.ID {
			writeJSON(w, http.StatusNotFound, models.ErrorEnvelope{Error: models.APIError{Message: "not found", Code: "not_found"}})
			return
		}
		writeJSON(w, http.StatusOK, job)
	})
	srv := newServer(t, mux)

	out, err := run(t, srv, "", "jobs")
	require.NoError(t, err)
	assert.Contains(t, out, "job42")
	assert.Contains(t, out, "4/4")
	assert.Contains(t, out, "alice")

	out, err = run(t, srv, "", "jobs", "job42")
	require.NoError(t, err)
	assert.Contains(t, out, "Duration: 1m30s")
	assert.Contains(t, out, "Reindexed:        4")

	_, err = run(t, srv, "", "jobs", "missing")
	assert.ErrorContains(t, err, "job not found: missing")
}

func TestStatsCommand(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		in, outTok := int64(1200), int64(300)
		writeJSON(w, http.StatusOK, models.Stats{
			Items: 12,
			Metrics: metrics.Snapshot{
				UptimeSeconds: 125,
				Embedding:     &metrics.OperationSnapshot{Count: 12, TotalTimeMs: 240, AvgTimeMs: 20, MinTimeMs: 10, MaxTimeMs: 40},
				LLMGenerate:   &metrics.OperationSnapshot{Count: 3, Failures: 1, TotalInputTokens: &in, TotalOutputTokens: &outTok},
			},
		})
	})
	srv := newServer(t, mux)

	out, err := run(t, srv, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved items: 12")
	assert.Contains(t, out, "Uptime: 2m5s")
	assert.Contains(t, out, "Embeddings:")
	assert.Contains(t, out, "Calls: 3, Failures: 1")
	assert.Contains(t, out, "Tokens In:  1200 total")
	assert.NotContains(t, out, "Vector Query")

	out, err = run(t, srv, "", "stats", "--json")
	require.NoError(t, err)
	var decoded models.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 12, decoded.Items)
}

func TestItemTitle(t *testing.T) {
	tests := []struct {
		name string
		item models.SavedItem
		want string
	}{
		{name: "title", item: models.SavedItem{Title: models.Ptr("T"), SourceURL: models.Ptr("https://x")}, want: "T"},
		{name: "url", item: models.SavedItem{SourceURL: models.Ptr("https://x")}, want: "https://x"},
		{name: "raw text collapsed", item: models.SavedItem{RawContent: "two\n\nlines"}, want: "two lines"},
		{name: "long raw text", item: models.SavedItem{RawContent: strings.Repeat("a", 70)}, want: strings.Repeat("a", 60) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, itemTitle(tt.item))
		})
	}
}
