package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raphaelgruber/mindbase/internal/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noFetch(context.Context) (*client.Job, error) { return nil, errors.New("unused") }

func TestReindexWatchCompletes(t *testing.T) {
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	w := newReindexWatch(client.Job{ID: "j1", Status: "pending", StartedAt: start}, noFetch)
	w.now = func() time.Time { return start.Add(10 * time.Second) }

	w, cmd := w.apply(statusMsg{job: &client.Job{ID: "j1", Status: "running", Progress: 5, Total: 20}})
	require.NotNil(t, cmd)
	assert.False(t, w.finished)
	view := w.render()
	assert.Contains(t, view, "5/20")
	assert.Contains(t, view, "10s")
	assert.Contains(t, view, "~30s left")

	w, _ = w.apply(statusMsg{job: &client.Job{
		ID: "j1", Status: "completed", Progress: 20, Total: 20,
		Result: &client.ReindexResult{Scanned: 20, Reindexed: 19, Skipped: 1},
	}})
	assert.True(t, w.finished)
	assert.NoError(t, w.err)
	view = w.render()
	assert.Contains(t, view, "Reindex completed")
	assert.Contains(t, view, "Items scanned:    20")
	assert.Contains(t, view, "Skipped (empty):  1")
}

func TestReindexWatchFailedJob(t *testing.T) {
	w := newReindexWatch(client.Job{ID: "j2"}, noFetch)
	w, _ = w.apply(statusMsg{job: &client.Job{ID: "j2", Status: "failed", Error: "vector index unavailable"}})
	require.Error(t, w.err)
	assert.Equal(t, "vector index unavailable", w.err.Error())
	assert.Contains(t, w.render(), "vector index unavailable")

	w = newReindexWatch(client.Job{ID: "j3"}, noFetch)
	w, _ = w.apply(statusMsg{job: &client.Job{ID: "j3", Status: "failed"}})
	assert.EqualError(t, w.err, "reindex failed")
}

func TestReindexWatchToleratesPollErrors(t *testing.T) {
	w := newReindexWatch(client.Job{ID: "j4"}, noFetch)
	boom := errors.New("connection refused")

	for i := 1; i < maxPollMisses; i++ {
		w, _ = w.apply(statusMsg{err: boom})
		assert.False(t, w.finished, "miss %d", i)
	}

	// A good response resets the count.
	w, _ = w.apply(statusMsg{job: &client.Job{ID: "j4", Status: "running", Total: 3}})
	assert.Zero(t, w.misses)

	for i := 0; i < maxPollMisses; i++ {
		w, _ = w.apply(statusMsg{err: boom})
	}
	assert.True(t, w.finished)
	assert.ErrorIs(t, w.err, boom)
	assert.Contains(t, w.err.Error(), "j4")
}

func TestReindexWatchLoadsThroughFetch(t *testing.T) {
	w := newReindexWatch(client.Job{ID: "j5"}, func(context.Context) (*client.Job, error) {
		return &client.Job{ID: "j5", Status: "running", Progress: 1, Total: 2}, nil
	})
	msg, ok := w.load()().(statusMsg)
	require.True(t, ok)
	require.NoError(t, msg.err)
	assert.Equal(t, 1, msg.job.Progress)

	empty := newReindexWatch(client.Job{ID: "j6"}, func(context.Context) (*client.Job, error) { return nil, nil })
	msg = empty.load()().(statusMsg)
	assert.Error(t, msg.err)
}

func TestRemaining(t *testing.T) {
	tests := []struct {
		name    string
		done    int
		total   int
		elapsed time.Duration
		want    time.Duration
		ok      bool
	}{
		{"halfway", 50, 100, 20 * time.Second, 20 * time.Second, true},
		{"nothing done", 0, 100, 5 * time.Second, 0, false},
		{"finished", 10, 10, 5 * time.Second, 0, false},
		{"no time passed", 1, 10, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := remaining(tt.done, tt.total, tt.elapsed)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReindexWatchDetachedView(t *testing.T) {
	w := newReindexWatch(client.Job{ID: "j7"}, noFetch)
	w.detached = true
	assert.Contains(t, w.render(), "mindbase jobs j7")
}
