package vector

import (
	"context"
	"testing"

	"github.com/raphaelgruber/mindbase/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseIndex runs the behaviour every backend must share.
func exerciseIndex(t *testing.T, idx Index) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx,
		Record{ID: "a", Owner: "alice", Vector: []float32{1, 0, 0}},
		Record{ID: "b", Owner: "alice", Vector: []float32{0.9, 0.1, 0}},
		Record{ID: "c", Owner: "alice", Vector: []float32{0, 1, 0}},
		Record{ID: "z", Owner: "bob", Vector: []float32{1, 0, 0}},
	))

	matches, err := idx.Query(ctx, []float32{1, 0, 0}, Filter{Owner: "alice"}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "b", matches[1].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-4)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	for _, m := range matches {
		assert.NotEqual(t, "z", m.ID, "other owners never match")
	}

	// Upsert replaces.
	require.NoError(t, idx.Upsert(ctx, Record{ID: "c", Owner: "alice", Vector: []float32{1, 0, 0}}))
	matches, err = idx.Query(ctx, []float32{1, 0, 0}, Filter{Owner: "alice"}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, []string{"a", "c"}, []string{matches[0].ID, matches[1].ID}, "ties break by id")

	require.NoError(t, idx.Delete(ctx, "a", "a", "missing"))
	matches, err = idx.Query(ctx, []float32{1, 0, 0}, Filter{Owner: "alice"}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	_, err = idx.Query(ctx, []float32{1, 0, 0}, Filter{}, 10)
	assert.True(t, IsCode(err, OperationErrorUnsupportedFilter))

	err = idx.Upsert(ctx, Record{ID: "bad", Owner: "alice", Vector: []float32{1, 2}})
	assert.True(t, IsCode(err, OperationErrorValidation))
}

func TestMemoryIndex(t *testing.T) {
	idx := NewMemoryIndex(3)
	exerciseIndex(t, idx)
	assert.Equal(t, "memory", idx.Name())
}

func TestChromemIndex(t *testing.T) {
	idx, err := NewChromemIndex("", "test_items", 3)
	require.NoError(t, err)
	exerciseIndex(t, idx)

	empty, err := NewChromemIndex("", "empty", 3)
	require.NoError(t, err)
	matches, err := empty.Query(context.Background(), []float32{1, 0, 0}, Filter{Owner: "alice"}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestChromemIndexPersistent(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewChromemIndex(dir, "items", 3)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(context.Background(), Record{ID: "a", Owner: "alice", Vector: []float32{1, 0, 0}}))

	reopened, err := NewChromemIndex(dir, "items", 3)
	require.NoError(t, err)
	matches, err := reopened.Query(context.Background(), []float32{1, 0, 0}, Filter{Owner: "alice"}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].ID)
}

func TestInstrument(t *testing.T) {
	m := metrics.NewCollector()
	idx := Instrument(NewMemoryIndex(0), m)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, Record{ID: "a", Owner: "o", Vector: []float32{1}}))
	_, err := idx.Query(ctx, []float32{1}, Filter{Owner: "o"}, 1)
	require.NoError(t, err)
	_, _ = idx.Query(ctx, nil, Filter{Owner: "o"}, 1)

	snap := m.Snapshot()
	require.NotNil(t, snap.VectorUpsert)
	require.NotNil(t, snap.VectorQuery)
	assert.Equal(t, int64(2), snap.VectorQuery.Count)
	assert.Equal(t, int64(1), snap.VectorQuery.Failures)

	plain := NewMemoryIndex(0)
	assert.Same(t, plain, Instrument(plain, nil))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 1}, []float32{2, 2}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, cosine([]float32{1}, []float32{1, 2}))
}

func TestOperationError(t *testing.T) {
	err := opErr("query", OperationErrorTimeout, "slow", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "op=query code=timeout")
	assert.True(t, IsCode(classifyCallError("q", "x", context.DeadlineExceeded), OperationErrorTimeout))
}
