package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorTimings(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpEmbedding, 10*time.Millisecond)
	c.RecordTiming(OpEmbedding, 30*time.Millisecond)
	c.RecordFailure(OpEmbedding, 20*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.Embedding)
	assert.Equal(t, int64(3), snap.Embedding.Count)
	assert.Equal(t, int64(1), snap.Embedding.Failures)
	assert.Equal(t, int64(10), snap.Embedding.MinTimeMs)
	assert.Equal(t, int64(30), snap.Embedding.MaxTimeMs)
	assert.InDelta(t, 20.0, snap.Embedding.AvgTimeMs, 0.001)
	assert.Nil(t, snap.VectorQuery, "untouched operations are omitted")
}

func TestCollectorLLMUsage(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpLLMGenerate, time.Millisecond, 100, 20)
	c.RecordLLMUsage(OpLLMGenerate, time.Millisecond, 50, 10)

	snap := c.Snapshot()
	require.NotNil(t, snap.LLMGenerate)
	require.NotNil(t, snap.LLMGenerate.TotalInputTokens)
	assert.Equal(t, int64(150), *snap.LLMGenerate.TotalInputTokens)
	assert.InDelta(t, 15.0, *snap.LLMGenerate.AvgOutputTokens, 0.001)
}

func TestCollectorObserve(t *testing.T) {
	c := NewCollector()
	c.Observe(OpVectorQuery, time.Now(), nil)
	c.Observe(OpVectorQuery, time.Now(), errors.New("boom"))

	snap := c.Snapshot()
	require.NotNil(t, snap.VectorQuery)
	assert.Equal(t, int64(2), snap.VectorQuery.Count)
	assert.Equal(t, int64(1), snap.VectorQuery.Failures)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordTiming(OpExtract, time.Millisecond)
		c.RecordFailure(OpExtract, time.Millisecond)
		c.Observe(OpExtract, time.Now(), nil)
		_ = c.Snapshot()
	})
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordTiming(OpDBQuery, time.Millisecond)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), c.Snapshot().DBQuery.Count)
}
