package ingest

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTrackerLifecycle(t *testing.T) {
	tracker := NewStatusTracker(time.Minute)

	tracker.Start(1)
	rec, ok := tracker.Get(1)
	require.True(t, ok)
	assert.Equal(t, StateProcessing, rec.State)
	assert.False(t, rec.StartedAt.IsZero())
	assert.Nil(t, rec.CompletedAt)

	tracker.Update(1, func(r *ProgressRecord) {
		r.ChaptersCount = 3
		r.EmbeddingsTotal = 12
		r.EmbeddingsProcessed = 10
		r.EmbeddingsFailed = 2
	})

	tracker.Complete(1, StatePartial, "")
	rec, ok = tracker.Get(1)
	require.True(t, ok)
	assert.Equal(t, StatePartial, rec.State)
	assert.Equal(t, 3, rec.ChaptersCount)
	assert.Equal(t, 10, rec.EmbeddingsProcessed)
	assert.Equal(t, 2, rec.EmbeddingsFailed)
	assert.NotNil(t, rec.CompletedAt)
}

func TestStatusTrackerTTL(t *testing.T) {
	tracker := NewStatusTracker(time.Nanosecond)

	tracker.Start(1)
	tracker.Complete(1, StateProcessed, "")

	time.Sleep(time.Millisecond)

	_, ok := tracker.Get(1)
	assert.False(t, ok)

	// A new run for another document sweeps the expired record.
	tracker.Start(2)
	tracker.mu.RLock()
	_, stale := tracker.records[1]
	tracker.mu.RUnlock()
	assert.False(t, stale)
}

func TestStatusTrackerUnknownDocument(t *testing.T) {
	tracker := NewStatusTracker(0)

	_, ok := tracker.Get(99)
	assert.False(t, ok)

	// Updates and completions for unknown documents are no-ops.
	tracker.Update(99, func(r *ProgressRecord) { r.ChaptersCount = 1 })
	tracker.Complete(99, StateProcessed, "")
}

func TestStatusTrackerConcurrent(t *testing.T) {
	tracker := NewStatusTracker(time.Minute)
	tracker.Start(1)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Update(1, func(r *ProgressRecord) {
				r.EmbeddingsProcessed++
			})
			tracker.Get(1)
		}()
	}
	wg.Wait()

	rec, ok := tracker.Get(1)
	require.True(t, ok)
	assert.Equal(t, 50, rec.EmbeddingsProcessed)
}
