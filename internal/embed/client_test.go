package embed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/webrag/internal/ai"
	apperrors "github.com/xxxsen/webrag/internal/pkg/errors"
)

// indexEmbedder returns a vector encoding the batch text itself so output
// ordering is checkable.
type indexEmbedder struct {
	mu       sync.Mutex
	batches  [][]string
	failures int32
}

func (e *indexEmbedder) Name() string { return "index" }

func (e *indexEmbedder) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	if atomic.LoadInt32(&e.failures) > 0 {
		atomic.AddInt32(&e.failures, -1)
		return nil, fmt.Errorf("throttled: %w", apperrors.ErrTransient)
	}
	e.mu.Lock()
	e.batches = append(e.batches, append([]string(nil), texts...))
	e.mu.Unlock()
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, []float32{float32(len(text))})
	}
	return out, nil
}

func TestEmbedDocuments_PreservesOrder(t *testing.T) {
	provider := &indexEmbedder{}
	client := NewClient(provider, Config{Model: "m", BatchSize: 2, ParallelBatches: 3})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := client.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, text := range texts {
		require.Equal(t, float32(len(text)), vectors[i][0])
	}
}

func TestEmbedDocuments_Batches(t *testing.T) {
	provider := &indexEmbedder{}
	client := NewClient(provider, Config{Model: "m", BatchSize: 2, ParallelBatches: 1})

	_, err := client.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	provider.mu.Lock()
	defer provider.mu.Unlock()
	require.Len(t, provider.batches, 2)
	for _, batch := range provider.batches {
		require.LessOrEqual(t, len(batch), 2)
	}
}

func TestEmbedDocuments_RetriesTransient(t *testing.T) {
	provider := &indexEmbedder{failures: 1}
	client := NewClient(provider, Config{
		Model:     "m",
		BatchSize: 4,
		Retry:     ai.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	})

	vectors, err := client.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
}

func TestEmbedDocuments_Empty(t *testing.T) {
	client := NewClient(&indexEmbedder{}, Config{Model: "m"})
	vectors, err := client.EmbedDocuments(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, vectors)
}

func TestEmbedQuery(t *testing.T) {
	client := NewClient(&indexEmbedder{}, Config{Model: "m"})
	vec, err := client.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{5}, vec)
}

// countingEmbedder counts how many texts actually reach the provider.
type countingEmbedder struct {
	calls int32
}

func (e *countingEmbedder) Name() string { return "counting" }

func (e *countingEmbedder) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	atomic.AddInt32(&e.calls, int32(len(texts)))
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2}
	}
	return out, nil
}

func TestWithLRUCache_SkipsRepeatTexts(t *testing.T) {
	inner := &countingEmbedder{}
	cached := WithLRUCache(inner, 128, time.Minute)

	ctx := context.Background()
	_, err := cached.Embed(ctx, "m", []string{"a", "b"}, TaskTypeDocument)
	require.NoError(t, err)
	vectors, err := cached.Embed(ctx, "m", []string{"a", "b", "c"}, TaskTypeDocument)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	require.Equal(t, int32(3), atomic.LoadInt32(&inner.calls))
}

func TestWithLRUCache_TaskTypeIsPartOfKey(t *testing.T) {
	inner := &countingEmbedder{}
	cached := WithLRUCache(inner, 128, time.Minute)

	ctx := context.Background()
	_, err := cached.Embed(ctx, "m", []string{"a"}, TaskTypeDocument)
	require.NoError(t, err)
	_, err = cached.Embed(ctx, "m", []string{"a"}, TaskTypeQuery)
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&inner.calls))
}
