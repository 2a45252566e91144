package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/webrag/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "chunks.json"))
	require.NoError(t, err)
	return s
}

func chunkWith(id, source string, vec []float32) model.Chunk {
	return model.Chunk{
		ID:        id,
		SourceURL: source,
		Text:      "text of " + id,
		Embedding: vec,
	}
}

func TestUpsert_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chunk := chunkWith("c1", "https://example.org/a", []float32{1, 0})

	require.NoError(t, s.Upsert(ctx, []model.Chunk{chunk}))
	require.NoError(t, s.Upsert(ctx, []model.Chunk{chunk}))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestUpsert_RejectsMissingEmbedding(t *testing.T) {
	s := newTestStore(t)
	err := s.Upsert(context.Background(), []model.Chunk{{ID: "c1", SourceURL: "https://example.org/a"}})
	require.Error(t, err)
}

func TestUpsert_RejectsDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []model.Chunk{
		chunkWith("c1", "https://example.org/a", []float32{1, 0, 0}),
	}))

	err := s.Upsert(ctx, []model.Chunk{
		chunkWith("c2", "https://example.org/a", []float32{1, 0}),
	})
	require.Error(t, err)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestUpsert_DimensionResetsWhenDrained(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []model.Chunk{
		chunkWith("c1", "https://example.org/a", []float32{1, 0, 0}),
	}))

	removed, err := s.DeleteBySource(ctx, "https://example.org/a")
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	require.NoError(t, s.Upsert(ctx, []model.Chunk{
		chunkWith("c2", "https://example.org/a", []float32{1, 0}),
	}))
}

func TestSearch_OrderAndTieBreak(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []model.Chunk{
		chunkWith("b", "https://example.org/1", []float32{1, 0}),
		chunkWith("a", "https://example.org/2", []float32{1, 0}),
		chunkWith("c", "https://example.org/3", []float32{0, 1}),
	}))

	results, err := s.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	// Equal scores fall back to chunk ID order.
	require.Equal(t, "a", results[0].Chunk.ID)
	require.Equal(t, "b", results[1].Chunk.ID)
	require.Equal(t, "c", results[2].Chunk.ID)
	require.Greater(t, results[0].Score, results[2].Score)
}

func TestSearch_KLargerThanStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []model.Chunk{
		chunkWith("a", "https://example.org/1", []float32{1, 0}),
	}))
	results, err := s.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearch_EmptyStore(t *testing.T) {
	s := newTestStore(t)
	results, err := s.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestDeleteBySource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []model.Chunk{
		chunkWith("a", "https://example.org/1", []float32{1, 0}),
		chunkWith("b", "https://example.org/1", []float32{0, 1}),
		chunkWith("c", "https://example.org/2", []float32{1, 1}),
	}))

	removed, err := s.DeleteBySource(ctx, "https://example.org/1")
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	removed, err = s.DeleteBySource(ctx, "https://example.org/nope")
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	ctx := context.Background()

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, []model.Chunk{
		chunkWith("a", "https://example.org/1", []float32{0.5, 0.5}),
	}))
	require.NoError(t, s.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	results, err := reopened.Search(ctx, []float32{0.5, 0.5}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a", results[0].Chunk.ID)
}

func TestUpsert_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				chunk := chunkWith(fmt.Sprintf("c-%d-%d", g, i), "https://example.org/bulk", []float32{1, 0})
				require.NoError(t, s.Upsert(ctx, []model.Chunk{chunk}))
			}
		}(g)
	}
	wg.Wait()

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 100, count)
}
