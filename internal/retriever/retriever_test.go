package retriever

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/webrag/internal/ai"
	"github.com/xxxsen/webrag/internal/embed"
	"github.com/xxxsen/webrag/internal/model"
	"github.com/xxxsen/webrag/internal/store/memory"
)

// fixedEmbedder maps known texts to fixed vectors so scores are predictable.
type fixedEmbedder struct {
	vectors map[string][]float32
}

func (f *fixedEmbedder) Name() string { return "fixed" }

func (f *fixedEmbedder) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, ok := f.vectors[text]
		if !ok {
			vec = []float32{0, 0, 1}
		}
		out = append(out, vec)
	}
	return out, nil
}

var _ ai.IEmbedProvider = (*fixedEmbedder)(nil)

func newTestRetriever(t *testing.T, cfg Config, chunks []model.Chunk, queries map[string][]float32) *Retriever {
	t.Helper()
	idx, err := memory.New(filepath.Join(t.TempDir(), "chunks.json"))
	require.NoError(t, err)
	if len(chunks) > 0 {
		require.NoError(t, idx.Upsert(context.Background(), chunks))
	}
	client := embed.NewClient(&fixedEmbedder{vectors: queries}, embed.Config{Model: "test-embed"})
	return New(client, idx, cfg)
}

func TestRetrieve_RanksByScore(t *testing.T) {
	chunks := []model.Chunk{
		{ID: "exact", SourceURL: "https://example.org/solar", Text: "solar", Embedding: []float32{1, 0, 0}},
		{ID: "close", SourceURL: "https://example.org/wind", Text: "wind", Embedding: []float32{0.9, 0.4, 0}},
		{ID: "far", SourceURL: "https://example.org/legal", Text: "legal", Embedding: []float32{0, 1, 0}},
	}
	r := newTestRetriever(t, Config{TopK: 2, MinScore: 0.5}, chunks, map[string][]float32{
		"solar power": {1, 0, 0},
	})

	results, err := r.Retrieve(context.Background(), "solar power", 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "exact", results[0].Chunk.ID)
	require.Equal(t, "close", results[1].Chunk.ID)
}

func TestRetrieve_FiltersLowScores(t *testing.T) {
	chunks := []model.Chunk{
		{ID: "match", SourceURL: "https://example.org/a", Text: "a", Embedding: []float32{1, 0, 0}},
		{ID: "noise", SourceURL: "https://example.org/b", Text: "b", Embedding: []float32{0, 1, 0}},
	}
	r := newTestRetriever(t, Config{TopK: 5, MinScore: 0.8}, chunks, map[string][]float32{
		"query": {1, 0, 0},
	})

	results, err := r.Retrieve(context.Background(), "query", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "match", results[0].Chunk.ID)
}

func TestRetrieve_EmptyStore(t *testing.T) {
	r := newTestRetriever(t, Config{}, nil, map[string][]float32{
		"anything": {1, 0, 0},
	})
	results, err := r.Retrieve(context.Background(), "anything", 0)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestRetrieve_DedupesOverlappingChunks(t *testing.T) {
	// Two near-identical chunks from the same page plus one from another
	// page: the same-page near-duplicate should be squeezed out.
	chunks := []model.Chunk{
		{ID: "a1", SourceURL: "https://example.org/a", Text: "a1", Embedding: []float32{1, 0, 0}},
		{ID: "a2", SourceURL: "https://example.org/a", Text: "a2", Embedding: []float32{0.999, 0.01, 0}},
		{ID: "b1", SourceURL: "https://example.org/b", Text: "b1", Embedding: []float32{0.9, 0.3, 0}},
	}
	r := newTestRetriever(t, Config{TopK: 3, MinScore: 0.5}, chunks, map[string][]float32{
		"query": {1, 0, 0},
	})

	results, err := r.Retrieve(context.Background(), "query", 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(results))
	for _, item := range results {
		ids = append(ids, item.Chunk.ID)
	}
	require.Contains(t, ids, "a1")
	require.Contains(t, ids, "b1")
	require.NotContains(t, ids, "a2")
}
