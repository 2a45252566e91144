package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/webrag/internal/chunker"
	"github.com/xxxsen/webrag/internal/embed"
	"github.com/xxxsen/webrag/internal/model"
	apperrors "github.com/xxxsen/webrag/internal/pkg/errors"
	"github.com/xxxsen/webrag/internal/store/memory"
)

// failingEmbedder rejects texts containing a poison marker so one document
// can fail while others succeed.
type failingEmbedder struct {
	poison string
}

func (e failingEmbedder) Name() string { return "failing" }

func (e failingEmbedder) Embed(ctx context.Context, modelName string, texts []string, taskType string) ([][]float32, error) {
	for _, text := range texts {
		if e.poison != "" && strings.Contains(text, e.poison) {
			return nil, fmt.Errorf("embedding rejected: %w", apperrors.ErrPermanent)
		}
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type ingestFixture struct {
	ingest *IngestService
	index  *memory.Store
}

func newIngestFixture(t *testing.T, poison string) *ingestFixture {
	t.Helper()
	idx, err := memory.New(filepath.Join(t.TempDir(), "chunks.json"))
	require.NoError(t, err)
	embedder := embed.NewClient(failingEmbedder{poison: poison}, embed.Config{Model: "test"})
	ck := chunker.New(chunker.Config{MaxChunkTokens: 50, OverlapTokens: 10})
	return &ingestFixture{
		ingest: NewIngestService(nil, ck, embedder, idx, nil, nil),
		index:  idx,
	}
}

func htmlDoc(url, body string) model.Document {
	return model.Document{
		SourceURL: url,
		Title:     "Page",
		RawText:   "<html><body><p>" + body + "</p></body></html>",
	}
}

func TestRunDocuments_IndexesChunks(t *testing.T) {
	f := newIngestFixture(t, "")
	report, err := f.ingest.RunDocuments(context.Background(), []model.Document{
		htmlDoc("https://acme.example/a", "Solar power for every roof. Panels last twenty five years."),
		htmlDoc("https://acme.example/b", "Wind farms built and run locally."),
	})
	require.NoError(t, err)
	require.Equal(t, 2, report.Documents)
	require.Empty(t, report.Failures)
	require.Zero(t, report.Skipped)
	require.Greater(t, report.Elapsed, time.Duration(0))

	count, err := f.index.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, report.Chunks, count)
	require.Positive(t, count)
}

func TestRunDocuments_UnchangedContentSkipped(t *testing.T) {
	f := newIngestFixture(t, "")
	docs := []model.Document{
		htmlDoc("https://acme.example/a", "Stable page content that never changes."),
	}

	first, err := f.ingest.RunDocuments(context.Background(), docs)
	require.NoError(t, err)
	require.Equal(t, 1, first.Documents)

	second, err := f.ingest.RunDocuments(context.Background(), docs)
	require.NoError(t, err)
	require.Zero(t, second.Documents)
	require.Equal(t, 1, second.Skipped)

	count, err := f.index.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, first.Chunks, count)
}

func TestRunDocuments_ChangedContentReplacesChunks(t *testing.T) {
	f := newIngestFixture(t, "")
	ctx := context.Background()

	_, err := f.ingest.RunDocuments(ctx, []model.Document{
		htmlDoc("https://acme.example/a", "Original text about solar installs."),
	})
	require.NoError(t, err)

	report, err := f.ingest.RunDocuments(ctx, []model.Document{
		htmlDoc("https://acme.example/a", "Rewritten text about wind farms instead."),
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Documents)

	results, err := f.index.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	for _, item := range results {
		require.NotContains(t, item.Chunk.Text, "solar installs")
	}
}

func TestRunDocuments_OneFailureDoesNotStopBatch(t *testing.T) {
	f := newIngestFixture(t, "poisoned")
	report, err := f.ingest.RunDocuments(context.Background(), []model.Document{
		htmlDoc("https://acme.example/bad", "This page is poisoned content."),
		htmlDoc("https://acme.example/good", "This page ingests fine."),
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Documents)
	require.Len(t, report.Failures, 1)
	require.Equal(t, "https://acme.example/bad", report.Failures[0].SourceURL)

	count, err := f.index.Count(context.Background())
	require.NoError(t, err)
	require.Positive(t, count)
}

func TestRunDocuments_EmptyDocumentProducesNothing(t *testing.T) {
	f := newIngestFixture(t, "")
	report, err := f.ingest.RunDocuments(context.Background(), []model.Document{
		htmlDoc("https://acme.example/empty", ""),
	})
	require.NoError(t, err)
	require.Zero(t, report.Chunks)
	require.Empty(t, report.Failures)
}

func TestRun_OnlyOneAtATime(t *testing.T) {
	f := newIngestFixture(t, "")
	require.NoError(t, f.ingest.begin())
	_, err := f.ingest.RunDocuments(context.Background(), nil)
	require.ErrorIs(t, err, ErrRunning)
	f.ingest.finish()
}
