package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/webrag/internal/model"
)

func TestSplit_EmptyDocument(t *testing.T) {
	c := New(Config{})
	require.Nil(t, c.Split(model.Document{SourceURL: "https://example.org/a"}))
	require.Nil(t, c.Split(model.Document{SourceURL: "https://example.org/a", RawText: "   \n\n  "}))
}

func TestSplit_SmallDocumentSingleChunk(t *testing.T) {
	c := New(Config{MaxChunkTokens: 100, OverlapTokens: 20})
	doc := model.Document{
		SourceURL: "https://example.org/about",
		Title:     "About",
		RawText:   "We build solar farms. We also maintain them.",
	}
	chunks := c.Split(doc)
	require.Len(t, chunks, 1)
	require.Equal(t, doc.SourceURL, chunks[0].SourceURL)
	require.Equal(t, doc.Title, chunks[0].Title)
	require.Contains(t, chunks[0].Text, "solar farms")
	require.NotZero(t, chunks[0].TokenCount)
}

func TestSplit_Deterministic(t *testing.T) {
	c := New(Config{MaxChunkTokens: 30, OverlapTokens: 8})
	doc := model.Document{
		SourceURL: "https://example.org/services",
		RawText: strings.Repeat(
			"Wind turbines convert moving air into electricity. "+
				"Panels convert sunlight. Batteries store it for the night. ", 10),
	}
	first := c.Split(doc)
	second := c.Split(doc)
	require.True(t, len(first) > 1)
	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, first[i].ID, second[i].ID)
		require.Equal(t, first[i].Text, second[i].Text)
		require.Equal(t, first[i].StartOffset, second[i].StartOffset)
	}
}

func TestSplit_OverlapBetweenChunks(t *testing.T) {
	c := New(Config{MaxChunkTokens: 20, OverlapTokens: 8})
	doc := model.Document{
		SourceURL: "https://example.org/faq",
		RawText: "First question gets answered here. Second topic follows right after. " +
			"A third point fills the chunk. The fourth starts a new one. Fifth closes it out.",
	}
	chunks := c.Split(doc)
	require.True(t, len(chunks) > 1)
	for i := 1; i < len(chunks); i++ {
		// Each chunk starts at or before where the previous one ended.
		require.LessOrEqual(t, chunks[i].StartOffset, chunks[i-1].EndOffset)
		require.Greater(t, chunks[i].StartOffset, chunks[i-1].StartOffset)
	}
}

func TestSplit_OversizeSentenceWindowed(t *testing.T) {
	c := New(Config{MaxChunkTokens: 10, OverlapTokens: 2})
	doc := model.Document{
		SourceURL: "https://example.org/long",
		RawText:   strings.Repeat("word ", 60),
	}
	chunks := c.Split(doc)
	require.True(t, len(chunks) > 1)
	for _, chunk := range chunks {
		require.NotEmpty(t, chunk.Text)
		require.NotContains(t, chunk.Text, "  ")
	}
}

func TestChunkID_StableAndDistinct(t *testing.T) {
	a := ChunkID("https://example.org/a", 0)
	require.Equal(t, a, ChunkID("https://example.org/a", 0))
	require.NotEqual(t, a, ChunkID("https://example.org/a", 10))
	require.NotEqual(t, a, ChunkID("https://example.org/b", 0))
	require.Len(t, a, 64)
}
