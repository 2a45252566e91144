// Package retriever turns a user question into a ranked, deduplicated set
// of grounding chunks. An empty result is a normal outcome, not an error:
// callers decide whether to decline or answer from general knowledge.
package retriever

import (
	"context"
	"sort"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/webrag/internal/embed"
	"github.com/xxxsen/webrag/internal/model"
	"github.com/xxxsen/webrag/internal/store"
)

const (
	DefaultTopK     = 5
	DefaultMinScore = 0.55
	// Chunks from one source whose scores sit within this band of each
	// other mostly repeat the same passage through the overlap window;
	// only the best one is worth a prompt slot.
	dedupeScoreBand = 0.05
)

type Config struct {
	TopK     int
	MinScore float32
}

type Retriever struct {
	embedder *embed.Client
	index    store.VectorStore
	topK     int
	minScore float32
}

func New(embedder *embed.Client, index store.VectorStore, cfg Config) *Retriever {
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	minScore := cfg.MinScore
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		topK:     topK,
		minScore: minScore,
	}
}

// Retrieve embeds the query, searches the index and filters the hits. k <= 0
// falls back to the configured top-k.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]model.SearchResult, error) {
	if k <= 0 {
		k = r.topK
	}
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	// Over-fetch so per-source dedupe still fills k slots.
	raw, err := r.index.Search(ctx, vector, k*3)
	if err != nil {
		return nil, err
	}
	results := dedupeBySource(filterByScore(raw, r.minScore))
	if len(results) > k {
		results = results[:k]
	}
	logutil.GetLogger(ctx).Debug("retrieved chunks",
		zap.Int("raw", len(raw)),
		zap.Int("kept", len(results)),
	)
	return results, nil
}

func filterByScore(results []model.SearchResult, minScore float32) []model.SearchResult {
	kept := make([]model.SearchResult, 0, len(results))
	for _, item := range results {
		if item.Score >= minScore {
			kept = append(kept, item)
		}
	}
	return kept
}

// dedupeBySource drops lower-scoring chunks of a source that score within
// the dedupe band of a better chunk from the same source. Distinct passages
// of one document (scores far apart) all stay.
func dedupeBySource(results []model.SearchResult) []model.SearchResult {
	best := make(map[string][]float32)
	kept := make([]model.SearchResult, 0, len(results))
	for _, item := range results {
		scores := best[item.Chunk.SourceURL]
		shadowed := false
		for _, s := range scores {
			if s-item.Score < dedupeScoreBand {
				shadowed = true
				break
			}
		}
		if shadowed {
			continue
		}
		best[item.Chunk.SourceURL] = append(scores, item.Score)
		kept = append(kept, item)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	return kept
}
