package model

import "time"

// Document is one fetched source page. Re-fetching a source produces a new
// Document; existing ones are never mutated.
type Document struct {
	SourceURL string `json:"source_url"`
	Title     string `json:"title"`
	RawText   string `json:"raw_text"`
	FetchedAt int64  `json:"fetched_at"`
}

// Chunk is a bounded slice of a normalized document paired with its
// embedding vector. ID is derived from (source_url, start offset) so
// re-ingesting unchanged content yields identical IDs.
type Chunk struct {
	ID          string    `json:"id"`
	SourceURL   string    `json:"source_url"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
	TokenCount  int       `json:"token_count"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

// SearchResult is a chunk matched by similarity search.
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// IngestReport summarizes one ingestion run. A failed document does not
// abort the batch; it lands in Failures and the run continues.
type IngestReport struct {
	Documents int             `json:"documents"`
	Chunks    int             `json:"chunks"`
	Skipped   int             `json:"skipped"`
	Failures  []IngestFailure `json:"failures,omitempty"`
	Elapsed   time.Duration   `json:"elapsed"`
}

type IngestFailure struct {
	SourceURL string `json:"source_url"`
	Reason    string `json:"reason"`
}
