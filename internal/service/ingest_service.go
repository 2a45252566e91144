package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/webrag/internal/archive"
	"github.com/xxxsen/webrag/internal/chunker"
	"github.com/xxxsen/webrag/internal/embed"
	"github.com/xxxsen/webrag/internal/fetch"
	"github.com/xxxsen/webrag/internal/model"
	"github.com/xxxsen/webrag/internal/normalize"
	"github.com/xxxsen/webrag/internal/store"
)

// IngestService turns site pages into indexed chunks: fetch, normalize,
// chunk, embed, upsert. One document failing never stops the batch.
type IngestService struct {
	fetcher  *fetch.Fetcher
	chunker  *chunker.Chunker
	embedder *embed.Client
	index    store.VectorStore
	snaps    archive.Archive
	sources  []string

	mu       sync.Mutex
	running  bool
	lastRun  time.Time
	seenHash map[string]string // source URL -> content hash of last ingest
}

func NewIngestService(
	fetcher *fetch.Fetcher,
	ck *chunker.Chunker,
	embedder *embed.Client,
	index store.VectorStore,
	snaps archive.Archive,
	sources []string,
) *IngestService {
	return &IngestService{
		fetcher:  fetcher,
		chunker:  ck,
		embedder: embedder,
		index:    index,
		snaps:    snaps,
		sources:  sources,
		seenHash: make(map[string]string),
	}
}

// Run crawls every configured source and ingests what it finds. Only one run
// may be in flight at a time; a second caller gets ErrRunning.
func (s *IngestService) Run(ctx context.Context) (*model.IngestReport, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.finish()

	start := time.Now()
	report := &model.IngestReport{}
	for _, seed := range s.sources {
		docs, failures, err := s.fetcher.Site(ctx, seed)
		if err != nil {
			report.Failures = append(report.Failures, model.IngestFailure{
				SourceURL: seed,
				Reason:    err.Error(),
			})
			continue
		}
		report.Failures = append(report.Failures, failures...)
		s.ingestDocuments(ctx, docs, report)
	}
	report.Elapsed = time.Since(start)
	logutil.GetLogger(ctx).Info("ingest run finished",
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("skipped", report.Skipped),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// RunDocuments ingests caller-supplied documents, bypassing the crawler.
func (s *IngestService) RunDocuments(ctx context.Context, docs []model.Document) (*model.IngestReport, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.finish()

	start := time.Now()
	report := &model.IngestReport{}
	s.ingestDocuments(ctx, docs, report)
	report.Elapsed = time.Since(start)
	return report, nil
}

func (s *IngestService) ingestDocuments(ctx context.Context, docs []model.Document, report *model.IngestReport) {
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			report.Failures = append(report.Failures, model.IngestFailure{
				SourceURL: doc.SourceURL,
				Reason:    err.Error(),
			})
			return
		}
		n, err := s.ingestOne(ctx, doc)
		if err != nil {
			logutil.GetLogger(ctx).Error("document ingest failed",
				zap.String("source_url", doc.SourceURL),
				zap.Error(err),
			)
			report.Failures = append(report.Failures, model.IngestFailure{
				SourceURL: doc.SourceURL,
				Reason:    err.Error(),
			})
			continue
		}
		if n < 0 {
			report.Skipped++
			continue
		}
		report.Documents++
		report.Chunks += n
	}
}

// ingestOne indexes a single document. It returns the number of chunks
// written, or -1 when the content is unchanged since the last run.
func (s *IngestService) ingestOne(ctx context.Context, doc model.Document) (int, error) {
	s.snapshot(ctx, doc)

	doc.RawText = normalizeContent(doc)
	hash := contentHash(doc.RawText)
	s.mu.Lock()
	unchanged := s.seenHash[doc.SourceURL] == hash
	s.mu.Unlock()
	if unchanged {
		return -1, nil
	}

	chunks := s.chunker.Split(doc)
	if len(chunks) == 0 {
		// Empty after normalization; drop whatever was indexed before.
		if _, err := s.index.DeleteBySource(ctx, doc.SourceURL); err != nil {
			return 0, err
		}
		s.remember(doc.SourceURL, hash)
		return 0, nil
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, err
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	// Stale chunks from an earlier version of the page go first, then the
	// fresh set. Chunk IDs are deterministic, so re-upserting identical
	// content is a no-op for readers.
	if _, err := s.index.DeleteBySource(ctx, doc.SourceURL); err != nil {
		return 0, err
	}
	if err := s.index.Upsert(ctx, chunks); err != nil {
		return 0, err
	}
	s.remember(doc.SourceURL, hash)
	return len(chunks), nil
}

func (s *IngestService) snapshot(ctx context.Context, doc model.Document) {
	if s.snaps == nil {
		return
	}
	key := archive.KeyForURL(doc.SourceURL)
	if err := s.snaps.Save(ctx, key, []byte(doc.RawText)); err != nil {
		logutil.GetLogger(ctx).Warn("snapshot save failed",
			zap.String("source_url", doc.SourceURL),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func (s *IngestService) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunning
	}
	s.running = true
	return nil
}

func (s *IngestService) finish() {
	s.mu.Lock()
	s.running = false
	s.lastRun = time.Now()
	s.mu.Unlock()
}

func (s *IngestService) remember(sourceURL, hash string) {
	s.mu.Lock()
	s.seenHash[sourceURL] = hash
	s.mu.Unlock()
}

func (s *IngestService) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

func normalizeContent(doc model.Document) string {
	lower := strings.ToLower(doc.SourceURL)
	switch {
	case strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown"):
		return normalize.Markdown(doc.RawText)
	case strings.HasSuffix(lower, ".txt"):
		return normalize.Text(doc.RawText)
	default:
		return normalize.HTML(doc.RawText)
	}
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
