// Package memory is a file-backed brute-force vector store. Vectors live in
// a map keyed by chunk ID; every mutation is snapshotted to a JSON file so
// ingestion and serving can run as separate processes sharing the path.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/xxxsen/webrag/internal/model"
	"github.com/xxxsen/webrag/internal/store"
)

type storeConfig struct {
	Path string `json:"path"`
}

type Store struct {
	mu     sync.RWMutex
	path   string
	chunks map[string]model.Chunk
	// dim is fixed by the first inserted embedding; later inserts must
	// match it. Resets when the store drains.
	dim int
}

func New(path string) (*Store, error) {
	s := &Store{
		path:   path,
		chunks: make(map[string]model.Chunk),
	}
	if path != "" {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("load vector snapshot: %w", err)
		}
	}
	return s, nil
}

func (s *Store) Upsert(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range chunks {
		if chunk.ID == "" {
			return fmt.Errorf("chunk without id")
		}
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", chunk.ID)
		}
		if s.dim == 0 {
			s.dim = len(chunk.Embedding)
		} else if len(chunk.Embedding) != s.dim {
			return fmt.Errorf("chunk %s embedding dimension %d, store holds %d",
				chunk.ID, len(chunk.Embedding), s.dim)
		}
		s.chunks[chunk.ID] = chunk
	}
	return s.saveLocked()
}

func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]model.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 || len(s.chunks) == 0 {
		return nil, nil
	}
	results := make([]model.SearchResult, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		results = append(results, model.SearchResult{
			Chunk: chunk,
			Score: cosineSimilarity(vector, chunk.Embedding),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

func (s *Store) DeleteBySource(ctx context.Context, sourceURL string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, chunk := range s.chunks {
		if chunk.SourceURL == sourceURL {
			delete(s.chunks, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if len(s.chunks) == 0 {
		s.dim = 0
	}
	return removed, s.saveLocked()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var chunks []model.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return err
	}
	for _, chunk := range chunks {
		if s.dim == 0 {
			s.dim = len(chunk.Embedding)
		}
		s.chunks[chunk.ID] = chunk
	}
	return nil
}

// saveLocked writes the snapshot via a temp file and rename, so a crashed
// writer never leaves a truncated snapshot behind.
func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	chunks := make([]model.Chunk, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		chunks = append(chunks, chunk)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })
	data, err := json.Marshal(chunks)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func createFactory(args interface{}) (store.VectorStore, error) {
	cfg := &storeConfig{}
	if err := store.DecodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return New(cfg.Path)
}

func init() {
	store.Register("memory", createFactory)
	store.Register("file", createFactory)
}
