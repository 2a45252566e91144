// Package store defines the vector index owned by the ingestion and serving
// pipelines. Implementations register themselves by name; wiring picks one
// from config the same way file stores are picked.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/webrag/internal/model"
)

// VectorStore persists chunk vectors and serves nearest-neighbor search.
//
// Upsert is idempotent by chunk ID: re-upserting an ID replaces the stored
// vector and text. Search returns at most min(k, size) results ordered by
// descending similarity with chunk ID as the deterministic tie-break.
// Contents survive process restart.
type VectorStore interface {
	Upsert(ctx context.Context, chunks []model.Chunk) error
	Search(ctx context.Context, vector []float32, k int) ([]model.SearchResult, error)
	DeleteBySource(ctx context.Context, sourceURL string) (int, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

type Factory func(args interface{}) (VectorStore, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(typ string, args interface{}) (VectorStore, error) {
	key := strings.ToLower(strings.TrimSpace(typ))
	if key == "" {
		return nil, fmt.Errorf("vector_store.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported vector store type: %s", typ)
	}
	return factory(args)
}

func DecodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("vector store config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode vector store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode vector store config: %w", err)
	}
	return nil
}
