// Package archive stores raw fetched page snapshots so an index rebuild can
// replay ingestion without re-crawling the site. Backends register by name;
// local disk and S3 are provided.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

type Archive interface {
	Save(ctx context.Context, key string, data []byte) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// KeyForURL derives the snapshot object key for a source URL.
func KeyForURL(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return hex.EncodeToString(sum[:]) + ".html"
}

type Factory func(args interface{}) (Archive, error)

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

func New(typ string, args interface{}) (Archive, error) {
	key := strings.ToLower(strings.TrimSpace(typ))
	if key == "" || key == "none" {
		return nil, nil
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported archive type: %s", typ)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("archive config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode archive config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode archive config: %w", err)
	}
	return nil
}
