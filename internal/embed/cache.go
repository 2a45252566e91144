package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/webrag/internal/ai"
)

// WithLRUCache wraps an embed provider with an in-process expirable LRU.
// Re-ingestion of mostly-unchanged sites hits the cache instead of the
// provider, text by text.
func WithLRUCache(next ai.IEmbedProvider, size int, ttl time.Duration) ai.IEmbedProvider {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	return &cachedProvider{
		next:  next,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type cachedProvider struct {
	next  ai.IEmbedProvider
	cache *expirable.LRU[string, []float32]
}

func (c *cachedProvider) Name() string {
	return c.next.Name()
}

func (c *cachedProvider) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if cached, ok := c.cache.Get(cacheKey(model, taskType, text)); ok {
			vectors[i] = cloneVector(cached)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit", zap.Int("count", len(texts)))
		return vectors, nil
	}
	fresh, err := c.next.Embed(ctx, model, missTexts, taskType)
	if err != nil {
		return nil, err
	}
	for j, vec := range fresh {
		i := missIdx[j]
		vectors[i] = vec
		c.cache.Add(cacheKey(model, taskType, texts[i]), cloneVector(vec))
	}
	return vectors, nil
}

func cacheKey(model, taskType, text string) string {
	sum := sha256.Sum256([]byte(text))
	return strings.Join([]string{model, taskType, hex.EncodeToString(sum[:])}, ":")
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
