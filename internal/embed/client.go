// Package embed wraps an embedding provider with batching, bounded
// concurrency and retry. The client is stateless beyond its cache; output
// order always matches input order.
package embed

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/webrag/internal/ai"
)

const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)

type Config struct {
	Model           string
	BatchSize       int
	ParallelBatches int
	Retry           ai.RetryPolicy
}

type Client struct {
	provider ai.IEmbedProvider
	model    string
	batch    int
	parallel int
	retry    ai.RetryPolicy
}

func NewClient(provider ai.IEmbedProvider, cfg Config) *Client {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 16
	}
	parallel := cfg.ParallelBatches
	if parallel <= 0 {
		parallel = 4
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = ai.DefaultRetryPolicy()
	}
	return &Client{
		provider: provider,
		model:    cfg.Model,
		batch:    batch,
		parallel: parallel,
		retry:    retry,
	}
}

func (c *Client) Model() string {
	return c.model
}

// EmbedDocuments embeds texts destined for the index, one vector per input.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embedAll(ctx, texts, TaskTypeDocument)
}

// EmbedQuery embeds a single search query.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embedAll(ctx, []string{text}, TaskTypeQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) embedAll(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if c.provider == nil {
		return nil, ai.ErrUnavailable
	}
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, len(texts))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(c.parallel)
	for start := 0; start < len(texts); start += c.batch {
		end := start + c.batch
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end
		grp.Go(func() error {
			return c.retry.Do(gctx, "embed", func(ctx context.Context) error {
				batch, err := c.provider.Embed(ctx, c.model, texts[start:end], taskType)
				if err != nil {
					return err
				}
				if len(batch) != end-start {
					return fmt.Errorf("embed batch size mismatch: got %d want %d", len(batch), end-start)
				}
				copy(vectors[start:end], batch)
				return nil
			})
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Debug("embedded texts",
		zap.Int("count", len(texts)),
		zap.String("task_type", taskType),
	)
	return vectors, nil
}
