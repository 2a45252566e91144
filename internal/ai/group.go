package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	apperrors "github.com/xxxsen/webrag/internal/pkg/errors"
)

type ProviderEntry struct {
	Name     string
	Model    string
	Provider IAIProvider
}

type EmbedEntry struct {
	Name     string
	Model    string
	Provider IEmbedProvider
}

type groupProvider struct {
	items []ProviderEntry
}

// NewGroupProvider chains providers as fallbacks: the first one that answers
// wins. Permanent configuration errors skip to the next entry; the last
// error is surfaced when every entry fails.
func NewGroupProvider(items []ProviderEntry) IAIProvider {
	if len(items) == 0 {
		return nil
	}
	return &groupProvider{items: items}
}

func (g *groupProvider) Name() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		if item.Name != "" {
			names = append(names, item.Name)
		}
	}
	return strings.Join(names, "|")
}

func (g *groupProvider) Generate(ctx context.Context, model string, messages []Message) (string, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Provider == nil {
			continue
		}
		useModel := item.Model
		if useModel == "" {
			useModel = model
		}
		res, err := item.Provider.Generate(ctx, useModel, messages)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		logutil.GetLogger(ctx).Warn("generate provider failed",
			zap.Int("index", i),
			zap.String("name", item.Name),
			zap.Error(err),
		)
	}
	if lastErr == nil {
		return "", fmt.Errorf("generate provider not configured: %w", apperrors.ErrUnavailable)
	}
	return "", lastErr
}

type groupEmbedder struct {
	items []EmbedEntry
}

func NewGroupEmbedder(items []EmbedEntry) IEmbedProvider {
	if len(items) == 0 {
		return nil
	}
	return &groupEmbedder{items: items}
}

func (g *groupEmbedder) Name() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		if item.Name != "" {
			names = append(names, item.Name)
		}
	}
	return strings.Join(names, "|")
}

func (g *groupEmbedder) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Provider == nil {
			continue
		}
		useModel := item.Model
		if useModel == "" {
			useModel = model
		}
		res, err := item.Provider.Embed(ctx, useModel, texts, taskType)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		logutil.GetLogger(ctx).Warn("embed provider failed",
			zap.Int("index", i),
			zap.String("name", item.Name),
			zap.Error(err),
		)
	}
	if lastErr == nil {
		return nil, fmt.Errorf("embed provider not configured: %w", apperrors.ErrUnavailable)
	}
	return nil, lastErr
}
