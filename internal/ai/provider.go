package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/xxxsen/webrag/internal/pkg/errors"
)

var ErrUnavailable = apperrors.ErrUnavailable

type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

type Message struct {
	Role    MessageRole
	Content string
}

// Fragment is one piece of a streamed generation. The stream ends with a
// single Done fragment; Err is set instead when the stream failed mid-way.
type Fragment struct {
	Text string
	Done bool
	Err  error
}

type IAIProvider interface {
	Name() string
	Generate(ctx context.Context, model string, messages []Message) (string, error)
}

// IStreamProvider is implemented by providers that can emit the answer
// incrementally. The returned channel is closed after the Done fragment;
// cancelling ctx abandons the stream.
type IStreamProvider interface {
	GenerateStream(ctx context.Context, model string, messages []Message) (<-chan Fragment, error)
}

// IEmbedProvider turns texts into fixed-dimension vectors. Output order
// matches input order, one vector per text.
type IEmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error)
}

type ProviderFactory func(args interface{}) (IAIProvider, error)
type EmbedProviderFactory func(args interface{}) (IEmbedProvider, error)

var (
	registry      = map[string]ProviderFactory{}
	embedRegistry = map[string]EmbedProviderFactory{}
)

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func RegisterEmbed(name string, factory EmbedProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	embedRegistry[key] = factory
}

func NewProvider(name string, args interface{}) (IAIProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func NewEmbedProvider(name string, args interface{}) (IEmbedProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.embed_provider is required")
	}
	factory := embedRegistry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported embed provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
