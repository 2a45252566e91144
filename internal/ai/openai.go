package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type openAIConfig struct {
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TimeoutSec  int     `json:"timeout_sec"`
}

type openAIProvider struct {
	apiKey      string
	baseURL     string
	temperature float64
	maxTokens   int
	client      *http.Client
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIChatMsg `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

type openAIChatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIChatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *openAIProvider) Name() string {
	return "openai"
}

func (p *openAIProvider) post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, ClassifyCallError(err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, ClassifyHTTPError(resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

func (p *openAIProvider) Generate(ctx context.Context, model string, messages []Message) (string, error) {
	if p.apiKey == "" {
		return "", ErrUnavailable
	}
	reqBody := openAIChatRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		Stream:      false,
	}
	resp, err := p.post(ctx, "/chat/completions", reqBody)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai response has no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (p *openAIProvider) GenerateStream(ctx context.Context, model string, messages []Message) (<-chan Fragment, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	reqBody := openAIChatRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		Stream:      true,
	}
	resp, err := p.post(ctx, "/chat/completions", reqBody)
	if err != nil {
		return nil, err
	}
	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				break
			}
			var chunk openAIChatStreamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case out <- Fragment{Text: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case out <- Fragment{Err: ClassifyCallError(err)}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case out <- Fragment{Done: true}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

type openAIEmbedProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func (p *openAIEmbedProvider) Name() string {
	return "openai"
}

func (p *openAIEmbedProvider) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	if len(texts) == 0 {
		return nil, nil
	}
	chat := &openAIProvider{apiKey: p.apiKey, baseURL: p.baseURL, client: p.client}
	resp, err := chat.post(ctx, "/embeddings", openAIEmbedRequest{Model: model, Input: texts})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(out.Data), len(texts))
	}
	// The API documents order-preserving output; index is still honored in
	// case a proxy reorders items.
	vectors := make([][]float32, len(texts))
	for i, item := range out.Data {
		idx := item.Index
		if idx < 0 || idx >= len(vectors) {
			idx = i
		}
		vectors[idx] = item.Embedding
	}
	return vectors, nil
}

func toOpenAIMessages(messages []Message) []openAIChatMsg {
	out := make([]openAIChatMsg, 0, len(messages))
	for _, m := range messages {
		out = append(out, openAIChatMsg{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func newOpenAIHTTPClient(timeoutSec int) *http.Client {
	if timeoutSec <= 0 {
		timeoutSec = 60
	}
	return &http.Client{Timeout: time.Duration(timeoutSec) * time.Second}
}

func createOpenAIFactory(args interface{}) (IAIProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &openAIProvider{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		baseURL:     baseURL,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      newOpenAIHTTPClient(cfg.TimeoutSec),
	}, nil
}

func createOpenAIEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &openAIEmbedProvider{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		client:  newOpenAIHTTPClient(cfg.TimeoutSec),
	}, nil
}

func init() {
	Register("openai", createOpenAIFactory)
	RegisterEmbed("openai", createOpenAIEmbedFactory)
}
