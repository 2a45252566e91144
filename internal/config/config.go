package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int               `json:"port"`
	LogConfig   logger.LogConfig  `json:"log_config"`
	VectorStore VectorStoreConfig `json:"vector_store"`
	AI          AIConfig          `json:"ai"`
	RAG         RAGConfig         `json:"rag"`
	Ingest      IngestConfig      `json:"ingest"`
	Session     SessionConfig     `json:"session"`
	CORSAllow   []string          `json:"cors_allow"`
	RateLimitMS int               `json:"rate_limit_ms"`
	Suggested   []string          `json:"suggested_questions"`
	// FeedbackPath is the JSON-lines file user feedback is appended to.
	// Empty disables feedback recording.
	FeedbackPath string `json:"feedback_path"`
}

type VectorStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIConfig struct {
	Provider      string           `json:"provider"`
	Model         string           `json:"model"`
	Data          interface{}      `json:"data"`
	Fallbacks     []ProviderConfig `json:"fallbacks"`
	EmbedProvider string           `json:"embed_provider"`
	EmbedModel    string           `json:"embed_model"`
	EmbedData     interface{}      `json:"embed_data"`
	RetryAttempts int              `json:"retry_attempts"`
	RetryBaseMS   int              `json:"retry_base_ms"`
}

// ProviderConfig describes one fallback chat provider tried in order when
// the primary fails.
type ProviderConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type RAGConfig struct {
	MaxChunkTokens int     `json:"max_chunk_tokens"`
	OverlapTokens  int     `json:"overlap_tokens"`
	TopK           int     `json:"top_k"`
	MinScore       float32 `json:"min_score"`
	MaxInputTokens int     `json:"max_input_tokens"`
	ContextBudget  int     `json:"context_budget"`
	HistoryBudget  int     `json:"history_budget"`
	SystemPrompt   string  `json:"system_prompt"`
	// NoContextMode picks the behavior when retrieval finds nothing:
	// "general" answers from model knowledge, "decline" refuses.
	NoContextMode string `json:"no_context_mode"`
}

type IngestConfig struct {
	Sources        []string      `json:"sources"`
	MaxPages       int           `json:"max_pages"`
	RequestDelayMS int           `json:"request_delay_ms"`
	EmbedBatch     int           `json:"embed_batch"`
	EmbedParallel  int           `json:"embed_parallel"`
	CacheSize      int           `json:"cache_size"`
	CacheTTLMin    int           `json:"cache_ttl_min"`
	RefreshCron    string        `json:"refresh_cron"`
	Archive        ArchiveConfig `json:"archive"`
}

type ArchiveConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type SessionConfig struct {
	IdleTTLMin int    `json:"idle_ttl_min"`
	SweepCron  string `json:"sweep_cron"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.VectorStore.Type == "" {
		return nil, fmt.Errorf("vector_store.type is required")
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.Model == "" {
		return nil, fmt.Errorf("ai.model is required")
	}
	if cfg.AI.EmbedProvider == "" {
		cfg.AI.EmbedProvider = cfg.AI.Provider
	}
	if cfg.AI.EmbedModel == "" {
		return nil, fmt.Errorf("ai.embed_model is required")
	}
	switch cfg.RAG.NoContextMode {
	case "":
		cfg.RAG.NoContextMode = "general"
	case "general", "decline":
	default:
		return nil, fmt.Errorf("rag.no_context_mode must be general or decline")
	}
	if cfg.Session.SweepCron == "" {
		cfg.Session.SweepCron = "*/10 * * * *"
	}
	return &cfg, nil
}
