package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/webrag/internal/ai"
	"github.com/xxxsen/webrag/internal/archive"
	"github.com/xxxsen/webrag/internal/chunker"
	"github.com/xxxsen/webrag/internal/config"
	"github.com/xxxsen/webrag/internal/embed"
	"github.com/xxxsen/webrag/internal/feedback"
	"github.com/xxxsen/webrag/internal/fetch"
	"github.com/xxxsen/webrag/internal/handler"
	"github.com/xxxsen/webrag/internal/job"
	"github.com/xxxsen/webrag/internal/middleware"
	"github.com/xxxsen/webrag/internal/prompt"
	"github.com/xxxsen/webrag/internal/responder"
	"github.com/xxxsen/webrag/internal/retriever"
	"github.com/xxxsen/webrag/internal/schedule"
	"github.com/xxxsen/webrag/internal/service"
	"github.com/xxxsen/webrag/internal/session"
	"github.com/xxxsen/webrag/internal/store"
	_ "github.com/xxxsen/webrag/internal/store/memory"
	_ "github.com/xxxsen/webrag/internal/store/pg"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "webrag",
		Short: "website question answering service",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the api server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "crawl the configured sites and rebuild the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runIngest(cfg)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(ingestCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
	return cfg, nil
}

type app struct {
	index    store.VectorStore
	chat     *service.ChatService
	ingest   *service.IngestService
	sessions *session.Manager
	cfg      *config.Config
}

func buildApp(cfg *config.Config) (*app, error) {
	index, err := store.New(cfg.VectorStore.Type, cfg.VectorStore.Data)
	if err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}

	aiProvider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return nil, fmt.Errorf("init ai provider: %w", err)
	}
	if len(cfg.AI.Fallbacks) > 0 {
		entries := []ai.ProviderEntry{{Name: cfg.AI.Provider, Model: cfg.AI.Model, Provider: aiProvider}}
		for _, fb := range cfg.AI.Fallbacks {
			p, err := ai.NewProvider(fb.Provider, fb.Data)
			if err != nil {
				return nil, fmt.Errorf("init fallback provider %s: %w", fb.Provider, err)
			}
			entries = append(entries, ai.ProviderEntry{Name: fb.Provider, Model: fb.Model, Provider: p})
		}
		aiProvider = ai.NewGroupProvider(entries)
	}
	embedArgs := cfg.AI.EmbedData
	if embedArgs == nil {
		embedArgs = cfg.AI.Data
	}
	embedProvider, err := ai.NewEmbedProvider(cfg.AI.EmbedProvider, embedArgs)
	if err != nil {
		return nil, fmt.Errorf("init embed provider: %w", err)
	}
	if cfg.Ingest.CacheSize > 0 {
		ttl := time.Duration(cfg.Ingest.CacheTTLMin) * time.Minute
		if ttl <= 0 {
			ttl = time.Hour
		}
		embedProvider = embed.WithLRUCache(embedProvider, cfg.Ingest.CacheSize, ttl)
	}

	retry := ai.DefaultRetryPolicy()
	if cfg.AI.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.AI.RetryAttempts
	}
	if cfg.AI.RetryBaseMS > 0 {
		retry.BaseDelay = time.Duration(cfg.AI.RetryBaseMS) * time.Millisecond
	}

	embedder := embed.NewClient(embedProvider, embed.Config{
		Model:           cfg.AI.EmbedModel,
		BatchSize:       cfg.Ingest.EmbedBatch,
		ParallelBatches: cfg.Ingest.EmbedParallel,
		Retry:           retry,
	})
	ret := retriever.New(embedder, index, retriever.Config{
		TopK:     cfg.RAG.TopK,
		MinScore: cfg.RAG.MinScore,
	})
	prompts := prompt.NewAssembler(prompt.Config{
		SystemPrompt:   cfg.RAG.SystemPrompt,
		MaxInputTokens: cfg.RAG.MaxInputTokens,
		ContextBudget:  cfg.RAG.ContextBudget,
		HistoryBudget:  cfg.RAG.HistoryBudget,
	})
	resp := responder.New(aiProvider, responder.Config{
		Model: cfg.AI.Model,
		Retry: retry,
	})
	sessions := session.NewManager(session.Config{
		IdleTTL: time.Duration(cfg.Session.IdleTTLMin) * time.Minute,
	})
	var recorder *feedback.Recorder
	if cfg.FeedbackPath != "" {
		recorder, err = feedback.NewRecorder(cfg.FeedbackPath)
		if err != nil {
			return nil, fmt.Errorf("init feedback recorder: %w", err)
		}
	}
	chat := service.NewChatService(ret, prompts, resp, sessions, index, recorder, cfg.RAG.NoContextMode, cfg.Suggested)

	snaps, err := archive.New(cfg.Ingest.Archive.Type, cfg.Ingest.Archive.Data)
	if err != nil {
		return nil, fmt.Errorf("init archive: %w", err)
	}
	fetcher := fetch.New(fetch.Config{
		MaxPages:     cfg.Ingest.MaxPages,
		RequestDelay: time.Duration(cfg.Ingest.RequestDelayMS) * time.Millisecond,
	})
	ck := chunker.New(chunker.Config{
		MaxChunkTokens: cfg.RAG.MaxChunkTokens,
		OverlapTokens:  cfg.RAG.OverlapTokens,
	})
	ingest := service.NewIngestService(fetcher, ck, embedder, index, snaps, cfg.Ingest.Sources)

	return &app{index: index, chat: chat, ingest: ingest, sessions: sessions, cfg: cfg}, nil
}

func runServer(cfg *config.Config) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("ai_provider", cfg.AI.Provider),
	)

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.index.Close()

	deps := handler.RouterDeps{
		Chat:          handler.NewChatHandler(a.chat),
		Search:        handler.NewSearchHandler(a.chat),
		Admin:         handler.NewAdminHandler(a.chat, a.ingest),
		AskRateWindow: time.Duration(cfg.RateLimitMS) * time.Millisecond,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllow),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewSessionSweepJob(a.sessions), cfg.Session.SweepCron); err != nil {
		return err
	}
	if cfg.Ingest.RefreshCron != "" {
		if err := scheduler.AddJob(job.NewSiteRefreshJob(a.ingest), cfg.Ingest.RefreshCron); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

func runIngest(cfg *config.Config) error {
	if len(cfg.Ingest.Sources) == 0 {
		return fmt.Errorf("ingest.sources is empty")
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.index.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := a.ingest.Run(ctx)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("ingest complete",
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("skipped", report.Skipped),
		zap.Int("failures", len(report.Failures)),
	)
	for _, f := range report.Failures {
		logutil.GetLogger(ctx).Warn("ingest failure",
			zap.String("source_url", f.SourceURL),
			zap.String("reason", f.Reason),
		)
	}
	return nil
}
