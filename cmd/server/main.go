package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lostfound/backend/config"
	httpDelivery "github.com/lostfound/backend/internal/delivery/http"
	"github.com/lostfound/backend/internal/domain"
	"github.com/lostfound/backend/internal/infrastructure/cache"
	"github.com/lostfound/backend/internal/infrastructure/llm"
	"github.com/lostfound/backend/internal/infrastructure/postgres"
	"github.com/lostfound/backend/internal/infrastructure/vision"
	"github.com/lostfound/backend/internal/logger"
	"github.com/lostfound/backend/internal/usecase"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewZap(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	if err := run(cfg, logger.NewZapAdapter(zapLogger)); err != nil {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, appLog logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appLog.Info("starting lostfound backend", map[string]interface{}{
		"environment":  cfg.Server.Environment,
		"port":         cfg.Server.Port,
		"cacheType":    cfg.Cache.Type,
		"semanticMode": cfg.LLM.SemanticMode,
	})

	db, err := postgres.Open(ctx, postgres.Config{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	cacheRepo, closeCache, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer closeCache()

	itemService, matchService, err := buildServices(cfg, db, cacheRepo, appLog)
	if err != nil {
		return err
	}

	queue := usecase.NewProcessingQueue(itemService, usecase.ProcessingQueueConfig{
		Workers:     cfg.Processing.Workers,
		QueueSize:   cfg.Processing.QueueSize,
		ItemTimeout: cfg.Processing.ItemTimeout,
	}, appLog)
	queue.Start(ctx)

	handler := httpDelivery.NewHandler(itemService, matchService, queue, appLog)
	router := httpDelivery.SetupRouter(cfg, handler, appLog)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLog.Info("server listening", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			queue.Stop()
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	appLog.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Error("http shutdown failed", map[string]interface{}{"error": err})
	}
	queue.Stop()
	return nil
}

func newCache(ctx context.Context, cfg config.CacheConfig) (domain.CacheRepository, func(), error) {
	switch cfg.Type {
	case "redis":
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, "lostfound:")
		if err != nil {
			return nil, nil, err
		}
		if err := redisCache.Ping(ctx); err != nil {
			redisCache.Close()
			return nil, nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		return redisCache, func() { _ = redisCache.Close() }, nil
	default:
		memoryCache := cache.NewMemoryCache(cache.DefaultCleanupInterval)
		return memoryCache, func() { _ = memoryCache.Close() }, nil
	}
}

func buildServices(
	cfg *config.Config,
	db *sql.DB,
	cacheRepo domain.CacheRepository,
	appLog logger.Logger,
) (*usecase.ItemService, *usecase.MatchService, error) {
	if cfg.LLM.APIKey == "" {
		appLog.Warn("LLM API key is not configured; normalization, comparison and explanations will fall back", nil)
	}
	if cfg.Vision.APIKey == "" {
		appLog.Warn("vision API key is not configured; item processing will fail", nil)
	}

	visionClient := vision.NewClient(vision.ClientConfig{
		APIKey:     cfg.Vision.APIKey,
		BaseURL:    cfg.Vision.BaseURL,
		Timeout:    cfg.Vision.Timeout,
		MaxLabels:  cfg.Vision.MaxLabels,
		MaxObjects: cfg.Vision.MaxObjects,

		MaxRetries:        cfg.Vision.MaxRetries,
		RequestsPerSecond: cfg.Vision.RequestsPerSecond,
		Burst:             cfg.Vision.Burst,
	}, appLog)

	llmClient := llm.NewClient(llm.ClientConfig{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		EmbeddingsModel:   cfg.LLM.EmbeddingsModel,
		Timeout:           cfg.LLM.Timeout,
		MaxRetries:        cfg.LLM.MaxRetries,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Burst:             cfg.LLM.Burst,
	}, appLog)

	normalizer, err := llm.NewNormalizer(llmClient, appLog)
	if err != nil {
		return nil, nil, err
	}

	var comparer domain.SemanticComparer
	if cfg.LLM.SemanticMode == "embedding" {
		comparer = llm.NewEmbeddingComparer(llmClient, appLog)
	} else {
		comparer = llm.NewPromptComparer(llmClient, appLog)
	}
	comparer = usecase.NewCachedComparer(comparer, cacheRepo, cfg.Cache.TTL, appLog)

	scoring := cfg.Matching.ScoringConfig()
	scorer, err := usecase.NewMatchScorer(scoring, comparer, llm.NewExplainer(llmClient, appLog), appLog)
	if err != nil {
		return nil, nil, err
	}
	orchestrator, err := usecase.NewMatchOrchestrator(scoring, scorer, appLog)
	if err != nil {
		return nil, nil, err
	}

	items := postgres.NewItemRepository(db)
	matches := postgres.NewMatchRepository(db)

	itemService := usecase.NewItemService(items, matches, visionClient, normalizer, orchestrator,
		usecase.ItemServiceConfig{CandidateLimit: cfg.Matching.CandidateLimit}, appLog)
	matchService := usecase.NewMatchService(items, matches, appLog)

	return itemService, matchService, nil
}
