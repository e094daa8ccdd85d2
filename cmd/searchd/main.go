package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/delimatsuo/headhunter-sub011/internal/api"
	"github.com/delimatsuo/headhunter-sub011/internal/auth"
	"github.com/delimatsuo/headhunter-sub011/internal/cache"
	"github.com/delimatsuo/headhunter-sub011/internal/config"
	"github.com/delimatsuo/headhunter-sub011/internal/embedding"
	"github.com/delimatsuo/headhunter-sub011/internal/metrics"
	"github.com/delimatsuo/headhunter-sub011/internal/middleware"
	"github.com/delimatsuo/headhunter-sub011/internal/observability"
	"github.com/delimatsuo/headhunter-sub011/internal/rerank"
	"github.com/delimatsuo/headhunter-sub011/internal/resilience"
	"github.com/delimatsuo/headhunter-sub011/internal/retrieval"
	"github.com/delimatsuo/headhunter-sub011/internal/store"

	// PostgreSQL driver
	_ "github.com/lib/pq"
)

const (
	migrationsPath    = "migrations"
	poolStatsInterval = 15 * time.Second
)

func main() {
	// .env is optional; real deployments use environment variables.
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewStandardLogger("searchd")

	shutdownTracing, err := observability.InitTracing(cfg.Tracing, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer shutdownTracing()

	m := metrics.New()

	// Cache: Redis behind the layered client, or a no-op when disabled.
	var searchCache cache.Cache
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedisClient(cache.RedisOptions{
			Addr:        cfg.Redis.Addr(),
			Password:    cfg.Redis.Password,
			Database:    cfg.Redis.Database,
			TLS:         cfg.Redis.TLS,
			DialTimeout: cfg.Redis.DialTimeout,
			PoolSize:    cfg.Redis.PoolSize,
			MaxRetries:  cfg.Redis.MaxRetries,
		})
		if err != nil {
			log.Fatalf("Failed to initialize redis client: %v", err)
		}
		cacheConfig := cache.DefaultConfig()
		cacheConfig.Enabled = true
		cacheConfig.KeyPrefix = cfg.Cache.KeyPrefix
		cacheConfig.SearchTTL = time.Duration(cfg.Cache.SearchTTLSeconds) * time.Second
		cacheConfig.RerankTTL = time.Duration(cfg.Cache.RerankTTLSeconds) * time.Second
		cacheConfig.SpecialtyTTL = time.Duration(cfg.Cache.SpecialtyTTLSeconds) * time.Second
		cacheConfig.EmbeddingTTL = time.Duration(cfg.Cache.EmbeddingTTLSeconds) * time.Second
		cacheConfig.ScanBatch = int64(cfg.Cache.ScanBatchSize)
		cacheConfig.LocalSize = cfg.Cache.LocalSize

		remote := cache.NewRedisCache(redisClient, cacheConfig, logger, m)
		searchCache = cache.NewMultiLevelCache(remote, cacheConfig, logger)
	} else {
		logger.Info("Cache disabled, running without result caching", nil)
		searchCache = cache.NewNoopCache()
	}
	defer func() {
		if err := searchCache.Close(); err != nil {
			logger.Warn("Cache close failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	db, err := store.Connect(ctx, cfg.Database, logger, m)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		_ = db.DB().Close()
	}()

	if cfg.Database.MigrateOnStart {
		if err := db.Migrate(migrationsPath, logger); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}
	db.WarmupPool(ctx)

	go samplePoolStats(ctx, db)

	flight := cache.NewFlight()
	embedder := embedding.NewClient(cfg.Embedding, searchCache, flight, logger)
	retriever := retrieval.New(db, embedder, searchCache, flight, cfg.Retrieval, logger, m)

	providers := []rerank.Provider{
		rerank.NewTogetherProvider(cfg.Rerank.Together, logger, m),
		rerank.NewGeminiProvider(cfg.Rerank.Gemini, logger, m),
	}
	orchestrator := rerank.NewOrchestrator(cfg.Rerank, providers, searchCache, logger, m)

	validator := auth.NewJWTValidator([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
	tenantMiddleware := middleware.NewTenantMiddleware(db, validator, cfg.Auth.AllowHeaderTenant, logger)
	limiter := resilience.NewRateLimiter(resilience.RateLimiterConfig{
		Enabled:           cfg.RateLimiting.Enabled,
		RequestsPerSecond: cfg.RateLimiting.RequestsPerSecond,
		BurstSize:         cfg.RateLimiting.BurstSize,
		PerTenantRPS:      cfg.RateLimiting.PerTenantRPS,
		PerTenantBurst:    cfg.RateLimiting.PerTenantBurst,
	}, logger)

	server := api.NewServer(cfg, api.Deps{
		Reranker:  orchestrator,
		Retriever: retriever,
		Database:  db,
		Cache:     searchCache,
		Tenant:    tenantMiddleware,
		Limiter:   limiter,
	}, logger, m)

	opsServer := newOpsServer(cfg.Service.MetricsPort)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("API server failed: %v", err)
		}
	}()
	go func() {
		logger.Info("Ops server listening", map[string]interface{}{"addr": opsServer.Addr})
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Ops server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Received shutdown signal", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", map[string]interface{}{"error": err.Error()})
	}
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ops server shutdown error", map[string]interface{}{"error": err.Error()})
	}

	logger.Info("Server stopped gracefully", nil)
}

// newOpsServer serves Prometheus metrics on a separate port so scrapes never
// compete with tenant traffic.
func newOpsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// samplePoolStats exports connection pool gauges until shutdown.
func samplePoolStats(ctx context.Context, db *store.Store) {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			db.SamplePoolStats()
		}
	}
}
