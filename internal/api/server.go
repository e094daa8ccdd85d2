package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/delimatsuo/headhunter-sub011/internal/cache"
	"github.com/delimatsuo/headhunter-sub011/internal/config"
	"github.com/delimatsuo/headhunter-sub011/internal/metrics"
	"github.com/delimatsuo/headhunter-sub011/internal/middleware"
	"github.com/delimatsuo/headhunter-sub011/internal/models"
	"github.com/delimatsuo/headhunter-sub011/internal/observability"
	"github.com/delimatsuo/headhunter-sub011/internal/rerank"
	"github.com/delimatsuo/headhunter-sub011/internal/resilience"
	"github.com/delimatsuo/headhunter-sub011/internal/retrieval"
	"github.com/delimatsuo/headhunter-sub011/internal/store"
)

// Reranker orders a candidate slate against a job description.
type Reranker interface {
	Rerank(ctx context.Context, tenantID, requestID string, req *models.RerankRequest) (*models.RerankResponse, error)
	Providers() []rerank.Provider
}

// Retriever produces the hybrid retrieval slate for a query.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID string, q retrieval.Query) (*models.RetrievalResult, error)
}

// DatabaseHealth reports connection pool health.
type DatabaseHealth interface {
	HealthCheck(ctx context.Context) store.Health
}

// Deps bundles the server's collaborators. Tenant and Limiter are optional;
// routes run unauthenticated and unthrottled without them.
type Deps struct {
	Reranker  Reranker
	Retriever Retriever
	Database  DatabaseHealth
	Cache     cache.Cache
	Tenant    *middleware.TenantMiddleware
	Limiter   *resilience.RateLimiter
}

// Server is the HTTP API for the candidate search service.
type Server struct {
	router   *gin.Engine
	server   *http.Server
	config   *config.Config
	logger   observability.Logger
	metrics  *metrics.Metrics
	reranker Reranker
	searcher Retriever
	database DatabaseHealth
	cache    cache.Cache
}

// NewServer builds the router with the full middleware chain.
func NewServer(cfg *config.Config, deps Deps, logger observability.Logger, m *metrics.Metrics) *Server {
	if cfg.Service.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:   gin.New(),
		config:   cfg,
		logger:   logger.WithPrefix("api"),
		metrics:  m,
		reranker: deps.Reranker,
		searcher: deps.Retriever,
		database: deps.Database,
		cache:    deps.Cache,
	}

	s.router.Use(middleware.RequestID())
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		s.logger.Error("Handler panic", map[string]interface{}{
			"request_id": middleware.GetRequestID(c),
			"panic":      fmt.Sprintf("%v", recovered),
		})
		respondError(c, models.CodeInternal, "internal error")
	}))

	s.router.GET("/healthz", s.handleLiveness)
	s.router.GET("/readyz", s.handleReadiness)
	s.router.GET("/healthz/details", s.handleHealthDetails)

	v1 := s.router.Group("/v1")
	if deps.Tenant != nil {
		v1.Use(deps.Tenant.ExtractTenant())
	}
	if deps.Limiter != nil {
		v1.Use(middleware.RateLimit(deps.Limiter, m))
	}
	v1.POST("/search", s.handleSearch)
	v1.POST("/search/hybrid", s.handleHybridSearch)
	v1.POST("/search/rerank", s.handleRerank)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router exposes the handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("API server listening", map[string]interface{}{
		"addr": s.server.Addr,
	})
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// writeServerTiming emits the stage breakdown as a Server-Timing header.
func writeServerTiming(c *gin.Context, t models.RerankTimings) {
	c.Header("Server-Timing", fmt.Sprintf(
		"total;dur=%d, provider;dur=%d, prompt;dur=%d, cache;dur=%d",
		t.TotalMs, t.ProviderMs, t.PromptMs, t.CacheMs))
}

// logResponse writes the per-request log line, warning instead when the
// request crossed the slow threshold.
func (s *Server) logResponse(route, tenantID string, resp *models.RerankResponse) {
	fields := map[string]interface{}{
		"request_id":      resp.RequestID,
		"tenant_id":       tenantID,
		"provider":        resp.Metadata.Provider,
		"cache_hit":       resp.CacheHit,
		"used_fallback":   resp.UsedFallback,
		"total_ms":        resp.Timings.TotalMs,
		"provider_ms":     resp.Timings.ProviderMs,
		"prompt_ms":       resp.Timings.PromptMs,
		"cache_ms":        resp.Timings.CacheMs,
		"candidate_count": resp.Metadata.CandidateCount,
		"index_type":      s.config.Database.IndexType,
	}
	if s.config.Rerank.SlowLogMs > 0 && resp.Timings.TotalMs > int64(s.config.Rerank.SlowLogMs) {
		if s.metrics != nil {
			s.metrics.RecordSlowRequest(route)
		}
		s.logger.Warn("Slow request", fields)
		return
	}
	s.logger.Info("Request completed", fields)
}
