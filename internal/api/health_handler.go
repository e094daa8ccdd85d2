package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/delimatsuo/headhunter-sub011/internal/cache"
	"github.com/delimatsuo/headhunter-sub011/internal/rerank"
	"github.com/delimatsuo/headhunter-sub011/internal/store"
)

// handleLiveness reports process liveness only.
func (s *Server) handleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleReadiness gates traffic admission. Ready requires the cache to be
// reachable or deliberately off, and at least one rerank provider whose
// circuit is not open. The database is reported in details but does not gate
// readiness on its own; retrieval degrades per branch.
func (s *Server) handleReadiness(c *gin.Context) {
	cacheStatus := s.cache.Status(c.Request.Context())
	cacheReady := cacheStatus == cache.StatusHealthy ||
		cacheStatus == cache.StatusDisabled ||
		cacheStatus == cache.StatusDegraded

	providerReady := false
	for _, p := range s.reranker.Providers() {
		h := p.Health()
		if h.Status == "healthy" || h.Status == "disabled" {
			providerReady = true
			break
		}
	}

	if cacheReady && providerReady {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"status":    "not ready",
		"cache":     cacheStatus,
		"providers": providerReady,
	})
}

type healthDetails struct {
	Status    string                  `json:"status"`
	Database  store.Health            `json:"database"`
	Cache     cacheHealth             `json:"cache"`
	Providers []rerank.ProviderHealth `json:"providers"`
	Embedder  embedderInfo            `json:"embedder"`
}

type cacheHealth struct {
	Status cache.Status `json:"status"`
	Stats  cache.Stats  `json:"stats"`
}

type embedderInfo struct {
	Model    string `json:"model"`
	Endpoint string `json:"endpoint"`
}

// handleHealthDetails reports per-dependency health for operators.
func (s *Server) handleHealthDetails(c *gin.Context) {
	ctx := c.Request.Context()

	details := healthDetails{
		Status:   "healthy",
		Database: s.database.HealthCheck(ctx),
		Cache: cacheHealth{
			Status: s.cache.Status(ctx),
			Stats:  s.cache.Stats(),
		},
		Embedder: embedderInfo{
			Model:    s.config.Embedding.Model,
			Endpoint: s.config.Embedding.BaseURL,
		},
	}
	for _, p := range s.reranker.Providers() {
		details.Providers = append(details.Providers, p.Health())
	}

	if details.Database.Status == "unhealthy" || details.Cache.Status == cache.StatusUnhealthy {
		details.Status = "degraded"
	}

	status := http.StatusOK
	if details.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, details)
}
