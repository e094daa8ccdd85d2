package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/delimatsuo/headhunter-sub011/internal/middleware"
	"github.com/delimatsuo/headhunter-sub011/internal/models"
	"github.com/delimatsuo/headhunter-sub011/internal/rerank"
)

// handleRerank serves POST /v1/search/rerank. The caller supplies the
// candidate slate; the handler owns the SLA deadline.
func (s *Server) handleRerank(c *gin.Context) {
	tenant, _ := middleware.GetTenant(c)
	requestID := middleware.GetRequestID(c)

	var req models.RerankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.Rerank.SLATarget())
	defer cancel()

	resp, err := s.reranker.Rerank(ctx, tenant.ID, requestID, &req)
	if err != nil {
		s.rerankError(c, requestID, err)
		return
	}

	writeServerTiming(c, resp.Timings)
	s.logResponse("/v1/search/rerank", tenant.ID, resp)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) rerankError(c *gin.Context, requestID string, err error) {
	if errors.Is(err, rerank.ErrVendorUnavailable) {
		respondError(c, models.CodeVendorUnavailable, "rerank providers unavailable")
		return
	}
	s.logger.Error("Rerank failed", map[string]interface{}{
		"request_id": requestID,
		"error":      err.Error(),
	})
	respondError(c, models.CodeInternal, "rerank failed")
}
