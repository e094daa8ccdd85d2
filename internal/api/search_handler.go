package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/delimatsuo/headhunter-sub011/internal/middleware"
	"github.com/delimatsuo/headhunter-sub011/internal/models"
	"github.com/delimatsuo/headhunter-sub011/internal/retrieval"
)

// handleHybridSearch serves POST /v1/search/hybrid: retrieval only, no
// reranking.
func (s *Server) handleHybridSearch(c *gin.Context) {
	tenant, _ := middleware.GetTenant(c)
	requestID := middleware.GetRequestID(c)

	var req models.HybridSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.Rerank.SLATarget())
	defer cancel()

	result, err := s.searcher.Retrieve(ctx, tenant.ID, retrieval.Query{
		JobDescription: req.JobDescription,
		RequiredSkills: req.RequiredSkills,
		Seniority:      req.Seniority,
		Limit:          req.Limit,
		DisableCache:   req.DisableCache,
	})
	if err != nil {
		s.logger.Error("Hybrid search failed", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		respondError(c, models.CodeInternal, "search failed")
		return
	}

	c.JSON(http.StatusOK, models.HybridSearchResponse{
		Candidates: result.Candidates,
		Timings:    result.Timings,
		CacheHit:   result.CacheHit,
		RequestID:  requestID,
	})
}

// handleSearch serves POST /v1/search: retrieve then rerank in one call. The
// SLA deadline covers both stages.
func (s *Server) handleSearch(c *gin.Context) {
	tenant, _ := middleware.GetTenant(c)
	requestID := middleware.GetRequestID(c)

	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.Rerank.SLATarget())
	defer cancel()

	retrieved, err := s.searcher.Retrieve(ctx, tenant.ID, retrieval.Query{
		JobDescription: req.JobDescription,
		RequiredSkills: req.RequiredSkills,
		Seniority:      req.Seniority,
		Limit:          req.Limit,
		DisableCache:   req.DisableCache,
	})
	if err != nil {
		s.logger.Error("Retrieval failed", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		respondError(c, models.CodeInternal, "search failed")
		return
	}

	if len(retrieved.Candidates) == 0 {
		c.JSON(http.StatusOK, models.SearchResponse{
			RerankResponse: models.RerankResponse{
				Results:   []models.RerankResult{},
				RequestID: requestID,
			},
			Retrieval: retrieved.Timings,
		})
		return
	}

	rerankReq := &models.RerankRequest{
		JobDescription: req.JobDescription,
		Candidates:     rerankSlate(retrieved.Candidates),
		Limit:          req.Limit,
		DisableCache:   req.DisableCache,
		IncludeReasons: req.IncludeReasons,
	}

	resp, err := s.reranker.Rerank(ctx, tenant.ID, requestID, rerankReq)
	if err != nil {
		s.rerankError(c, requestID, err)
		return
	}

	writeServerTiming(c, resp.Timings)
	s.logResponse("/v1/search", tenant.ID, resp)
	c.JSON(http.StatusOK, models.SearchResponse{
		RerankResponse: *resp,
		Retrieval:      retrieved.Timings,
	})
}

// rerankSlate converts retrieval candidates into reranker input. The fused
// score becomes the initial score so passthrough preserves retrieval order.
func rerankSlate(candidates []models.RetrievalCandidate) []models.RerankCandidate {
	out := make([]models.RerankCandidate, 0, len(candidates))
	for i := range candidates {
		rc := &candidates[i]
		features := rc.Features
		features.VectorScore = rc.VectorScore
		features.TextScore = rc.TextScore
		initial := rc.RRFScore
		out = append(out, models.RerankCandidate{
			CandidateID:  rc.CandidateID,
			Summary:      rc.Summary,
			Highlights:   rc.Highlights,
			InitialScore: &initial,
			Features:     &features,
			Payload:      rc.Payload,
		})
	}
	return out
}
