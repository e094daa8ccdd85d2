package models

import "encoding/json"

// Rank sources reported in RerankMetadata.Provider.
const (
	RankSourcePrimary     = "primary"
	RankSourceFallback    = "fallback"
	RankSourcePassthrough = "passthrough"
	RankSourceCache       = "cache"
)

// RerankCandidate is a caller-supplied candidate handed to the reranker.
type RerankCandidate struct {
	CandidateID  string             `json:"candidateId" binding:"required"`
	Summary      string             `json:"summary,omitempty"`
	Highlights   []string           `json:"highlights,omitempty"`
	InitialScore *float64           `json:"initialScore,omitempty"`
	Features     *CandidateFeatures `json:"features,omitempty"`
	Payload      json.RawMessage    `json:"payload,omitempty"`
}

// InitialRankScore returns the pre-rerank ordering score: the explicit
// initialScore when present, else vectorScore, else textScore, else zero.
func (c *RerankCandidate) InitialRankScore() float64 {
	if c.InitialScore != nil {
		return *c.InitialScore
	}
	if c.Features != nil {
		if c.Features.VectorScore != 0 {
			return c.Features.VectorScore
		}
		if c.Features.TextScore != 0 {
			return c.Features.TextScore
		}
	}
	return 0
}

// RerankResult is one ranked slot of the response slate. Ranks within a slate
// are a contiguous permutation 1..N and every CandidateID comes from the input
// candidate set.
type RerankResult struct {
	CandidateID string          `json:"candidateId"`
	Rank        int             `json:"rank"`
	Score       float64         `json:"score"`
	Reasons     []string        `json:"reasons,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// RerankRequest is the body of POST /v1/search/rerank.
type RerankRequest struct {
	JobDescription  string                 `json:"jobDescription" binding:"required,min=20,max=20000"`
	JDHash          string                 `json:"jdHash,omitempty" binding:"omitempty,min=8,max=64"`
	DocsetHash      string                 `json:"docsetHash,omitempty" binding:"omitempty,min=8,max=64"`
	Candidates      []RerankCandidate      `json:"candidates" binding:"required,min=1,max=200,dive"`
	Limit           int                    `json:"limit,omitempty" binding:"omitempty,min=1,max=200"`
	DisableCache    bool                   `json:"disableCache,omitempty"`
	IncludeReasons  *bool                  `json:"includeReasons,omitempty"`
	RequestMetadata map[string]interface{} `json:"requestMetadata,omitempty"`
}

// ReasonsWanted reports whether the caller asked for per-candidate reasons.
// Absent means true.
func (r *RerankRequest) ReasonsWanted() bool {
	return r.IncludeReasons == nil || *r.IncludeReasons
}

// RerankTimings breaks rerank latency into its stages, in milliseconds.
type RerankTimings struct {
	TotalMs    int64 `json:"totalMs"`
	ProviderMs int64 `json:"providerMs,omitempty"`
	PromptMs   int64 `json:"promptMs,omitempty"`
	CacheMs    int64 `json:"cacheMs,omitempty"`
}

// RerankMetadata describes how the slate was produced.
type RerankMetadata struct {
	Provider       string `json:"provider"`
	DocsetHash     string `json:"docsetHash"`
	JDHash         string `json:"jdHash"`
	CandidateCount int    `json:"candidateCount"`
	Limit          int    `json:"limit"`
	Degraded       bool   `json:"degraded,omitempty"`
}

// RerankResponse is the body returned by POST /v1/search/rerank.
type RerankResponse struct {
	Results      []RerankResult `json:"results"`
	CacheHit     bool           `json:"cacheHit"`
	UsedFallback bool           `json:"usedFallback"`
	RequestID    string         `json:"requestId"`
	Timings      RerankTimings  `json:"timings"`
	Metadata     RerankMetadata `json:"metadata"`
}

// HybridSearchRequest is the body of POST /v1/search/hybrid.
type HybridSearchRequest struct {
	JobDescription string   `json:"jobDescription" binding:"required,min=2,max=20000"`
	RequiredSkills []string `json:"requiredSkills,omitempty"`
	Seniority      string   `json:"seniority,omitempty"`
	Limit          int      `json:"limit,omitempty" binding:"omitempty,min=1,max=200"`
	DisableCache   bool     `json:"disableCache,omitempty"`
}

// HybridSearchResponse is the body returned by POST /v1/search/hybrid.
type HybridSearchResponse struct {
	Candidates []RetrievalCandidate `json:"candidates"`
	Timings    RetrievalTimings     `json:"timings"`
	CacheHit   bool                 `json:"cacheHit"`
	RequestID  string               `json:"requestId"`
}

// SearchRequest is the body of POST /v1/search, the retrieve-then-rerank
// pipeline in one call.
type SearchRequest struct {
	JobDescription string   `json:"jobDescription" binding:"required,min=20,max=20000"`
	RequiredSkills []string `json:"requiredSkills,omitempty"`
	Seniority      string   `json:"seniority,omitempty"`
	Limit          int      `json:"limit,omitempty" binding:"omitempty,min=1,max=200"`
	DisableCache   bool     `json:"disableCache,omitempty"`
	IncludeReasons *bool    `json:"includeReasons,omitempty"`
}

// SearchResponse is the rerank response plus the retrieval stage timings.
type SearchResponse struct {
	RerankResponse
	Retrieval RetrievalTimings `json:"retrieval"`
}
