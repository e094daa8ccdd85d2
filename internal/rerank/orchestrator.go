package rerank

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/delimatsuo/headhunter-sub011/internal/cache"
	"github.com/delimatsuo/headhunter-sub011/internal/config"
	"github.com/delimatsuo/headhunter-sub011/internal/metrics"
	"github.com/delimatsuo/headhunter-sub011/internal/models"
	"github.com/delimatsuo/headhunter-sub011/internal/observability"
)

// ErrVendorUnavailable is returned when every provider fails and graceful
// degradation is disabled.
var ErrVendorUnavailable = errors.New("all rerank providers unavailable")

// Orchestrator sequences the rerank pipeline: descriptor, cache lookup,
// prompt assembly, the ordered provider list, passthrough degradation, and
// the cache write-through. It always produces a slate while graceful
// degradation is enabled.
type Orchestrator struct {
	config    config.RerankConfig
	providers []Provider
	cache     cache.Cache
	prompt    *promptBuilder
	logger    observability.Logger
	metrics   *metrics.Metrics
}

// cacheEntry is the persisted rerank slate. The provider that produced it is
// kept for observability; a hit is always served as provider "cache".
type cacheEntry struct {
	Results  []models.RerankResult `json:"results"`
	Provider string                `json:"provider"`
}

// NewOrchestrator creates the rerank orchestrator. Providers are tried in
// order; the first is the primary. metrics may be nil.
func NewOrchestrator(cfg config.RerankConfig, providers []Provider, c cache.Cache, logger observability.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		config:    cfg,
		providers: providers,
		cache:     c,
		prompt:    newPromptBuilder(cfg),
		logger:    logger.WithPrefix("rerank"),
		metrics:   m,
	}
}

// Rerank runs the state machine for one request. The context deadline is the
// request budget; without one, the configured SLA target applies from entry.
func (o *Orchestrator) Rerank(ctx context.Context, tenantID, requestID string, req *models.RerankRequest) (*models.RerankResponse, error) {
	start := time.Now()
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = start.Add(o.config.SLATarget())
	}

	candidates := req.Candidates
	if len(candidates) > o.config.MaxCandidates {
		o.logger.Warn("Truncating candidate set", map[string]interface{}{
			"request_id": requestID,
			"received":   len(candidates),
			"max":        o.config.MaxCandidates,
		})
		candidates = candidates[:o.config.MaxCandidates]
	}

	limit := req.Limit
	if limit <= 0 {
		limit = o.config.DefaultLimit
	}
	topN := limit
	if topN > len(candidates) {
		topN = len(candidates)
	}
	includeReasons := req.ReasonsWanted()

	jdHash, docsetHash := Descriptor(req, candidates)
	resp := &models.RerankResponse{
		RequestID: requestID,
		Metadata: models.RerankMetadata{
			JDHash:         jdHash,
			DocsetHash:     docsetHash,
			CandidateCount: len(candidates),
			Limit:          limit,
		},
	}

	// (b) Cache lookup. The RerankScores layer is consulted and written
	// only here; the HTTP layer never touches it.
	identifier := cacheIdentifier(jdHash, docsetHash, limit)
	if !req.DisableCache {
		cacheStart := time.Now()
		var entry cacheEntry
		err := o.cache.GetJSON(ctx, cache.RerankScores, tenantID, identifier, &entry)
		resp.Timings.CacheMs = time.Since(cacheStart).Milliseconds()
		if err == nil {
			resp.Results = entry.Results
			resp.CacheHit = true
			resp.Metadata.Provider = models.RankSourceCache
			resp.Timings.TotalMs = time.Since(start).Milliseconds()
			o.record(resp, nil)
			return resp, nil
		}
	}

	// Tiny or textless requests go straight to passthrough without burning
	// budget on an LLM.
	if len(candidates) < o.config.MinCandidates || strings.TrimSpace(req.JobDescription) == "" {
		o.passthrough(resp, candidates, topN, includeReasons, false)
		resp.Timings.TotalMs = time.Since(start).Milliseconds()
		o.record(resp, nil)
		return resp, nil
	}

	// (c) Prompt assembly, strictly bounded.
	promptStart := time.Now()
	prompt, truncated := o.prompt.build(req.JobDescription, candidates, topN, includeReasons)
	resp.Timings.PromptMs = time.Since(promptStart).Milliseconds()
	if truncated && o.metrics != nil {
		o.metrics.PromptTruncations.Inc()
	}

	provReq := &Request{Prompt: prompt, TopN: topN, IncludeReasons: includeReasons}

	// (d)(e) Primary then fallback, strictly sequential. Budget is
	// recomputed on each entry; an exhausted budget skips the call inside
	// the provider.
	providerStart := time.Now()
	var slate *Response
	providerName := ""
	for i, p := range o.providers {
		if !p.Enabled() {
			continue
		}
		remaining := time.Until(deadline)
		slate = p.Rerank(ctx, provReq, remaining)
		if slate != nil {
			providerName = p.Name()
			resp.UsedFallback = i > 0
			break
		}
	}
	resp.Timings.ProviderMs = time.Since(providerStart).Milliseconds()

	if slate == nil {
		// (f) Passthrough. With graceful degradation disabled this is the
		// one hard failure the orchestrator surfaces.
		if !o.config.EnableFallback {
			o.record(resp, ErrVendorUnavailable)
			return nil, ErrVendorUnavailable
		}
		degraded := time.Until(deadline) <= minBudget
		o.passthrough(resp, candidates, topN, includeReasons, degraded)
		resp.Timings.TotalMs = time.Since(start).Milliseconds()
		o.record(resp, nil)
		return resp, nil
	}

	// (g) Merge: drop fabricated IDs, fill gaps from passthrough ordering,
	// contiguous ranks.
	resp.Results = o.merge(requestID, slate.Candidates, candidates, topN, includeReasons)
	if resp.UsedFallback {
		resp.Metadata.Provider = models.RankSourceFallback
		if o.metrics != nil {
			o.metrics.RerankFallbacks.Inc()
		}
	} else {
		resp.Metadata.Provider = models.RankSourcePrimary
	}
	o.logger.Debug("Provider slate accepted", map[string]interface{}{
		"request_id": requestID,
		"provider":   providerName,
		"results":    len(resp.Results),
	})

	// (h) Write-through, skipped for passthrough and caller-disabled cache.
	if !req.DisableCache {
		cacheStart := time.Now()
		_ = o.cache.SetJSON(ctx, cache.RerankScores, tenantID, identifier, cacheEntry{
			Results:  resp.Results,
			Provider: resp.Metadata.Provider,
		})
		resp.Timings.CacheMs += time.Since(cacheStart).Milliseconds()
	}

	resp.Timings.TotalMs = time.Since(start).Milliseconds()
	o.record(resp, nil)
	return resp, nil
}

// Providers exposes the ordered provider list for health reporting.
func (o *Orchestrator) Providers() []Provider {
	return o.providers
}

// passthrough fills the response by ordering candidates on their initial
// score. Passthrough slates are never cached.
func (o *Orchestrator) passthrough(resp *models.RerankResponse, candidates []models.RerankCandidate, topN int, includeReasons, degraded bool) {
	ordered := passthroughOrder(candidates)
	if len(ordered) > topN {
		ordered = ordered[:topN]
	}

	results := make([]models.RerankResult, len(ordered))
	for i, c := range ordered {
		results[i] = models.RerankResult{
			CandidateID: c.CandidateID,
			Rank:        i + 1,
			Score:       clampScore(c.InitialRankScore()),
			Payload:     c.Payload,
		}
		if includeReasons {
			results[i].Reasons = o.synthesizeReasons(&c, 0)
		}
	}

	resp.Results = results
	resp.UsedFallback = true
	resp.Metadata.Provider = models.RankSourcePassthrough
	resp.Metadata.Degraded = degraded
	if o.metrics != nil {
		o.metrics.RerankPassthroughs.Inc()
	}
}

// passthroughOrder sorts by descending initial score, preserving insertion
// order for ties.
func passthroughOrder(candidates []models.RerankCandidate) []models.RerankCandidate {
	ordered := make([]models.RerankCandidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].InitialRankScore() > ordered[j].InitialRankScore()
	})
	return ordered
}

// merge reconciles a provider slate with the input set: fabricated IDs are
// dropped with a warn, duplicate IDs collapse to their best slot, missing
// slots fill from passthrough ordering, and ranks are reassigned 1..N.
func (o *Orchestrator) merge(requestID string, slate []models.RerankResult, candidates []models.RerankCandidate, topN int, includeReasons bool) []models.RerankResult {
	byID := make(map[string]*models.RerankCandidate, len(candidates))
	for i := range candidates {
		byID[candidates[i].CandidateID] = &candidates[i]
	}

	// Keep provider ordering by rank, then enforce the non-increasing
	// score contract with a stable score sort.
	sort.SliceStable(slate, func(i, j int) bool { return slate[i].Rank < slate[j].Rank })
	sort.SliceStable(slate, func(i, j int) bool { return slate[i].Score > slate[j].Score })

	seen := make(map[string]bool, len(slate))
	merged := make([]models.RerankResult, 0, topN)
	for _, r := range slate {
		c, ok := byID[r.CandidateID]
		if !ok {
			o.logger.Warn("Dropping fabricated candidate ID from provider", map[string]interface{}{
				"request_id":   requestID,
				"candidate_id": r.CandidateID,
			})
			if o.metrics != nil {
				o.metrics.DroppedCandidates.Inc()
			}
			continue
		}
		if seen[r.CandidateID] {
			continue
		}
		seen[r.CandidateID] = true

		r.Payload = c.Payload
		if includeReasons {
			if len(r.Reasons) > o.config.ReasonLimit {
				r.Reasons = r.Reasons[:o.config.ReasonLimit]
			}
			if len(r.Reasons) == 0 {
				r.Reasons = o.synthesizeReasons(c, r.Score)
			}
		} else {
			r.Reasons = nil
		}
		merged = append(merged, r)
		if len(merged) == topN {
			break
		}
	}

	// Fill any missing slots from passthrough ordering.
	if len(merged) < topN {
		for _, c := range passthroughOrder(candidates) {
			if len(merged) == topN {
				break
			}
			if seen[c.CandidateID] {
				continue
			}
			seen[c.CandidateID] = true
			filled := models.RerankResult{
				CandidateID: c.CandidateID,
				Score:       clampScore(c.InitialRankScore()),
				Payload:     c.Payload,
			}
			if includeReasons {
				filled.Reasons = o.synthesizeReasons(&c, 0)
			}
			merged = append(merged, filled)
		}
	}

	for i := range merged {
		merged[i].Rank = i + 1
	}
	return merged
}

// synthesizeReasons derives up to reasonLimit reasons from the candidate's
// retrieval features when the provider supplied none.
func (o *Orchestrator) synthesizeReasons(c *models.RerankCandidate, modelScore float64) []string {
	var reasons []string
	add := func(r string) {
		if len(reasons) < o.config.ReasonLimit {
			reasons = append(reasons, r)
		}
	}

	if modelScore > 0 {
		add(fmt.Sprintf("model score %.2f", modelScore))
	}
	if s := c.InitialRankScore(); s > 0 {
		add(fmt.Sprintf("initial match score %.2f", s))
	}
	if f := c.Features; f != nil {
		for _, mr := range f.MatchReasons {
			add(mr)
		}
		if len(f.Skills) > 0 {
			n := len(f.Skills)
			if n > 3 {
				n = 3
			}
			add("skills: " + strings.Join(f.Skills[:n], ", "))
		}
	}
	return reasons
}

func (o *Orchestrator) record(resp *models.RerankResponse, err error) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordRerank(resp.Metadata.CandidateCount, float64(resp.Timings.TotalMs)/1000.0, err)
}
