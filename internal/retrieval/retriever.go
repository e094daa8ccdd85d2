// Package retrieval implements the hybrid retriever: parallel dense vector
// and lexical search over the candidate store, reciprocal rank fusion, and
// profile materialization with an archive fallback.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/delimatsuo/headhunter-sub011/internal/cache"
	"github.com/delimatsuo/headhunter-sub011/internal/config"
	"github.com/delimatsuo/headhunter-sub011/internal/metrics"
	"github.com/delimatsuo/headhunter-sub011/internal/models"
	"github.com/delimatsuo/headhunter-sub011/internal/observability"
	"github.com/delimatsuo/headhunter-sub011/internal/store"
	"github.com/delimatsuo/headhunter-sub011/internal/taxonomy"
)

// StoreClient is the slice of the store the retriever uses.
type StoreClient interface {
	VectorSearch(ctx context.Context, tenantID string, queryEmbedding []float32, limit int) ([]store.ScoredID, error)
	TextSearch(ctx context.Context, tenantID, textQuery string, limit int) ([]store.ScoredID, error)
	FetchProfiles(ctx context.Context, tenantID string, candidateIDs []string) (map[string]store.Profile, error)
	FetchArchivedProfile(ctx context.Context, tenantID, candidateID string) (*store.Profile, error)
}

// Embedder produces query embeddings.
type Embedder interface {
	EmbedQuery(ctx context.Context, tenantID, text string) ([]float32, error)
}

// Query is one retrieval request.
type Query struct {
	JobDescription string
	RequiredSkills []string
	Seniority      string
	Limit          int
	DisableCache   bool

	// QueryEmbedding skips the embed call when the caller already has one.
	QueryEmbedding []float32
}

// Retriever produces the top-K retrieval slate for a query.
type Retriever struct {
	store   StoreClient
	embed   Embedder
	cache   cache.Cache
	flight  *cache.Flight
	config  config.RetrievalConfig
	logger  observability.Logger
	metrics *metrics.Metrics
}

// New creates a hybrid retriever. metrics may be nil.
func New(st StoreClient, embed Embedder, c cache.Cache, flight *cache.Flight, cfg config.RetrievalConfig, logger observability.Logger, m *metrics.Metrics) *Retriever {
	if cfg.OverRetrievalFactor <= 0 {
		cfg.OverRetrievalFactor = 3
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = 60
	}
	if cfg.MaterializeConcurrency <= 0 {
		cfg.MaterializeConcurrency = 8
	}
	return &Retriever{
		store:   st,
		embed:   embed,
		cache:   c,
		flight:  flight,
		config:  cfg,
		logger:  logger.WithPrefix("hybrid-retriever"),
		metrics: m,
	}
}

// Retrieve runs the hybrid retrieval pipeline and returns the fused,
// materialized slate. On a deadline or partial branch failure it returns
// whatever it has produced; only a total failure of both branches is an
// error.
func (r *Retriever) Retrieve(ctx context.Context, tenantID string, q Query) (*models.RetrievalResult, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	q.JobDescription = strings.TrimSpace(q.JobDescription)

	if q.DisableCache {
		return r.retrieve(ctx, tenantID, q)
	}

	identifier := r.cacheIdentifier(q)
	result, hit, err := cache.GetOrCompute(ctx, r.cache, r.flight, cache.SearchResults, tenantID, identifier,
		func(ctx context.Context) (*models.RetrievalResult, error) {
			return r.retrieve(ctx, tenantID, q)
		})
	if err != nil {
		return nil, err
	}
	result.CacheHit = hit
	return result, nil
}

// cacheIdentifier hashes (jd, filters, limit) into the SearchResults key.
func (r *Retriever) cacheIdentifier(q Query) string {
	h := sha256.New()
	h.Write([]byte(q.JobDescription))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(q.RequiredSkills, ",")))
	h.Write([]byte{0})
	h.Write([]byte(q.Seniority))
	h.Write([]byte{0})
	fmt.Fprintf(h, "%d", q.Limit)
	return hex.EncodeToString(h.Sum(nil))
}

func (r *Retriever) retrieve(ctx context.Context, tenantID string, q Query) (*models.RetrievalResult, error) {
	result := &models.RetrievalResult{Candidates: []models.RetrievalCandidate{}}

	// Stage 1: query embedding and specialty classification in parallel.
	// Either branch may fail without aborting retrieval; a failed embed just
	// degrades to pure lexical search.
	embedding := q.QueryEmbedding
	var specialty taxonomy.Classification
	if len(embedding) == 0 || q.JobDescription != "" {
		embedStart := time.Now()
		var wg errgroup.Group
		if len(embedding) == 0 && q.JobDescription != "" {
			wg.Go(func() error {
				vec, err := r.embed.EmbedQuery(ctx, tenantID, q.JobDescription)
				if err != nil {
					r.logger.Warn("Query embedding failed, degrading to lexical", map[string]interface{}{
						"error": err.Error(),
					})
					return nil
				}
				embedding = vec
				return nil
			})
		}
		wg.Go(func() error {
			specialty = r.classify(ctx, tenantID, q.JobDescription)
			return nil
		})
		_ = wg.Wait()
		result.Timings.EmbedMs = time.Since(embedStart).Milliseconds()
	}

	if len(embedding) == 0 && q.JobDescription == "" {
		return result, nil
	}

	// Stage 2: vector and text branches in parallel, each over-retrieving.
	fetchLimit := q.Limit * r.config.OverRetrievalFactor
	var vectorHits, textHits []store.ScoredID
	var g errgroup.Group
	g.Go(func() error {
		start := time.Now()
		hits, err := r.store.VectorSearch(ctx, tenantID, embedding, fetchLimit)
		result.Timings.VectorMs = time.Since(start).Milliseconds()
		if err != nil {
			r.logger.Warn("Vector branch failed", map[string]interface{}{"error": err.Error()})
			return err
		}
		vectorHits = hits
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		hits, err := r.store.TextSearch(ctx, tenantID, q.JobDescription, fetchLimit)
		result.Timings.TextMs = time.Since(start).Milliseconds()
		if err != nil {
			r.logger.Warn("Text branch failed", map[string]interface{}{"error": err.Error()})
			return err
		}
		textHits = hits
		return nil
	})
	branchErr := g.Wait()
	if len(vectorHits) == 0 && len(textHits) == 0 {
		if branchErr != nil {
			return nil, fmt.Errorf("both retrieval branches failed: %w", branchErr)
		}
		return result, nil
	}

	// Stage 3: RRF merge.
	fuseStart := time.Now()
	fused := FuseRRF(vectorHits, textHits, r.config.RRFK, q.Limit)
	result.Timings.FuseMs = time.Since(fuseStart).Milliseconds()
	if r.metrics != nil {
		r.metrics.FusionCandidates.Observe(float64(len(fused)))
	}

	// Stage 4: materialize profiles, falling back to the archive store for
	// IDs missing from the primary table. Still-missing candidates are
	// dropped with a warn and the slate may run short of the limit.
	matStart := time.Now()
	candidates := r.materialize(ctx, tenantID, fused, specialty)
	result.Timings.MaterializeMs = time.Since(matStart).Milliseconds()

	result.Candidates = candidates
	return result, nil
}

// classify resolves the JD's specialty through the SpecialtyLookup layer.
// Classification is deterministic so the layer has no jitter.
func (r *Retriever) classify(ctx context.Context, tenantID, jd string) taxonomy.Classification {
	if jd == "" {
		return taxonomy.Classification{}
	}
	sum := sha256.Sum256([]byte(jd))
	identifier := hex.EncodeToString(sum[:])

	var cached taxonomy.Classification
	if err := r.cache.GetJSON(ctx, cache.SpecialtyLookup, tenantID, identifier, &cached); err == nil {
		return cached
	}
	classification := taxonomy.Classify(jd)
	_ = r.cache.SetJSON(ctx, cache.SpecialtyLookup, tenantID, identifier, classification)
	return classification
}

func (r *Retriever) materialize(ctx context.Context, tenantID string, fused []Fused, specialty taxonomy.Classification) []models.RetrievalCandidate {
	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.CandidateID
	}

	profiles, err := r.store.FetchProfiles(ctx, tenantID, ids)
	if err != nil {
		r.logger.Warn("Primary profile fetch failed", map[string]interface{}{"error": err.Error()})
		profiles = map[string]store.Profile{}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := profiles[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		r.fetchFromArchive(ctx, tenantID, missing, profiles)
	}

	candidates := make([]models.RetrievalCandidate, 0, len(fused))
	for _, f := range fused {
		profile, ok := profiles[f.CandidateID]
		if !ok {
			r.logger.Warn("Dropping candidate without profile", map[string]interface{}{
				"candidate_id": f.CandidateID,
				"tenant_id":    tenantID,
			})
			if r.metrics != nil {
				r.metrics.DroppedCandidates.Inc()
			}
			continue
		}
		c := models.RetrievalCandidate{
			CandidateID: f.CandidateID,
			VectorScore: f.VectorScore,
			TextScore:   f.TextScore,
			RRFScore:    f.RRFScore,
			Summary:     profile.Summary,
			Highlights:  profile.Highlights,
			Payload:     profile.Payload,
			Features: models.CandidateFeatures{
				VectorScore: f.VectorScore,
				TextScore:   f.TextScore,
			},
		}
		if specialty.Specialty != "" {
			c.Features.MatchReasons = append(c.Features.MatchReasons,
				fmt.Sprintf("specialty: %s", specialty.Specialty))
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// fetchFromArchive loads missing profiles from the secondary store with
// bounded concurrency, writing hits into profiles.
func (r *Retriever) fetchFromArchive(ctx context.Context, tenantID string, missing []string, profiles map[string]store.Profile) {
	type hit struct {
		id      string
		profile *store.Profile
	}
	results := make([]hit, len(missing))

	var g errgroup.Group
	g.SetLimit(r.config.MaterializeConcurrency)
	for i, id := range missing {
		i, id := i, id
		g.Go(func() error {
			p, err := r.store.FetchArchivedProfile(ctx, tenantID, id)
			if err != nil {
				r.logger.Warn("Archive fetch failed", map[string]interface{}{
					"candidate_id": id,
					"error":        err.Error(),
				})
				return nil
			}
			results[i] = hit{id: id, profile: p}
			return nil
		})
	}
	_ = g.Wait()

	for _, h := range results {
		if h.profile != nil {
			profiles[h.id] = *h.profile
		}
	}
}
