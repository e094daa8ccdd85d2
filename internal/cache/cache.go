// Package cache provides the layered, tenant-scoped cache used by the search
// pipeline. Each layer pairs a key prefix with a TTL policy; callers address
// entries as (layer, tenantID, identifier) and never build raw keys.
//
// Cache failures are absorbed rather than propagated: a backend read error
// surfaces as ErrCacheMiss and a backend write error is logged and dropped.
// The pipeline must produce correct results with the cache disabled.
package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrCacheMiss is returned when a key is not found or unreadable.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheInvalid is returned when cached data cannot be decoded.
	ErrCacheInvalid = errors.New("invalid cached data")
)

// Layer names a cache namespace. The value doubles as the key segment.
type Layer string

const (
	// SearchResults holds hybrid retrieval slates.
	SearchResults Layer = "search"

	// RerankScores holds full rerank slates keyed by (jd, docset).
	RerankScores Layer = "rerank"

	// SpecialtyLookup holds deterministic taxonomy classifications. Also
	// served from an in-process tier when a multilevel cache is used.
	SpecialtyLookup Layer = "specialty"

	// Embedding holds query embeddings keyed by text hash.
	Embedding Layer = "emb"
)

// layerPolicy is the per-layer TTL behavior derived from Config.
type layerPolicy struct {
	ttl    time.Duration
	jitter bool
	local  bool
}

// Config configures the cache layers.
type Config struct {
	// Enabled toggles the whole cache. When false every read is a miss and
	// every write is a no-op.
	Enabled bool

	// KeyPrefix is prepended to all cache keys.
	KeyPrefix string

	SearchTTL    time.Duration
	RerankTTL    time.Duration
	SpecialtyTTL time.Duration
	EmbeddingTTL time.Duration

	// ScanBatch is the COUNT hint for cursor scans.
	ScanBatch int64

	// MaxScanKeys bounds how many keys a single invalidation may touch.
	MaxScanKeys int

	// LocalSize is the entry capacity of the in-process tier.
	LocalSize int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		KeyPrefix:    "hh",
		SearchTTL:    600 * time.Second,
		RerankTTL:    21600 * time.Second,
		SpecialtyTTL: 86400 * time.Second,
		EmbeddingTTL: 3600 * time.Second,
		ScanBatch:    100,
		MaxScanKeys:  1000,
		LocalSize:    2048,
	}
}

func (c Config) policies() map[Layer]layerPolicy {
	return map[Layer]layerPolicy{
		SearchResults:   {ttl: c.SearchTTL, jitter: true},
		RerankScores:    {ttl: c.RerankTTL, jitter: true},
		SpecialtyLookup: {ttl: c.SpecialtyTTL, jitter: false, local: true},
		Embedding:       {ttl: c.EmbeddingTTL, jitter: true},
	}
}

// Status reports cache backend availability for health checks.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusDisabled  Status = "disabled"
)

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Deletes int64   `json:"deletes"`
	HitRate float64 `json:"hit_rate"`
}

// Cache is the layered cache contract. Implementations absorb backend
// failures: Get reports them as ErrCacheMiss, Set and Delete log and return
// nil. GetJSON treats undecodable entries as misses and evicts them.
type Cache interface {
	Get(ctx context.Context, layer Layer, tenantID, identifier string) ([]byte, error)
	Set(ctx context.Context, layer Layer, tenantID, identifier string, value []byte) error
	Delete(ctx context.Context, layer Layer, tenantID, identifier string) error

	GetJSON(ctx context.Context, layer Layer, tenantID, identifier string, dest interface{}) error
	SetJSON(ctx context.Context, layer Layer, tenantID, identifier string, value interface{}) error

	// InvalidateTenantLayer removes every key for one tenant in one layer
	// and returns how many keys were deleted.
	InvalidateTenantLayer(ctx context.Context, layer Layer, tenantID string) (int, error)

	Stats() Stats
	Status(ctx context.Context) Status
	Close() error
}

// buildKey assembles "<prefix>:<layer>:<tenantId>:<identifier>".
func buildKey(prefix string, layer Layer, tenantID, identifier string) string {
	return fmt.Sprintf("%s:%s:%s:%s", prefix, layer, tenantID, identifier)
}

// jitteredTTL spreads expiry as floor(base * (1 + U(-0.2, +0.2))) so that
// entries written together do not expire together. rng yields [0.0, 1.0).
func jitteredTTL(base time.Duration, jitter bool, rng func() float64) time.Duration {
	if !jitter {
		return base
	}
	factor := 1.0 + (rng()*0.4 - 0.2)
	secs := math.Floor(base.Seconds() * factor)
	return time.Duration(secs) * time.Second
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}
