package cache

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"

	"github.com/delimatsuo/headhunter-sub011/internal/metrics"
	"github.com/delimatsuo/headhunter-sub011/internal/observability"
)

// RedisCache implements Cache on Redis. Every backend call runs through a
// circuit breaker so a Redis outage degrades to misses instead of adding
// per-request connect timeouts to the hot path.
type RedisCache struct {
	client   *redis.Client
	config   Config
	policies map[Layer]layerPolicy
	logger   observability.Logger
	metrics  *metrics.Metrics
	breaker  *gobreaker.CircuitBreaker
	rng      func() float64

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

// NewRedisCache creates a Redis-backed layered cache. metrics may be nil.
func NewRedisCache(client *redis.Client, config Config, logger observability.Logger, m *metrics.Metrics) *RedisCache {
	rc := &RedisCache{
		client:   client,
		config:   config,
		policies: config.policies(),
		logger:   logger.WithPrefix("cache"),
		metrics:  m,
		rng:      rand.Float64,
	}
	rc.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			rc.logger.Warn("Cache breaker state change", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			if rc.metrics != nil {
				rc.metrics.SetCircuitBreakerState(name, breakerStateValue(to))
			}
		},
	})
	return rc
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// Get retrieves a value. Any backend failure is reported as ErrCacheMiss.
func (rc *RedisCache) Get(ctx context.Context, layer Layer, tenantID, identifier string) ([]byte, error) {
	if !rc.config.Enabled {
		return nil, ErrCacheMiss
	}

	key := rc.key(layer, tenantID, identifier)

	res, err := rc.breaker.Execute(func() (interface{}, error) {
		val, err := rc.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			// Absence is a normal outcome, not a backend failure.
			return []byte(nil), nil
		}
		return val, err
	})
	if err != nil {
		rc.recordMiss(layer)
		rc.recordError(layer, "get")
		rc.logBackendError("get", layer, err)
		return nil, ErrCacheMiss
	}

	val := res.([]byte)
	if len(val) == 0 {
		rc.recordMiss(layer)
		return nil, ErrCacheMiss
	}

	rc.recordHit(layer)
	return val, nil
}

// Set stores a value with the layer's jittered TTL. Backend failures are
// logged and dropped.
func (rc *RedisCache) Set(ctx context.Context, layer Layer, tenantID, identifier string, value []byte) error {
	if !rc.config.Enabled {
		return nil
	}

	key := rc.key(layer, tenantID, identifier)
	ttl := rc.ttlFor(layer)

	_, err := rc.breaker.Execute(func() (interface{}, error) {
		return nil, rc.client.Set(ctx, key, value, ttl).Err()
	})
	if err != nil {
		rc.recordError(layer, "set")
		rc.logBackendError("set", layer, err)
		return nil
	}

	rc.sets.Add(1)
	return nil
}

// Delete removes a value. Backend failures are logged and dropped.
func (rc *RedisCache) Delete(ctx context.Context, layer Layer, tenantID, identifier string) error {
	if !rc.config.Enabled {
		return nil
	}

	key := rc.key(layer, tenantID, identifier)

	_, err := rc.breaker.Execute(func() (interface{}, error) {
		return nil, rc.client.Del(ctx, key).Err()
	})
	if err != nil {
		rc.recordError(layer, "delete")
		rc.logBackendError("delete", layer, err)
		return nil
	}

	rc.deletes.Add(1)
	return nil
}

// GetJSON retrieves and decodes a value. An entry that fails to decode is
// evicted and reported as a miss.
func (rc *RedisCache) GetJSON(ctx context.Context, layer Layer, tenantID, identifier string, dest interface{}) error {
	data, err := rc.Get(ctx, layer, tenantID, identifier)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		rc.logger.Warn("Evicting corrupt cache entry", map[string]interface{}{
			"layer":  string(layer),
			"tenant": tenantID,
			"error":  err.Error(),
		})
		_ = rc.Delete(ctx, layer, tenantID, identifier)
		return ErrCacheMiss
	}

	return nil
}

// SetJSON encodes and stores a value with the layer's jittered TTL.
func (rc *RedisCache) SetJSON(ctx context.Context, layer Layer, tenantID, identifier string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		rc.logger.Error("Cache marshal error", map[string]interface{}{
			"layer": string(layer),
			"error": err.Error(),
		})
		return ErrCacheInvalid
	}

	return rc.Set(ctx, layer, tenantID, identifier, data)
}

// InvalidateTenantLayer scans for the tenant's keys in one layer with a
// bounded cursor walk and deletes them in a single batch.
func (rc *RedisCache) InvalidateTenantLayer(ctx context.Context, layer Layer, tenantID string) (int, error) {
	if !rc.config.Enabled {
		return 0, nil
	}

	pattern := rc.key(layer, tenantID, "*")

	var keys []string
	var cursor uint64
	for {
		batch, next, err := rc.client.Scan(ctx, cursor, pattern, rc.config.ScanBatch).Result()
		if err != nil {
			rc.recordError(layer, "scan")
			return 0, err
		}
		keys = append(keys, batch...)
		if len(keys) >= rc.config.MaxScanKeys {
			keys = keys[:rc.config.MaxScanKeys]
			break
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return 0, nil
	}

	if err := rc.client.Del(ctx, keys...).Err(); err != nil {
		rc.recordError(layer, "delete")
		return 0, err
	}

	rc.deletes.Add(int64(len(keys)))
	rc.logger.Info("Invalidated tenant cache layer", map[string]interface{}{
		"layer":  string(layer),
		"tenant": tenantID,
		"keys":   len(keys),
	})
	return len(keys), nil
}

// Stats returns a snapshot of the cache counters.
func (rc *RedisCache) Stats() Stats {
	hits := rc.hits.Load()
	misses := rc.misses.Load()
	return Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    rc.sets.Load(),
		Deletes: rc.deletes.Load(),
		HitRate: hitRate(hits, misses),
	}
}

// Status reports backend availability. An open breaker is degraded rather
// than unhealthy: the pipeline keeps serving, just without a cache.
func (rc *RedisCache) Status(ctx context.Context) Status {
	if !rc.config.Enabled {
		return StatusDisabled
	}

	switch rc.breaker.State() {
	case gobreaker.StateOpen, gobreaker.StateHalfOpen:
		return StatusDegraded
	}

	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := rc.client.Ping(pingCtx).Err(); err != nil {
		return StatusUnhealthy
	}
	return StatusHealthy
}

// Close closes the backend connection.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

func (rc *RedisCache) key(layer Layer, tenantID, identifier string) string {
	return buildKey(rc.config.KeyPrefix, layer, tenantID, identifier)
}

func (rc *RedisCache) ttlFor(layer Layer) time.Duration {
	policy, ok := rc.policies[layer]
	if !ok {
		return time.Minute
	}
	return jitteredTTL(policy.ttl, policy.jitter, rc.rng)
}

func (rc *RedisCache) recordHit(layer Layer) {
	rc.hits.Add(1)
	if rc.metrics != nil {
		rc.metrics.RecordCacheHit(string(layer))
	}
}

func (rc *RedisCache) recordMiss(layer Layer) {
	rc.misses.Add(1)
	if rc.metrics != nil {
		rc.metrics.RecordCacheMiss(string(layer))
	}
}

func (rc *RedisCache) recordError(layer Layer, operation string) {
	if rc.metrics != nil {
		rc.metrics.RecordCacheError(string(layer), operation)
	}
}

func (rc *RedisCache) logBackendError(operation string, layer Layer, err error) {
	fields := map[string]interface{}{
		"operation": operation,
		"layer":     string(layer),
		"error":     err.Error(),
	}
	// An open breaker repeats on every call; keep that path quiet.
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		rc.logger.Debug("Cache unavailable", fields)
		return
	}
	rc.logger.Warn("Cache backend error", fields)
}
