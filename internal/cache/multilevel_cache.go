package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/delimatsuo/headhunter-sub011/internal/observability"
)

// MultiLevelCache fronts a remote Cache with a small in-process LRU for the
// layers flagged local (taxonomy lookups). Local entries expire on the
// layer's base TTL; the remote tier remains the source of truth for
// invalidation across instances.
type MultiLevelCache struct {
	local    *expirable.LRU[string, []byte]
	remote   Cache
	policies map[Layer]layerPolicy
	logger   observability.Logger

	localHits atomic.Int64
}

// NewMultiLevelCache creates a multi-level cache over the given remote tier.
func NewMultiLevelCache(remote Cache, config Config, logger observability.Logger) *MultiLevelCache {
	size := config.LocalSize
	if size <= 0 {
		size = 1024
	}

	policies := config.policies()

	// One local TTL serves every local layer; pick the shortest so no
	// entry outlives its layer policy.
	localTTL := config.SpecialtyTTL
	for _, policy := range policies {
		if policy.local && policy.ttl < localTTL {
			localTTL = policy.ttl
		}
	}

	return &MultiLevelCache{
		local:    expirable.NewLRU[string, []byte](size, nil, localTTL),
		remote:   remote,
		policies: policies,
		logger:   logger.WithPrefix("cache-local"),
	}
}

func (c *MultiLevelCache) isLocal(layer Layer) bool {
	policy, ok := c.policies[layer]
	return ok && policy.local
}

func (c *MultiLevelCache) localKey(layer Layer, tenantID, identifier string) string {
	return buildKey("local", layer, tenantID, identifier)
}

// Get checks the local tier first for local layers, then the remote tier,
// backfilling the local tier on a remote hit.
func (c *MultiLevelCache) Get(ctx context.Context, layer Layer, tenantID, identifier string) ([]byte, error) {
	localLayer := c.isLocal(layer)

	if localLayer {
		if val, ok := c.local.Get(c.localKey(layer, tenantID, identifier)); ok {
			c.localHits.Add(1)
			return val, nil
		}
	}

	val, err := c.remote.Get(ctx, layer, tenantID, identifier)
	if err != nil {
		return nil, err
	}

	if localLayer {
		c.local.Add(c.localKey(layer, tenantID, identifier), val)
	}
	return val, nil
}

// Set writes through to the remote tier and mirrors local layers.
func (c *MultiLevelCache) Set(ctx context.Context, layer Layer, tenantID, identifier string, value []byte) error {
	if c.isLocal(layer) {
		c.local.Add(c.localKey(layer, tenantID, identifier), value)
	}
	return c.remote.Set(ctx, layer, tenantID, identifier, value)
}

// Delete removes the entry from both tiers.
func (c *MultiLevelCache) Delete(ctx context.Context, layer Layer, tenantID, identifier string) error {
	c.local.Remove(c.localKey(layer, tenantID, identifier))
	return c.remote.Delete(ctx, layer, tenantID, identifier)
}

// GetJSON decodes a value from either tier. An undecodable entry is evicted
// from both tiers and reported as a miss.
func (c *MultiLevelCache) GetJSON(ctx context.Context, layer Layer, tenantID, identifier string, dest interface{}) error {
	data, err := c.Get(ctx, layer, tenantID, identifier)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("Evicting corrupt cache entry", map[string]interface{}{
			"layer":  string(layer),
			"tenant": tenantID,
			"error":  err.Error(),
		})
		_ = c.Delete(ctx, layer, tenantID, identifier)
		return ErrCacheMiss
	}

	return nil
}

// SetJSON encodes and stores a value in both tiers.
func (c *MultiLevelCache) SetJSON(ctx context.Context, layer Layer, tenantID, identifier string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return ErrCacheInvalid
	}
	return c.Set(ctx, layer, tenantID, identifier, data)
}

// InvalidateTenantLayer invalidates the remote tier and drops matching local
// entries.
func (c *MultiLevelCache) InvalidateTenantLayer(ctx context.Context, layer Layer, tenantID string) (int, error) {
	prefix := c.localKey(layer, tenantID, "")
	for _, key := range c.local.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.local.Remove(key)
		}
	}

	return c.remote.InvalidateTenantLayer(ctx, layer, tenantID)
}

// Stats merges local tier hits into the remote tier's counters.
func (c *MultiLevelCache) Stats() Stats {
	stats := c.remote.Stats()
	stats.Hits += c.localHits.Load()
	stats.HitRate = hitRate(stats.Hits, stats.Misses)
	return stats
}

// Status reports the remote tier's status; the local tier cannot fail.
func (c *MultiLevelCache) Status(ctx context.Context) Status {
	return c.remote.Status(ctx)
}

// Close purges the local tier and closes the remote tier.
func (c *MultiLevelCache) Close() error {
	c.local.Purge()
	return c.remote.Close()
}
