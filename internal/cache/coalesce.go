package cache

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Flight deduplicates concurrent cache fills per process. There is no
// distributed lock; duplicate work across instances is accepted as bounded
// overhead.
type Flight struct {
	group singleflight.Group
}

// NewFlight creates an empty coalescer.
func NewFlight() *Flight {
	return &Flight{}
}

// GetOrCompute returns the cached value for (layer, tenantID, identifier) or
// runs compute to produce it, writing the result back. Concurrent callers
// for the same key share a single compute. The second return value reports
// whether the value came from the cache.
func GetOrCompute[T any](ctx context.Context, c Cache, flight *Flight, layer Layer, tenantID, identifier string, compute func(context.Context) (T, error)) (T, bool, error) {
	var cached T
	if err := c.GetJSON(ctx, layer, tenantID, identifier, &cached); err == nil {
		return cached, true, nil
	}

	key := buildKey("flight", layer, tenantID, identifier)
	val, err, _ := flight.group.Do(key, func() (interface{}, error) {
		// A caller that lost the race may find the winner's write.
		var again T
		if err := c.GetJSON(ctx, layer, tenantID, identifier, &again); err == nil {
			return again, nil
		}

		computed, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		_ = c.SetJSON(ctx, layer, tenantID, identifier, computed)
		return computed, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}

	return val.(T), false, nil
}
