package cache

import "context"

// NoopCache is the disabled cache: every read misses, every write succeeds
// without effect. It keeps callers free of enabled/disabled branching.
type NoopCache struct{}

// NewNoopCache creates a cache that stores nothing.
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (n *NoopCache) Get(ctx context.Context, layer Layer, tenantID, identifier string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (n *NoopCache) Set(ctx context.Context, layer Layer, tenantID, identifier string, value []byte) error {
	return nil
}

func (n *NoopCache) Delete(ctx context.Context, layer Layer, tenantID, identifier string) error {
	return nil
}

func (n *NoopCache) GetJSON(ctx context.Context, layer Layer, tenantID, identifier string, dest interface{}) error {
	return ErrCacheMiss
}

func (n *NoopCache) SetJSON(ctx context.Context, layer Layer, tenantID, identifier string, value interface{}) error {
	return nil
}

func (n *NoopCache) InvalidateTenantLayer(ctx context.Context, layer Layer, tenantID string) (int, error) {
	return 0, nil
}

func (n *NoopCache) Stats() Stats { return Stats{} }

func (n *NoopCache) Status(ctx context.Context) Status { return StatusDisabled }

func (n *NoopCache) Close() error { return nil }
