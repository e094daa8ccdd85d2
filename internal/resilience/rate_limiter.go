package resilience

import (
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/delimatsuo/headhunter-sub011/internal/observability"
)

// ErrRateLimitExceeded is returned when rate limit is exceeded
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateLimiterConfig configures request admission.
type RateLimiterConfig struct {
	// Enabled toggles limiting; when false every request is admitted.
	Enabled bool

	// RequestsPerSecond is the sustained request rate across all tenants.
	RequestsPerSecond float64

	// BurstSize is the maximum burst size for the global limiter.
	BurstSize int

	// PerTenantRPS is the sustained request rate per tenant.
	PerTenantRPS float64

	// PerTenantBurst is the maximum burst size per tenant.
	PerTenantBurst int
}

// DefaultRateLimiterConfig returns sensible defaults
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 50,
		BurstSize:         100,
		PerTenantRPS:      10,
		PerTenantBurst:    20,
	}
}

// RateLimiter admits requests against a global limit and a per-tenant limit.
// Tenant limiters are created on first use and kept for the process
// lifetime; tenant counts are small enough that eviction is not needed.
type RateLimiter struct {
	config         RateLimiterConfig
	globalLimiter  *rate.Limiter
	tenantLimiters map[string]*rate.Limiter
	logger         observability.Logger

	mu sync.RWMutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimiterConfig, logger observability.Logger) *RateLimiter {
	return &RateLimiter{
		config:         config,
		globalLimiter:  rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.BurstSize),
		tenantLimiters: make(map[string]*rate.Limiter),
		logger:         logger.WithPrefix("rate-limiter"),
	}
}

// Allow checks the global limit only.
func (rl *RateLimiter) Allow() bool {
	if !rl.config.Enabled {
		return true
	}
	return rl.globalLimiter.Allow()
}

// AllowTenant checks the global limit and the tenant's limit.
func (rl *RateLimiter) AllowTenant(tenantID string) bool {
	if !rl.config.Enabled {
		return true
	}

	if !rl.globalLimiter.Allow() {
		rl.logger.Debug("Global rate limit exceeded", map[string]interface{}{
			"tenant_id": tenantID,
		})
		return false
	}

	if !rl.tenantLimiter(tenantID).Allow() {
		rl.logger.Debug("Tenant rate limit exceeded", map[string]interface{}{
			"tenant_id": tenantID,
		})
		return false
	}

	return true
}

// tenantLimiter returns the limiter for a tenant, creating it on first use.
func (rl *RateLimiter) tenantLimiter(tenantID string) *rate.Limiter {
	rl.mu.RLock()
	limiter, ok := rl.tenantLimiters[tenantID]
	rl.mu.RUnlock()
	if ok {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Check again in case it was created while we were waiting for the lock
	if limiter, ok := rl.tenantLimiters[tenantID]; ok {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(rl.config.PerTenantRPS), rl.config.PerTenantBurst)
	rl.tenantLimiters[tenantID] = limiter
	return limiter
}
