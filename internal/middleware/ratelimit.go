package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/delimatsuo/headhunter-sub011/internal/metrics"
	"github.com/delimatsuo/headhunter-sub011/internal/models"
	"github.com/delimatsuo/headhunter-sub011/internal/resilience"
)

// RateLimit admits requests against a global and per-tenant token bucket.
// Must run after ExtractTenant; requests without a tenant fall back to the
// global limit only.
func RateLimit(limiter *resilience.RateLimiter, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var allowed bool
		if tenant, ok := GetTenant(c); ok {
			allowed = limiter.AllowTenant(tenant.ID)
		} else {
			allowed = limiter.Allow()
		}
		if !allowed {
			if m != nil {
				m.RateLimitHits.Inc()
			}
			c.AbortWithStatusJSON(models.HTTPStatus(models.CodeRateLimited), models.ErrorEnvelope{
				Code:    models.CodeRateLimited,
				Message: "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
