package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/delimatsuo/headhunter-sub011/internal/models"
	"github.com/delimatsuo/headhunter-sub011/internal/observability"
	"github.com/delimatsuo/headhunter-sub011/internal/resilience"
)

func rateLimitRouter(config resilience.RateLimiterConfig, tenantID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	limiter := resilience.NewRateLimiter(config, observability.NewNoopLogger())

	r := gin.New()
	if tenantID != "" {
		r.Use(func(c *gin.Context) {
			c.Set(tenantKey, models.TenantContext{ID: tenantID, Active: true})
		})
	}
	r.Use(RateLimit(limiter, nil))
	r.GET("/probe", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRateLimitPerTenantBurst(t *testing.T) {
	r := rateLimitRouter(resilience.RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 1000,
		BurstSize:         1000,
		PerTenantRPS:      1,
		PerTenantBurst:    2,
	}, "tenant-a")

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimitGlobalWithoutTenant(t *testing.T) {
	r := rateLimitRouter(resilience.RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		BurstSize:         1,
		PerTenantRPS:      1000,
		PerTenantBurst:    1000,
	}, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), models.CodeRateLimited)
}

func TestRateLimitDisabled(t *testing.T) {
	r := rateLimitRouter(resilience.RateLimiterConfig{Enabled: false}, "tenant-a")

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/probe", func(c *gin.Context) {
		assert.NotEmpty(t, GetRequestID(c))
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDPropagated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/probe", func(c *gin.Context) {
		assert.Equal(t, "req-123", GetRequestID(c))
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Request-ID", "req-123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}
