package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/delimatsuo/headhunter-sub011/internal/auth"
	"github.com/delimatsuo/headhunter-sub011/internal/models"
	"github.com/delimatsuo/headhunter-sub011/internal/observability"
	"github.com/delimatsuo/headhunter-sub011/internal/store"
)

const tenantKey = "tenant_context"

// TenantLookup resolves a tenant ID to its context.
type TenantLookup interface {
	GetTenant(ctx context.Context, tenantID string) (*models.TenantContext, error)
}

// TenantMiddleware extracts and validates the tenant for every request.
// Lookups are memoized for a minute so the hot path stays off the database.
type TenantMiddleware struct {
	lookup    TenantLookup
	validator *auth.JWTValidator
	logger    observability.Logger

	// AllowHeaderTenant accepts X-Tenant-ID instead of a JWT. Development
	// only; never enable in production.
	allowHeaderTenant bool

	memo *expirable.LRU[string, models.TenantContext]
}

// NewTenantMiddleware creates the tenant extraction middleware.
func NewTenantMiddleware(lookup TenantLookup, validator *auth.JWTValidator, allowHeaderTenant bool, logger observability.Logger) *TenantMiddleware {
	return &TenantMiddleware{
		lookup:            lookup,
		validator:         validator,
		logger:            logger.WithPrefix("tenant"),
		allowHeaderTenant: allowHeaderTenant,
		memo:              expirable.NewLRU[string, models.TenantContext](1024, nil, time.Minute),
	}
}

// ExtractTenant validates the bearer token, resolves the tenant, and attaches
// it to the request context. Unknown tenants are not_found, inactive tenants
// forbidden, bad tokens unauthorized.
func (tm *TenantMiddleware) ExtractTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ok := tm.tenantID(c)
		if !ok {
			return
		}

		tenant, err := tm.resolve(c.Request.Context(), tenantID)
		if err != nil {
			if errors.Is(err, store.ErrTenantNotFound) {
				abortWithCode(c, models.CodeNotFound, "unknown tenant")
				return
			}
			tm.logger.Error("Tenant lookup failed", map[string]interface{}{
				"tenant_id": tenantID,
				"error":     err.Error(),
			})
			abortWithCode(c, models.CodeInternal, "tenant lookup failed")
			return
		}
		if !tenant.Active {
			abortWithCode(c, models.CodeForbidden, "tenant is inactive")
			return
		}

		c.Set(tenantKey, *tenant)
		c.Next()
	}
}

// tenantID extracts the tenant ID from the JWT, or from the X-Tenant-ID
// header when header auth is allowed. Aborts the request on failure.
func (tm *TenantMiddleware) tenantID(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if tm.allowHeaderTenant {
			if id := c.GetHeader("X-Tenant-ID"); id != "" {
				return id, true
			}
		}
		abortWithCode(c, models.CodeUnauthorized, "missing authorization header")
		return "", false
	}

	claims, err := tm.validator.ValidateJWT(authHeader)
	if err != nil {
		abortWithCode(c, models.CodeUnauthorized, "invalid token")
		return "", false
	}
	return claims.TenantID, true
}

// resolve memoizes tenant lookups. Both active and inactive tenants are
// cached; deactivation takes effect within the memo TTL.
func (tm *TenantMiddleware) resolve(ctx context.Context, tenantID string) (*models.TenantContext, error) {
	if tenant, ok := tm.memo.Get(tenantID); ok {
		return &tenant, nil
	}
	tenant, err := tm.lookup.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	tm.memo.Add(tenantID, *tenant)
	return tenant, nil
}

// GetTenant returns the request's tenant context. The second return is false
// when ExtractTenant did not run.
func GetTenant(c *gin.Context) (models.TenantContext, bool) {
	v, ok := c.Get(tenantKey)
	if !ok {
		return models.TenantContext{}, false
	}
	tenant, ok := v.(models.TenantContext)
	return tenant, ok
}

func abortWithCode(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(models.HTTPStatus(code), models.ErrorEnvelope{
		Code:    code,
		Message: message,
	})
}
