package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delimatsuo/headhunter-sub011/internal/auth"
	"github.com/delimatsuo/headhunter-sub011/internal/models"
	"github.com/delimatsuo/headhunter-sub011/internal/observability"
	"github.com/delimatsuo/headhunter-sub011/internal/store"
)

type fakeLookup struct {
	tenants map[string]models.TenantContext
	err     error
	calls   int
}

func (f *fakeLookup) GetTenant(_ context.Context, tenantID string) (*models.TenantContext, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	tenant, ok := f.tenants[tenantID]
	if !ok {
		return nil, store.ErrTenantNotFound
	}
	return &tenant, nil
}

func tenantRouter(t *testing.T, lookup *fakeLookup, allowHeader bool) (*gin.Engine, *auth.JWTValidator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	validator := auth.NewJWTValidator([]byte("test-secret"), "searchd-test")
	tm := NewTenantMiddleware(lookup, validator, allowHeader, observability.NewNoopLogger())

	r := gin.New()
	r.GET("/probe", tm.ExtractTenant(), func(c *gin.Context) {
		tenant, ok := GetTenant(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"tenant_id": tenant.ID})
	})
	return r, validator
}

func TestExtractTenantValidToken(t *testing.T) {
	lookup := &fakeLookup{tenants: map[string]models.TenantContext{
		"tenant-a": {ID: "tenant-a", Name: "Tenant A", Active: true},
	}}
	r, validator := tenantRouter(t, lookup, false)

	token, err := validator.GenerateToken("tenant-a", "user-1", time.Minute)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tenant-a")
}

func TestExtractTenantMissingHeader(t *testing.T) {
	r, _ := tenantRouter(t, &fakeLookup{}, false)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), models.CodeUnauthorized)
}

func TestExtractTenantInvalidToken(t *testing.T) {
	r, _ := tenantRouter(t, &fakeLookup{}, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExtractTenantUnknown(t *testing.T) {
	lookup := &fakeLookup{tenants: map[string]models.TenantContext{}}
	r, validator := tenantRouter(t, lookup, false)

	token, err := validator.GenerateToken("ghost", "user-1", time.Minute)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), models.CodeNotFound)
}

func TestExtractTenantInactive(t *testing.T) {
	lookup := &fakeLookup{tenants: map[string]models.TenantContext{
		"tenant-b": {ID: "tenant-b", Active: false},
	}}
	r, validator := tenantRouter(t, lookup, false)

	token, err := validator.GenerateToken("tenant-b", "user-1", time.Minute)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), models.CodeForbidden)
}

func TestExtractTenantLookupError(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("connection refused")}
	r, validator := tenantRouter(t, lookup, false)

	token, err := validator.GenerateToken("tenant-a", "user-1", time.Minute)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestExtractTenantHeaderMode(t *testing.T) {
	lookup := &fakeLookup{tenants: map[string]models.TenantContext{
		"tenant-a": {ID: "tenant-a", Active: true},
	}}
	r, _ := tenantRouter(t, lookup, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Tenant-ID", "tenant-a")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExtractTenantHeaderModeDisabled(t *testing.T) {
	r, _ := tenantRouter(t, &fakeLookup{}, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Tenant-ID", "tenant-a")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExtractTenantMemoized(t *testing.T) {
	lookup := &fakeLookup{tenants: map[string]models.TenantContext{
		"tenant-a": {ID: "tenant-a", Active: true},
	}}
	r, validator := tenantRouter(t, lookup, false)

	token, err := validator.GenerateToken("tenant-a", "user-1", time.Minute)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 1, lookup.calls)
}
