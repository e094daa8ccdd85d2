package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateJWTRoundTrip(t *testing.T) {
	v := NewJWTValidator([]byte("test-secret"), "headhunter")

	token, err := v.GenerateToken("tenant-1", "user-1", time.Hour)
	require.NoError(t, err)

	claims, err := v.ValidateJWT("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestValidateJWTExpired(t *testing.T) {
	v := NewJWTValidator([]byte("test-secret"), "headhunter")

	token, err := v.GenerateToken("tenant-1", "user-1", -time.Minute)
	require.NoError(t, err)

	_, err = v.ValidateJWT("Bearer " + token)
	assert.Error(t, err)
}

func TestValidateJWTWrongSecret(t *testing.T) {
	minter := NewJWTValidator([]byte("other-secret"), "headhunter")
	v := NewJWTValidator([]byte("test-secret"), "headhunter")

	token, err := minter.GenerateToken("tenant-1", "user-1", time.Hour)
	require.NoError(t, err)

	_, err = v.ValidateJWT("Bearer " + token)
	assert.Error(t, err)
}

func TestValidateJWTMissingTenant(t *testing.T) {
	v := NewJWTValidator([]byte("test-secret"), "headhunter")

	token, err := v.GenerateToken("", "user-1", time.Hour)
	require.NoError(t, err)

	_, err = v.ValidateJWT("Bearer " + token)
	assert.ErrorContains(t, err, "tenant_id")
}

func TestValidateJWTBadHeader(t *testing.T) {
	v := NewJWTValidator([]byte("test-secret"), "headhunter")

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer a b"} {
		_, err := v.ValidateJWT(header)
		assert.Error(t, err, "header %q", header)
	}
}
