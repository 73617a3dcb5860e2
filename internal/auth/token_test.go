// ABOUTME: Tests for unverified device token inspection.
// ABOUTME: Covers JWT claim extraction and opaque token handling.

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestInspect_JWTClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	iat := time.Now().Truncate(time.Second)
	token := signedToken(t, jwt.MapClaims{
		"sub": "device-42",
		"iat": iat.Unix(),
		"exp": exp.Unix(),
	})

	info, ok := Inspect(token)
	require.True(t, ok)
	assert.Equal(t, "device-42", info.Subject)
	assert.Equal(t, iat.Unix(), info.IssuedAt.Unix())
	assert.Equal(t, exp.Unix(), info.ExpiresAt.Unix())
	assert.False(t, info.Expired(time.Now()))
	assert.True(t, info.Expired(exp.Add(time.Second)))
}

func TestInspect_OpaqueToken(t *testing.T) {
	_, ok := Inspect("not-a-jwt")
	assert.False(t, ok)
}

func TestInspect_NoExpiryNeverExpires(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "device-1"})

	info, ok := Inspect(token)
	require.True(t, ok)
	assert.True(t, info.ExpiresAt.IsZero())
	assert.False(t, info.Expired(time.Now().Add(100*time.Hour)))
}
