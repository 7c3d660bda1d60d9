package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func TestTokenExpiry(t *testing.T) {
	now := time.Now()
	exp := now.Add(time.Hour).Truncate(time.Second)

	got, ok := TokenExpiry(signed(t, jwt.MapClaims{"sub": "u1", "exp": exp.Unix()}))
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = TokenExpiry(signed(t, jwt.MapClaims{"sub": "u1"}))
	assert.False(t, ok, "token without exp")

	_, ok = TokenExpiry("opaque-token")
	assert.False(t, ok, "non-JWT token")
}

func TestExpired(t *testing.T) {
	now := time.Now()
	assert.True(t, Expired(signed(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()}), now))
	assert.False(t, Expired(signed(t, jwt.MapClaims{"exp": now.Add(time.Minute).Unix()}), now))
	assert.False(t, Expired("opaque-token", now))
}
