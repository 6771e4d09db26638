package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)

	assert.True(t, CheckPasswordHash("secret123", hash))
	assert.False(t, CheckPasswordHash("wrongpassword", hash))
}

func TestToken_RoundTrip(t *testing.T) {
	token, err := GenerateToken("test-secret-key-12345", time.Hour, time.Now())
	require.NoError(t, err)

	claims, err := ValidateToken(token, "test-secret-key-12345")
	require.NoError(t, err)
	assert.Equal(t, "workspace", claims["sub"])

	_, err = ValidateToken(token, "other-secret")
	assert.Error(t, err)
}

func TestToken_Expired(t *testing.T) {
	token, err := GenerateToken("k", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = ValidateToken(token, "k")
	assert.Error(t, err)
}

func TestToken_RejectsGarbage(t *testing.T) {
	_, err := ValidateToken("not.a.token", "k")
	assert.Error(t, err)
}
