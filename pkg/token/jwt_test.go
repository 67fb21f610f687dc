package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", 1, 7)

	tok, err := m.GenerateToken(42, "alice", "student")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "student", claims.Role)
	assert.Equal(t, KindAccess, claims.Kind)
	assert.NotEmpty(t, claims.ID)
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	m := NewJWTManager("test-secret", 1, 7)

	refresh, err := m.GenerateRefreshToken(1, "bob", "counselor")
	require.NoError(t, err)

	_, err = m.VerifyToken(refresh)
	assert.ErrorIs(t, err, ErrWrongKind)

	claims, err := m.VerifyRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Username)
}

func TestExpiredTokenRejected(t *testing.T) {
	m := NewJWTManager("test-secret", 1, 7)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issued }

	tok, err := m.GenerateToken(1, "carol", "admin")
	require.NoError(t, err)

	m.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = m.VerifyToken(tok)
	assert.Error(t, err)
}

func TestWrongSecretRejected(t *testing.T) {
	tok, err := NewJWTManager("one", 1, 7).GenerateToken(1, "dave", "student")
	require.NoError(t, err)

	_, err = NewJWTManager("two", 1, 7).VerifyToken(tok)
	assert.Error(t, err)
}
