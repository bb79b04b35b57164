package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifierRoundTrip(t *testing.T) {
	v, err := NewJWTVerifier("s3cret", "z-journal", "voice")
	require.NoError(t, err)

	token, err := v.Issue("user-42", time.Minute)
	require.NoError(t, err)

	userID, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestJWTVerifierRejects(t *testing.T) {
	v, err := NewJWTVerifier("s3cret", "", "")
	require.NoError(t, err)
	other, err := NewJWTVerifier("different", "", "")
	require.NoError(t, err)

	expired, err := v.Issue("u", -time.Hour)
	require.NoError(t, err)
	foreign, err := other.Issue("u", time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)
	for _, token := range []string{"not-a-jwt", expired, foreign} {
		_, err = v.Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=abc", nil)
	token, ok := TokenFromRequest(r)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer xyz")
	token, ok = TokenFromRequest(r)
	assert.True(t, ok)
	assert.Equal(t, "xyz", token)

	r = httptest.NewRequest("GET", "/ws", nil)
	_, ok = TokenFromRequest(r)
	assert.False(t, ok)
}
