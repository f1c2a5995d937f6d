package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *TokenManager {
	return NewTokenManager("test-secret", "tasklane", "tasklane-api", time.Hour)
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := newTestManager()

	token, err := tm.Issue(42, RoleMember)
	require.NoError(t, err)

	ac, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), ac.UserID)
	assert.Equal(t, RoleMember, ac.Role)
}

func TestTokenManager_Issue_InvalidUser(t *testing.T) {
	_, err := newTestManager().Issue(0, RoleMember)
	assert.Error(t, err)
}

func TestTokenManager_ValidateToken_Rejects(t *testing.T) {
	tm := newTestManager()

	t.Run("garbage", func(t *testing.T) {
		_, err := tm.ValidateToken("not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenManager("other-secret", "tasklane", "tasklane-api", time.Hour)
		token, err := other.Issue(1, RoleAdmin)
		require.NoError(t, err)
		_, err = tm.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other := NewTokenManager("test-secret", "tasklane", "someone-else", time.Hour)
		token, err := other.Issue(1, RoleAdmin)
		require.NoError(t, err)
		_, err = tm.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		past := newTestManager()
		past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, err := past.Issue(1, RoleMember)
		require.NoError(t, err)
		_, err = tm.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		claims := &Claims{UserID: 1, RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   "tasklane",
			Audience: jwt.ClaimStrings{"tasklane-api"},
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = tm.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestAuthContext_RoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))

	ctx = WithAuthContext(ctx, &AuthContext{UserID: 7, Role: RoleAdmin})
	ac := FromContext(ctx)
	require.NotNil(t, ac)
	assert.Equal(t, int64(7), ac.UserID)
	assert.True(t, ac.IsRole(RoleAdmin))
	assert.False(t, ac.IsRole(RoleMember))

	var nilCtx *AuthContext
	assert.False(t, nilCtx.IsRole(RoleAdmin))
}
