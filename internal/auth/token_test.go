package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/repository"
)

func TestIssueAndValidate(t *testing.T) {
	ctx := context.Background()
	users := repository.NewMockUserRepository(&models.User{ID: "u1", Email: "a@example.com"})
	s := NewService([]byte("secret"), users)

	token, err := s.IssueToken(&models.User{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	u, err := s.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.False(t, u.IsAdmin())

	// claims are read from the directory, not the token
	require.NoError(t, users.SetCustomClaims(ctx, "u1", models.Claims{"admin": true}))
	u, err = s.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, u.IsAdmin())
}

func TestValidateRejects(t *testing.T) {
	ctx := context.Background()
	users := repository.NewMockUserRepository(&models.User{ID: "u1"})
	s := NewService([]byte("secret"), users)

	expired := NewService([]byte("secret"), users)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.IssueToken(&models.User{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	other, err := NewService([]byte("other"), users).IssueToken(&models.User{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	ghost, err := s.IssueToken(&models.User{ID: "ghost"}, time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":   old,
		"wrong key": other,
		"alg none":  none,
		"garbage":   "not-a-token",
	} {
		_, err := s.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}

	_, err = s.ValidateToken(ctx, ghost)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	_, err = NewService(nil, users).ValidateToken(ctx, old)
	assert.ErrorIs(t, err, ErrNoSecret)
}
