package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_ValidateToken(t *testing.T) {
	service := NewJWTService("test-secret", "loom-backend", time.Hour)

	t.Run("round trip", func(t *testing.T) {
		token, err := service.GenerateToken("user-1", "u@example.com", "Pat")
		require.NoError(t, err)

		claims, err := service.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, "u@example.com", claims.Email)
		assert.Equal(t, "Pat", claims.Name)
	})

	t.Run("bearer prefix is tolerated", func(t *testing.T) {
		token, err := service.GenerateToken("user-1", "u@example.com", "")
		require.NoError(t, err)

		_, err = service.ValidateToken("Bearer " + token)
		assert.NoError(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		expired := NewJWTService("test-secret", "loom-backend", -time.Minute)
		token, err := expired.GenerateToken("user-1", "u@example.com", "")
		require.NoError(t, err)

		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService("other-secret", "loom-backend", time.Hour)
		token, err := other.GenerateToken("user-1", "u@example.com", "")
		require.NoError(t, err)

		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTService("test-secret", "someone-else", time.Hour)
		token, err := other.GenerateToken("user-1", "u@example.com", "")
		require.NoError(t, err)

		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidClaims)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := service.ValidateToken("  ")
		assert.ErrorIs(t, err, ErrMissingToken)
	})
}

func TestUserContext(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		ctx := SetUserInContext(context.Background(), &UserContext{UserID: "user-1"})
		user, err := GetUserFromContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, "user-1", user.UserID)
	})

	t.Run("absent user", func(t *testing.T) {
		_, err := GetUserFromContext(context.Background())
		assert.Error(t, err)
	})
}
