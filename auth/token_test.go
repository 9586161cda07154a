package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateToken(t *testing.T) {
	secret := []byte("test-secret")

	t.Run("should round-trip the user id", func(t *testing.T) {
		req := require.New(t)
		token, err := GenerateToken("alice", secret, time.Hour)
		req.NoError(err)

		claims, err := ValidateToken(token, secret)
		req.NoError(err)
		req.Equal("alice", claims.UserID)
		req.Equal("estate-chat", claims.Issuer)
	})

	t.Run("should reject a token signed with another secret", func(t *testing.T) {
		req := require.New(t)
		token, err := GenerateToken("alice", []byte("other-secret"), time.Hour)
		req.NoError(err)

		_, err = ValidateToken(token, secret)
		req.Error(err)
	})

	t.Run("should reject an expired token", func(t *testing.T) {
		req := require.New(t)
		token, err := GenerateToken("alice", secret, -time.Minute)
		req.NoError(err)

		_, err = ValidateToken(token, secret)
		req.Error(err)
	})

	t.Run("should reject garbage", func(t *testing.T) {
		req := require.New(t)
		_, err := ValidateToken("not.a.token", secret)
		req.Error(err)
	})
}
