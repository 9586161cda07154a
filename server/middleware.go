package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"estate-chat/auth"
	"estate-chat/errors"
)

// ctxUserKey is where the authenticated user id lands in the gin
// context. Handlers read it back through currentUser.
const ctxUserKey = "userID"

// BearerAuth extracts and verifies the bearer token on every request,
// including the websocket upgrade. Token issuance lives elsewhere;
// this backend only checks signatures.
func BearerAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		token := ""
		if strings.HasPrefix(strings.ToLower(header), "bearer ") {
			token = strings.TrimSpace(header[len("bearer "):])
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errors.ErrUnauthorized.Error()})
			return
		}

		claims, err := auth.ValidateToken(token, secret)
		if err != nil || claims.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errors.ErrUnauthorized.Error()})
			return
		}

		c.Set(ctxUserKey, claims.UserID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(ctxUserKey)
}
