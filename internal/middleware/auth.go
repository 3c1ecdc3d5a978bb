package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/dmstream/internal/auth"
)

// Context keys for storing claims in gin.Context.
const (
	ContextKeyUserID   = "user_id"
	ContextKeyIdentity = "identity"
	ContextKeyUsername = "username"
)

// LegacyTokenHeader is accepted alongside "Authorization: Bearer" for older
// web clients.
const LegacyTokenHeader = "x-auth-token"

// AuthMiddleware returns a Gin middleware that validates session tokens and
// stores the claims on the context. Invalid or missing tokens abort with 401.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := extractToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		claims, err := auth.ParseToken(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyIdentity, claims.Identity)
		c.Set(ContextKeyUsername, claims.Username)

		c.Next()
	}
}

func extractToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if tok := c.GetHeader(LegacyTokenHeader); tok != "" {
		return tok, true
	}
	return "", false
}

func GetUserID(c *gin.Context) uuid.UUID {
	val, exists := c.Get(ContextKeyUserID)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

func GetIdentity(c *gin.Context) string {
	return c.GetString(ContextKeyIdentity)
}

func GetUsername(c *gin.Context) string {
	return c.GetString(ContextKeyUsername)
}
