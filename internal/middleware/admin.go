package middleware

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AdminMiddleware provides admin authentication middleware. Only a bcrypt
// hash of the API key is kept in memory.
type AdminMiddleware struct {
	apiKeyHash []byte
}

// NewAdminMiddleware creates a new admin authentication middleware. An empty
// hash falls back to the ADMIN_API_KEY_HASH environment variable.
func NewAdminMiddleware(apiKeyHash string) *AdminMiddleware {
	if apiKeyHash == "" {
		apiKeyHash = os.Getenv("ADMIN_API_KEY_HASH")
	}
	return &AdminMiddleware{
		apiKeyHash: []byte(apiKeyHash),
	}
}

// RequireAdminAuth middleware validates admin API keys.
func (am *AdminMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for API key in Authorization header (Bearer token)
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) == 2 && tokenParts[0] == "Bearer" {
				if am.ValidateAdminKey(tokenParts[1]) {
					c.Next()
					return
				}
			}
		}

		// Check for API key in X-API-Key header
		if am.ValidateAdminKey(c.GetHeader("X-API-Key")) {
			c.Next()
			return
		}

		// No valid API key found
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Unauthorized",
			"message": "Valid admin API key required for this endpoint",
		})
		c.Abort()
	}
}

// ValidateAdminKey validates an admin API key against the stored hash.
func (am *AdminMiddleware) ValidateAdminKey(key string) bool {
	if key == "" || len(am.apiKeyHash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(am.apiKeyHash, []byte(key)) == nil
}
