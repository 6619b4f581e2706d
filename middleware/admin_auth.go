package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"support-chatbot-backend/logger"
)

const AdminKeyHeader = "X-Admin-Key"

// RequireAdminKey rejects requests whose X-Admin-Key header does not match key.
func RequireAdminKey(key string) gin.HandlerFunc {
	expected := []byte(key)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(AdminKeyHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
			logger.Warnf(c.Request.Context(), "Rejected admin request from %s", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid admin key"})
			return
		}
		c.Next()
	}
}
