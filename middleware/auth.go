package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"claude-relay/common/config"
)

// GatewayAuth verifies the client-facing API key. Keys are accepted from
// either the Anthropic-style x-api-key header or a bearer Authorization
// header. An empty key list disables the check for local deployments.
func GatewayAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(config.GatewayAPIKeys) == 0 {
			c.Next()
			return
		}
		key := c.GetHeader("x-api-key")
		if key == "" {
			key = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		for _, allowed := range config.GatewayAPIKeys {
			if key != "" && key == allowed {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusUnauthorized, gin.H{
			"type": "error",
			"error": gin.H{
				"message": "invalid or missing api key",
				"type":    "authentication_error",
			},
		})
		c.Abort()
	}
}

// AdminAuth guards management endpoints. It reuses the gateway key list; a
// deployment that disables gateway auth also runs its admin API open, which
// only makes sense behind a trusted network boundary.
func AdminAuth() gin.HandlerFunc {
	return GatewayAuth()
}
