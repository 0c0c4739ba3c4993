package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"fleet-api/internal/config"
	"fleet-api/internal/response"

	"github.com/gin-gonic/gin"
)

// ServiceAuthMiddleware authenticates collaborator services (registration,
// billing, dashboard) with the shared API key
func ServiceAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get API key from header
		apiKey := c.GetHeader("X-API-Key")

		// If not passed via header, try to get from query parameters
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing api_key"))
			c.Abort()
			return
		}

		expected := config.AppConfig.ServiceAPIKey
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expected)) != 1 {
			c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid api_key"))
			c.Abort()
			return
		}

		c.Set("request_time", time.Now())
		c.Next()
	}
}
