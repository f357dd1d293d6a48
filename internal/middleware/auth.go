package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"subly-reconciler/internal/config"
	"subly-reconciler/internal/response"
)

// OpsAuthMiddleware protects the ops endpoints with the shared API key from
// OPS_API_KEY. The key may be passed via the X-API-Key header or the api_key
// query parameter.
func OpsAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		configured := config.AppConfig.OpsAPIKey
		if configured == "" {
			c.JSON(http.StatusServiceUnavailable, response.Error(http.StatusServiceUnavailable, "Ops API key not configured"))
			c.Abort()
			return
		}

		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}
		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing api_key"))
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(configured)) != 1 {
			c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid api_key"))
			c.Abort()
			return
		}

		c.Set("request_time", time.Now())
		c.Next()
	}
}
