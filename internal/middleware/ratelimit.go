package middleware

import (
	"net/http"
	"sync"

	"fleet-api/internal/config"
	"fleet-api/internal/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiters holds one token bucket per client, created on first request
var limiters sync.Map // client key -> *rate.Limiter

// RateLimitMiddleware applies a per-client token bucket. Device fleets burst
// on reconnect storms; the bucket absorbs the burst and smooths the rest.
func RateLimitMiddleware() gin.HandlerFunc {
	perSecond := rate.Limit(config.AppConfig.RateLimitPerSec)
	burst := config.AppConfig.RateLimitBurst
	if perSecond <= 0 {
		perSecond = 20
	}
	if burst <= 0 {
		burst = 40
	}

	return func(c *gin.Context) {
		key := c.ClientIP()
		entry, _ := limiters.LoadOrStore(key, rate.NewLimiter(perSecond, burst))
		limiter := entry.(*rate.Limiter)

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, response.Error(http.StatusTooManyRequests, "Rate limit exceeded, retry later"))
			c.Abort()
			return
		}

		c.Next()
	}
}
