package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/domushq/domus/internal/cache"
	"github.com/domushq/domus/pkg/errors"
	"github.com/domushq/domus/pkg/logger"
	"github.com/domushq/domus/pkg/response"
)

// RateLimitConfig describes a fixed-window limit per client IP and route.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Prefix   string
}

// RateLimit limits requests using the shared cache store. Store failures let
// the request through.
func RateLimit(store cache.Store, cfg RateLimitConfig) gin.HandlerFunc {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ratelimit"
	}

	return func(c *gin.Context) {
		if store == nil || cfg.Requests <= 0 || cfg.Window <= 0 {
			c.Next()
			return
		}

		key := prefix + ":" + c.ClientIP() + ":" + c.FullPath()
		count, ttl, err := store.IncrementWithTTL(c.Request.Context(), key, cfg.Window)
		if err != nil {
			logger.WithModule("ratelimit").Warn("rate limit store failed", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		remaining := cfg.Requests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		reset := int(ttl.Round(time.Second) / time.Second)
		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(reset))

		if int(count) > cfg.Requests {
			c.Header("Retry-After", strconv.Itoa(max(reset, 1)))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
