package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/voice-ivr/pkg/errors"
)

// RateLimiter is a fixed one-minute window per admin user or client IP.
type RateLimiter struct {
	client      *redis.Client
	maxRequests int
	window      time.Duration
	logger      *zap.Logger
}

func NewRateLimiter(client *redis.Client, maxRequestsPerMinute int, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		client:      client,
		maxRequests: maxRequestsPerMinute,
		window:      time.Minute,
		logger:      logger,
	}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.GetString("admin_user")
		if subject == "" {
			subject = c.ClientIP()
		}
		key := fmt.Sprintf("ivr:ratelimit:%s", subject)
		ctx := c.Request.Context()

		count, err := rl.client.Incr(ctx, key).Result()
		if err != nil {
			rl.logger.Warn("Rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			rl.client.Expire(ctx, key, rl.window)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.maxRequests))
		if count > int64(rl.maxRequests) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			errors.TooManyRequests(c, "rate limit exceeded")
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(rl.maxRequests-int(count)))
		c.Next()
	}
}
