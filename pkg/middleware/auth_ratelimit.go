package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// AuthRateLimiter blocks a client IP for a while after too many login attempts.
type AuthRateLimiter struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
	block       time.Duration
}

func NewAuthRateLimiter(client *redis.Client, maxAttempts int, window, block time.Duration) *AuthRateLimiter {
	return &AuthRateLimiter{
		client:      client,
		maxAttempts: maxAttempts,
		window:      window,
		block:       block,
	}
}

func (arl *AuthRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		key := "ivr:auth_ratelimit:" + ip
		blockKey := "ivr:auth_blocked:" + ip
		ctx := c.Request.Context()

		if ttl, err := arl.client.TTL(ctx, blockKey).Result(); err == nil && ttl > 0 {
			arl.reject(c, int(ttl.Seconds()))
			return
		}

		count, err := arl.client.Incr(ctx, key).Result()
		if err != nil {
			// fail open
			c.Next()
			return
		}
		if count == 1 {
			arl.client.Expire(ctx, key, arl.window)
		}

		if count > int64(arl.maxAttempts) {
			arl.client.Set(ctx, blockKey, "1", arl.block)
			arl.reject(c, int(arl.block.Seconds()))
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(arl.maxAttempts))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(arl.maxAttempts-int(count)))
		c.Next()
	}
}

func (arl *AuthRateLimiter) reject(c *gin.Context, retryAfter int) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(arl.maxAttempts))
	c.Header("X-RateLimit-Remaining", "0")
	c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       "too many authentication attempts",
		"retry_after": retryAfter,
	})
}
