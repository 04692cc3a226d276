package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/troikatech/voice-ivr/pkg/errors"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyTTL       = 24 * time.Hour
	idempotencyLockTTL   = 2 * time.Minute
)

type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored JSON response of a successful POST
// that carried the same Idempotency-Key. Used on /make-call so a retried
// batch does not dial everyone twice. A second request arriving while the
// first is still running gets 409.
func IdempotencyMiddleware(redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}

		cacheKey := "ivr:idempotency:" + hashIdempotencyKey(key)
		ctx := c.Request.Context()
		if val, err := redisClient.Get(ctx, cacheKey).Bytes(); err == nil && len(val) > 0 {
			c.Header("X-Idempotency-Key-Used", "true")
			c.Data(http.StatusOK, "application/json; charset=utf-8", val)
			c.Abort()
			return
		}

		lockKey := cacheKey + ":lock"
		acquired, err := redisClient.SetNX(ctx, lockKey, 1, idempotencyLockTTL).Result()
		if err == nil && !acquired {
			errors.Conflict(c, "a request with this Idempotency-Key is already in progress")
			return
		}
		if acquired {
			defer redisClient.Del(context.WithoutCancel(ctx), lockKey)
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		if rec.Status() == http.StatusOK && rec.buf.Len() > 0 {
			redisClient.Set(ctx, cacheKey, rec.buf.Bytes(), idempotencyTTL)
		}
	}
}

func hashIdempotencyKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
