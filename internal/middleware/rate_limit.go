package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/linguaschool/chat-backend/internal/common"
	"github.com/linguaschool/chat-backend/internal/metrics"
	"github.com/linguaschool/chat-backend/pkg/logger"
)

const (
	throttleKeyPrefix = "chat:throttle:"
	throttleWindow    = time.Minute
)

// throttleScript is an atomic sliding-window counter.
// Returns {allowed, remaining, reset_at_ms}.
var throttleScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local window_start = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, now .. ':' .. math.random(1000000))
    redis.call('PEXPIRE', key, window + 1000)
    return {1, limit - count - 1, 0}
else
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local reset_at = 0
    if #oldest >= 2 then
        reset_at = tonumber(oldest[2]) + window
    end
    return {0, 0, reset_at}
end
`)

// RequestThrottle caps API requests per caller across every instance sharing redisClient.
// Keyed by user id, falling back to client IP. Redis failures let the request through.
// A nil client or a non-positive limit disables it.
func RequestThrottle(redisClient *redis.Client, requestsPerMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil || requestsPerMinute <= 0 {
			c.Next()
			return
		}

		key := throttleKey(c)
		now := time.Now().UnixMilli()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 200*time.Millisecond)
		defer cancel()

		result, err := throttleScript.Run(ctx, redisClient, []string{key},
			requestsPerMinute, throttleWindow.Milliseconds(), now,
		).Int64Slice()
		if err != nil || len(result) != 3 {
			log := logger.WithRequestID(c.GetString("request_id"))
			log.Debug().Err(err).Str("key", key).Msg("request throttle unavailable")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(requestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result[1], 10))

		if result[0] != 1 {
			metrics.RateLimited.Inc()
			common.Fail(c, &common.RateLimitError{RetryAfter: retryAfter(result[2], now)})
			return
		}
		c.Next()
	}
}

func throttleKey(c *gin.Context) string {
	if userID := GetUserID(c); userID != 0 {
		return throttleKeyPrefix + "user:" + strconv.FormatUint(userID, 10)
	}
	return throttleKeyPrefix + "ip:" + c.ClientIP()
}

// retryAfter converts the window reset timestamp into a wait, never less than a second
func retryAfter(resetAtMs, nowMs int64) time.Duration {
	wait := time.Duration(resetAtMs-nowMs) * time.Millisecond
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}
