package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quoterlabs/polyquoter/internal/domain"
)

// slidingWindowLua counts calls in a sorted set keyed by microsecond
// timestamp. It removes entries older than the window, admits the call if
// the remaining count is under the limit, and returns {allowed, count}
// atomically.
const slidingWindowLua = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, now)
    redis.call('PEXPIRE', key, math.ceil(window / 1000))
    return {1, count + 1}
end
return {0, count}
`

// RateLimiter implements domain.RateLimiter using a sliding-window approach
// backed by Redis sorted sets and an atomic Lua script. It throttles the
// agent's exchange API calls across restarts and replicas.
type RateLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
}

// NewRateLimiter creates a RateLimiter on the given connection.
func NewRateLimiter(rdb *redis.Client) *RateLimiter {
	return &RateLimiter{
		rdb:           rdb,
		slidingWindow: redis.NewScript(slidingWindowLua),
	}
}

func rateLimitKey(bucket string) string {
	return "polyquoter:ratelimit:" + bucket
}

// Allow checks whether a call in the given bucket is permitted under the
// sliding window of `limit` calls per `windowSeconds`. An allowed call is
// counted.
func (rl *RateLimiter) Allow(ctx context.Context, bucket string, limit, windowSeconds int) (bool, error) {
	now := time.Now().UnixMicro()
	windowMicro := int64(windowSeconds) * int64(time.Second/time.Microsecond)

	result, err := rl.slidingWindow.Run(
		ctx,
		rl.rdb,
		[]string{rateLimitKey(bucket)},
		now,
		windowMicro,
		limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", bucket, err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", bucket, len(result))
	}
	return result[0] == 1, nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
