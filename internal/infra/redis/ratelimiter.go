package redis

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/institutovalente/registry-bridge/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultMaxRequests = 5
	defaultWindow      = time.Minute
)

// allowScript implements an atomic sliding-window check: prune entries older
// than the window, reject if the budget is spent, otherwise record the call.
var allowScript = goredis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, ARGV[1])
local count = redis.call("ZCARD", KEYS[1])
if count >= tonumber(ARGV[2]) then
  return 0
end
redis.call("ZADD", KEYS[1], ARGV[3], ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return 1
`)

var _ ratelimit.Limiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a distributed per-user sliding-window limiter backed by
// Redis.
type RedisRateLimiter struct {
	client      *goredis.Client
	maxRequests int64
	window      time.Duration
	now         func() time.Time
	script      *goredis.Script
	seq         atomic.Int64
}

func NewRedisRateLimiter(client *goredis.Client, maxRequests int, window time.Duration) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(maxRequests), window, time.Now)
}

func newRedisRateLimiter(
	client *goredis.Client,
	maxRequests int64,
	window time.Duration,
	nowFn func() time.Time,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if maxRequests <= 0 {
		maxRequests = defaultMaxRequests
	}
	if window <= 0 {
		window = defaultWindow
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	return &RedisRateLimiter{
		client:      client,
		maxRequests: maxRequests,
		window:      window,
		now:         nowFn,
		script:      allowScript,
	}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	normalizedUser := strings.TrimSpace(userID)
	if normalizedUser == "" {
		return false, fmt.Errorf("user id is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	nowMillis := r.now().UTC().UnixMilli()
	windowMillis := r.window.Milliseconds()
	key := fmt.Sprintf("ratelimit:user:%s", normalizedUser)
	member := fmt.Sprintf("%d-%d", nowMillis, r.seq.Add(1))

	result, err := r.script.Run(ctx, r.client,
		[]string{key},
		nowMillis-windowMillis,
		r.maxRequests,
		nowMillis,
		member,
		windowMillis,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}
