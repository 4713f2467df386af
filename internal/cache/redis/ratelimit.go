package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// RateLimiter counts calls in a sorted set per key, scored by microsecond
// timestamp. Trimming, counting and recording happen in one script call.
type RateLimiter struct {
	rdb    redis.UniversalClient
	script *redis.Script
	now    func() time.Time
}

func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.rdb, script: redis.NewScript(slidingWindowLua), now: time.Now}
}

func rateLimitKey(key string) string {
	return keyPrefix + "ratelimit:" + key
}

// Allow records the call and reports true when fewer than limit calls landed
// in the trailing window. Rejected calls are not recorded.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := []any{rl.now().UnixMicro(), window.Microseconds(), limit, uuid.NewString()}
	res, err := rl.script.Run(ctx, rl.rdb, []string{rateLimitKey(key)}, args...).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) == 0 {
		return false, fmt.Errorf("redis: rate limit %s: empty script reply", key)
	}
	return res[0] == 1, nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
