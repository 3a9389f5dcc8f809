package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"webdir/internal/ratelimit/models"
	"webdir/pkg/requestcontext"
)

// slidingWindowScript trims the window, counts, and conditionally adds the
// event in one round trip so concurrent callers cannot overshoot the limit.
// Returns {allowed, remaining, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  count = count + 1
  local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return {1, limit - count, tonumber(first[2])}
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {0, 0, tonumber(oldest[2])}
`)

// Redis keeps each window in a sorted set scored by event time in milliseconds,
// shared by every instance.
type Redis struct {
	client redis.Scripter
}

func NewRedis(client redis.Scripter) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	now := requestcontext.Now(ctx)
	nowMs := now.UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	vals, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		nowMs, window.Milliseconds(), limit, member,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("sliding window script: %w", err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("sliding window script: unexpected reply of %d values", len(vals))
	}

	resetAt := time.UnixMilli(vals[2]).Add(window).UTC()
	result := &models.Result{
		Allowed:   vals[0] == 1,
		Limit:     limit,
		Remaining: int(vals[1]),
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		result.RetryAfter = max(resetAt.Sub(now), time.Millisecond)
	}
	return result, nil
}
