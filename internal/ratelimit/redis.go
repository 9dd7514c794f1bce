package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript prunes and counts every key, then records the event in
// all of them only when each has room. One round trip keeps concurrent API
// replicas on a single linearizable window per key.
//
// ARGV: now, window, member, ceiling per key.
// Reply: {allowed, rejected index (0 based, -1 when allowed), count, retry}.
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local member = ARGV[3]
local first = 0
for i, key in ipairs(KEYS) do
  local ceiling = tonumber(ARGV[3 + i])
  redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
  local count = redis.call('ZCARD', key)
  if count >= ceiling then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local retry = window
    if oldest[2] then
      retry = tonumber(oldest[2]) + window - now
    end
    return {0, i - 1, count, retry}
  end
  if i == 1 then
    first = count
  end
end
for _, key in ipairs(KEYS) do
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
end
return {1, -1, first + 1, 0}
`)

// RedisStore keeps windows in Redis sorted sets scored by millisecond
// timestamps.
type RedisStore struct {
	client redis.Scripter
}

func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Record(ctx context.Context, key string, now time.Time, ceiling int, window time.Duration) (Decision, error) {
	d, _, err := s.RecordAll(ctx, []string{key}, []int{ceiling}, now, window)
	return d, err
}

func (s *RedisStore) RecordAll(ctx context.Context, keys []string, ceilings []int, now time.Time, window time.Duration) (Decision, int, error) {
	if len(keys) != len(ceilings) {
		return Decision{}, -1, fmt.Errorf("%d keys but %d ceilings", len(keys), len(ceilings))
	}
	member := fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())
	args := []any{now.UnixMilli(), window.Milliseconds(), member}
	for _, c := range ceilings {
		args = append(args, c)
	}
	res, err := slidingWindowScript.Run(ctx, s.client, keys, args...).Int64Slice()
	if err != nil {
		return Decision{}, -1, err
	}
	if len(res) != 4 {
		return Decision{}, -1, fmt.Errorf("unexpected script reply %v", res)
	}
	d := Decision{Allowed: res[0] == 1, Count: int(res[2])}
	if !d.Allowed {
		d.RetryAfter = time.Duration(res[3]) * time.Millisecond
		if d.RetryAfter <= 0 {
			d.RetryAfter = time.Millisecond
		}
	}
	return d, int(res[1]), nil
}
