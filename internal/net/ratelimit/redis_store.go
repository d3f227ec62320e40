package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// admitScript prunes, counts and conditionally records in one round trip so
// concurrent callers sharing a key cannot both observe room.
//
// KEYS[1] window key
// ARGV[1] now (unix ms), ARGV[2] window (ms), ARGV[3] limit, ARGV[4] member
// Returns {admitted, count_before, oldest_ms}.
const admitLua = `
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  return {1, count, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #oldest == 0 then
  return {0, count, 0}
end
return {0, count, tonumber(oldest[2])}
`

var admitScript = redis.NewScript(admitLua)

// RedisStore keeps windows as sorted sets scored by event time in ms.
type RedisStore struct {
	client redis.Cmdable
	newID  func() string
}

// NewRedisStore creates a Store backed by client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, newID: uuid.NewString}
}

// Admit implements Store with the admit script.
func (r *RedisStore) Admit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, error) {
	nowMS := now.UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMS, r.newID())

	res, err := admitScript.Run(ctx, r.client, []string{key},
		nowMS, window.Milliseconds(), limit, member).Result()
	if err != nil {
		return Window{}, fmt.Errorf("redis admit %s: %w", key, err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return Window{}, fmt.Errorf("redis admit %s: unexpected reply %T", key, res)
	}

	admitted, err1 := toInt64(vals[0])
	count, err2 := toInt64(vals[1])
	oldest, err3 := toInt64(vals[2])
	for _, e := range []error{err1, err2, err3} {
		if e != nil {
			return Window{}, fmt.Errorf("redis admit %s: %w", key, e)
		}
	}

	w := Window{Admitted: admitted == 1, Count: int(count)}
	if !w.Admitted && oldest > 0 {
		w.Oldest = time.UnixMilli(oldest)
	}
	return w, nil
}

// Peek implements Store with read-only sorted set queries.
func (r *RedisStore) Peek(ctx context.Context, key string, window time.Duration, now time.Time) (Window, error) {
	floor := fmt.Sprintf("(%d", now.Add(-window).UnixMilli())

	count, err := r.client.ZCount(ctx, key, floor, "+inf").Result()
	if err != nil {
		return Window{}, fmt.Errorf("redis peek %s: %w", key, err)
	}
	if count == 0 {
		return Window{}, nil
	}

	oldest, err := r.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: floor, Max: "+inf", Count: 1,
	}).Result()
	if err != nil {
		return Window{}, fmt.Errorf("redis peek %s: %w", key, err)
	}

	w := Window{Count: int(count)}
	if len(oldest) > 0 {
		w.Oldest = time.UnixMilli(int64(oldest[0].Score))
	}
	return w, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected script value %T", v)
	}
}
