package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript applies the same refill and take rules as MemoryStore
// atomically, so every process sharing the key shares one bucket.
// KEYS: bucket. ARGV: now ms, tokens, capacity, refill rate, interval ms, ttl ms.
var takeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local want = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local rate = tonumber(ARGV[4])
local interval = tonumber(ARGV[5])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'last_refill')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
  tokens = capacity
  last = now
end

local intervals = math.floor((now - last) / interval)
local maxIntervals = math.floor(capacity / rate) + 1
if intervals > maxIntervals then
  intervals = maxIntervals
end
if intervals > 0 then
  tokens = math.min(tokens + intervals * rate, capacity)
  last = now
end

local remaining = tokens - want
if remaining >= 0 then
  tokens = remaining
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'last_refill', string.format('%.0f', last))
redis.call('PEXPIRE', KEYS[1], ARGV[6])
return {remaining, string.format('%.0f', last + interval)}
`)

// RedisStore implements Store on Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisKeyPrefix sets the namespace of bucket keys.
func WithRedisKeyPrefix(prefix string) RedisStoreOption {
	return func(rs *RedisStore) {
		if prefix != "" {
			rs.prefix = prefix
		}
	}
}

// NewRedisStore creates a Redis backed bucket store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, ErrStoreUnavailable
	}
	rs := &RedisStore{client: client, prefix: "ratelimit"}
	for _, opt := range opts {
		opt(rs)
	}
	return rs, nil
}

func (rs *RedisStore) key(key string) string {
	return rs.prefix + ":" + key
}

// Take implements Store.
func (rs *RedisStore) Take(ctx context.Context, key string, config Config) (int, time.Time, error) {
	// A bucket left alone past fullAfter equals a missing one.
	ttl := config.fullAfter() + config.RefillInterval

	res, err := takeScript.Run(ctx, rs.client, []string{rs.key(key)},
		time.Now().UnixMilli(),
		1,
		config.Capacity,
		config.RefillRate,
		config.RefillInterval.Milliseconds(),
		ttl.Milliseconds(),
	).Slice()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, time.Time{}, errors.Join(ErrContextCancelled, err)
		}
		return 0, time.Time{}, errors.Join(ErrStoreUnavailable, err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("%w: unexpected script reply %v", ErrStoreUnavailable, res)
	}

	remaining, ok := res[0].(int64)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("%w: unexpected remaining %v", ErrStoreUnavailable, res[0])
	}
	var resetMs int64
	if _, err := fmt.Sscan(fmt.Sprint(res[1]), &resetMs); err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: unexpected reset time %v", ErrStoreUnavailable, res[1])
	}

	return int(remaining), time.UnixMilli(resetMs), nil
}

// Reset implements Store.
func (rs *RedisStore) Reset(ctx context.Context, key string) error {
	if err := rs.client.Del(ctx, rs.key(key)).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
