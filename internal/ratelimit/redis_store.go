package ratelimit

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// hitScript increments the key and sets its expiry on the first hit, returning
// the new count and the remaining TTL in milliseconds.
var hitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// RedisStore shares counters across instances.
type RedisStore struct {
	client    redis.Scripter
	keyPrefix string
}

func NewRedisStore(client redis.Scripter, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) Hit(ctx context.Context, key string, cfg Config, now time.Time) (Result, error) {
	res, err := hitScript.Run(ctx, s.client, []string{s.keyPrefix + key}, cfg.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, errors.Wrap(err, "rate limit counter")
	}
	if len(res) != 2 {
		return Result{}, errors.Newf("rate limit counter: unexpected reply %v", res)
	}

	count, ttl := int(res[0]), res[1]
	if ttl < 0 {
		ttl = cfg.Window.Milliseconds()
	}
	resetTime := now.Add(time.Duration(ttl) * time.Millisecond)

	if count > cfg.MaxRequests {
		return Result{Allowed: false, Remaining: 0, ResetTime: resetTime}, nil
	}
	return Result{Allowed: true, Remaining: cfg.MaxRequests - count, ResetTime: resetTime}, nil
}
