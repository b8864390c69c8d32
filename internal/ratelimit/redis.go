package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript returns {count, pttl, allowed}. The window starts on the first
// request and the key expires with it; denied requests leave the key untouched.
var takeScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
  redis.call('SET', KEYS[1], 1, 'PX', ARGV[2])
  return {1, tonumber(ARGV[2]), 1}
end
local count = tonumber(current)
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
if count >= tonumber(ARGV[1]) then
  return {count, ttl, 0}
end
count = redis.call('INCR', KEYS[1])
return {count, ttl, 1}
`)

// RedisBackend shares quotas across processes. Redis runs the script
// atomically, so concurrent requests for one client cannot both pass.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(redisURL string) (*RedisBackend, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisBackend{client: redis.NewClient(opt)}, nil
}

func NewRedisBackendFromClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Take(ctx context.Context, key string, limit int64, window time.Duration, now time.Time) (Decision, error) {
	res, err := takeScript.Run(ctx, b.client, []string{key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	count, ttl, allowed := res[0], res[1], res[2] == 1

	d := Decision{
		Allowed: allowed,
		ResetAt: now.Add(time.Duration(ttl) * time.Millisecond),
	}
	if allowed {
		d.Remaining = limit - count
	}
	return d, nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
