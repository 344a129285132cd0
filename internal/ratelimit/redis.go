// redis.go: Redis-backed counter store with Lua scripts for atomicity
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements CounterStore on top of go-redis. Increment and CAS
// run as Lua scripts so concurrent requests for the same identifier never
// lose updates.
type RedisStore struct {
	Client *redis.Client
}

// NewRedisStore creates a Redis-backed counter store from options
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		Client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// casScript treats an empty ARGV[1] as "create only if absent". Counter
// values are never the empty string, so the encoding is unambiguous.
var casScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if (cur == false and ARGV[1] == '') or cur == ARGV[1] then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
  return 1
end
return 0
`)

// Get returns the raw value stored under key.
func (rs *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := rs.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, key, err)
	}
	return val, true, nil
}

// Set writes value under key with the given TTL.
func (rs *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := rs.Client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}

// Incr atomically increments the counter at key, applying ttl on creation.
func (rs *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	res, err := incrScript.Run(ctx, rs.Client, []string{key}, ttl.Milliseconds()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: incr %s: %v", ErrStoreUnavailable, key, err)
	}
	n, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: incr %s: unexpected script result %v", ErrStoreUnavailable, key, res)
	}
	return n, nil
}

// CompareAndSwap atomically replaces old with new under key.
func (rs *RedisStore) CompareAndSwap(ctx context.Context, key string, old, new []byte, ttl time.Duration) (bool, error) {
	res, err := casScript.Run(ctx, rs.Client, []string{key}, string(old), string(new), ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("%w: cas %s: %v", ErrStoreUnavailable, key, err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

// Ping reports Redis reachability.
func (rs *RedisStore) Ping(ctx context.Context) error {
	if err := rs.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// PoolStats returns Redis connection pool statistics.
func (rs *RedisStore) PoolStats() *redis.PoolStats {
	return rs.Client.PoolStats()
}

// Close releases the underlying client.
func (rs *RedisStore) Close() error {
	return rs.Client.Close()
}
