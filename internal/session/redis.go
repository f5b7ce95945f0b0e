package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps identifiers in Redis, shared by every server replica.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore. A zero ttl keeps keys forever.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "neuroexpert:session:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the value stored under key.
func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

// SetIfAbsent stores value with SETNX and falls back to reading the winner.
func (r *RedisStore) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, value, r.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis setnx: %w", err)
	}
	if ok {
		return value, nil
	}

	existing, found, err := r.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("session %q expired during initialization", key)
	}
	return existing, nil
}

var replaceEmptyScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v and v ~= '' then
	return v
end
if tonumber(ARGV[2]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return ARGV[1]
`)

// ReplaceEmpty overwrites a blank stored value atomically.
func (r *RedisStore) ReplaceEmpty(ctx context.Context, key, value string) (string, error) {
	v, err := replaceEmptyScript.Run(ctx, r.client, []string{r.prefix + key}, value, r.ttl.Milliseconds()).Text()
	if err != nil {
		return "", fmt.Errorf("redis replace empty: %w", err)
	}
	return v, nil
}
