package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/timex"
	"github.com/redis/go-redis/v9"
)

// RedisCache keeps entries in Redis. The Redis TTL enforces the sliding
// window; the absolute deadline travels inside the envelope and caps every
// renewal.
type RedisCache struct {
	client redis.Cmdable
	clock  timex.Clock
}

func NewRedisCache(client redis.Cmdable, clock timex.Clock) *RedisCache {
	return &RedisCache{client: client, clock: clock}
}

// NewRedisClient parses a redis:// URL and checks the server is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (c *RedisCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}

	env, err := open(data)
	if err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}

	ttl := env.remaining(c.clock.Now())
	if ttl <= 0 {
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return false, fmt.Errorf("redis del %s: %w", key, err)
		}
		return false, nil
	}

	if err := decMode.Unmarshal(env.Payload, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	if err := c.client.PExpire(ctx, key, ttl).Err(); err != nil {
		return true, fmt.Errorf("redis pexpire %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, opts Options) error {
	if !opts.valid() {
		return ErrInvalidOptions
	}
	data, err := seal(value, opts, c.clock.Now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, firstExpiry(opts)).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
