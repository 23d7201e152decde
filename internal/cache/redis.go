package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs the Policy Cache with a distributed store so cache state
// is shared across gateway replicas, per the spec's "external cache" mode.
type RedisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// NewRedisCache builds a RedisCache from a connection URL (redis://host:port/db).
func NewRedisCache(redisURL string, defaultTTL time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts), defaultTTL: defaultTTL}, nil
}

func namespacedKey(namespace, key string) string {
	return namespace + ":" + key
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, namespacedKey(namespace, key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.client.Set(ctx, namespacedKey(namespace, key), value, ttl).Err()
}

// Delete implements Cache.
func (c *RedisCache) Delete(ctx context.Context, namespace, key string) error {
	return c.client.Del(ctx, namespacedKey(namespace, key)).Err()
}

// InvalidateNamespace implements Cache. Redis has no native "delete by
// prefix" so this scans keys matching namespace:* and removes them in
// batches, which is acceptable for the Config Resolver's bulk-reload path
// since it is not on the per-request hot path.
func (c *RedisCache) InvalidateNamespace(ctx context.Context, namespace string) error {
	pattern := namespace + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return c.client.Del(ctx, batch...).Err()
	}
	return nil
}

// Incr implements Counter via a single INCRBY, applying EXPIRE only on the
// increment that creates the key (result == delta) so a window's expiry is
// fixed at first write, matching Redis's own idiomatic fixed-window pattern.
func (c *RedisCache) Incr(ctx context.Context, namespace, key string, delta int64, ttl time.Duration) (int64, error) {
	full := namespacedKey(namespace, key)
	next, err := c.client.IncrBy(ctx, full, delta).Result()
	if err != nil {
		return 0, err
	}
	if next == delta {
		if ttl <= 0 {
			ttl = c.defaultTTL
		}
		if ttl > 0 {
			if err := c.client.Expire(ctx, full, ttl).Err(); err != nil {
				return next, err
			}
		}
	}
	return next, nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
