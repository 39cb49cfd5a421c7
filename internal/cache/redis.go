package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisTimeout = 5 * time.Second

// scanBatch is the COUNT hint passed to SCAN when clearing.
const scanBatch = 500

// RedisCache stores entries in Redis under a key prefix, so several sites
// can share one Redis database.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a cache backed by the Redis server at addr. No
// connection is made until the first command.
func NewRedisCache(addr string, db int, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "vfs:"
	}
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *RedisCache) key(path string) string {
	return c.prefix + path
}

func (c *RedisCache) Get(path string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, c.key(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry %s: %w", path, err)
	}
	return data, true, nil
}

func (c *RedisCache) Put(path string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := c.client.Set(ctx, c.key(path), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing cache entry %s: %w", path, err)
	}
	return nil
}

// Invalidate deletes the entries for paths in one pipeline.
func (c *RedisCache) Invalidate(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	pipe := c.client.Pipeline()
	for _, p := range paths {
		pipe.Del(ctx, c.key(p))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidating cache entries: %w", err)
	}
	return nil
}

// Clear deletes every key under the prefix. Keys of other prefixes are untouched.
func (c *RedisCache) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	iter := c.client.Scan(ctx, 0, c.prefix+"*", scanBatch).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("clearing cache: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning cache keys: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)
