package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// opTimeout bounds every cache round trip; a slow redis must not stall a feed.
const opTimeout = 500 * time.Millisecond

// RedisCache is the shared redis connection used for window caching,
// directory counts and change fan-out.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     password,
			DB:           db,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		}),
	}
}

func (c *RedisCache) op() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

// Get returns the value at key. A missing key yields nil, nil.
func (c *RedisCache) Get(key string) ([]byte, error) {
	ctx, cancel := c.op()
	defer cancel()
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

func (c *RedisCache) Set(key string, value []byte, ttl time.Duration) error {
	ctx, cancel := c.op()
	defer cancel()
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Delete(key string) error {
	ctx, cancel := c.op()
	defer cancel()
	return c.client.Del(ctx, key).Err()
}

// Incr bumps an integer counter and returns the new value.
func (c *RedisCache) Incr(key string) (int64, error) {
	ctx, cancel := c.op()
	defer cancel()
	return c.client.Incr(ctx, key).Result()
}

// GetInt reads an integer counter; a missing key reads as zero.
func (c *RedisCache) GetInt(key string) (int64, error) {
	ctx, cancel := c.op()
	defer cancel()
	n, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (c *RedisCache) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.client.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a pub/sub connection; it lives until ctx ends or it is closed.
func (c *RedisCache) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.client.Subscribe(ctx, channels...)
}

func (c *RedisCache) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
