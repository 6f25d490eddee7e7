package inmem

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisClient struct {
	rdb *redis.Client
}

// NewRedisClient keeps tokens in redis, each key expiring with its token.
func NewRedisClient(rdb *redis.Client) Client {
	return &redisClient{rdb}
}

func (c *redisClient) Get(ctx context.Context, key string) error {
	n, err := c.rdb.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return err
	}

	if n == 0 {
		return ErrKeyNotFound
	}

	return nil
}

func (c *redisClient) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, keyPrefix+key, value, ttl).Err()
}

func (c *redisClient) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, keyPrefix+key).Err()
}
