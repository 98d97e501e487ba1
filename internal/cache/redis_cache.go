package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "pos:report:"
	// indexKey tracks live report keys so Invalidate can drop them together.
	indexKey = "pos:report:index"
)

type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

// NewRedisReportCacheFromClient wraps an existing client, mainly for tests.
func NewRedisReportCacheFromClient(client *redis.Client) *RedisReportCache {
	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReportCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keyPrefix+key, payload, ttl)
		pipe.SAdd(ctx, indexKey, keyPrefix+key)
		return nil
	})
	return err
}

func (c *RedisReportCache) Invalidate(ctx context.Context) error {
	keys, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return err
	}
	keys = append(keys, indexKey)
	return c.client.Del(ctx, keys...).Err()
}
