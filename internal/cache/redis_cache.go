package cache

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisBalanceCache struct {
	client *redis.Client
}

func NewRedisBalanceCache(addr string, password string, db int) *RedisBalanceCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisBalanceCache{client: client}
}

func (c *RedisBalanceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisBalanceCache) Close() error {
	return c.client.Close()
}

func balanceKey(productID string) string {
	return "stock:balance:" + productID
}

func (c *RedisBalanceCache) Get(ctx context.Context, productID string) (int, bool, error) {
	val, err := c.client.Get(ctx, balanceKey(productID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	quantity, err := strconv.Atoi(val)
	if err != nil {
		// Corrupt value: drop it and report a miss.
		_ = c.client.Del(ctx, balanceKey(productID)).Err()
		return 0, false, nil
	}
	return quantity, true, nil
}

func (c *RedisBalanceCache) Set(ctx context.Context, productID string, quantity int, ttl time.Duration) error {
	return c.client.Set(ctx, balanceKey(productID), strconv.Itoa(quantity), ttl).Err()
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		keys = append(keys, balanceKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}
