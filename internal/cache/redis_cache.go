package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"cajapos/backend/internal/domain"
)

const redisKeyPrefix = "cajapos:permissions:"

// RedisPermissionCache shares permission entries between server replicas, so
// an invalidation on one replica is seen by all of them.
type RedisPermissionCache struct {
	client redis.UniversalClient
}

func NewRedisPermissionCache(addr string, password string, db int) *RedisPermissionCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisPermissionCache{client: client}
}

func NewRedisPermissionCacheFromClient(client redis.UniversalClient) *RedisPermissionCache {
	return &RedisPermissionCache{client: client}
}

func (c *RedisPermissionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisPermissionCache) Close() error {
	return c.client.Close()
}

func (c *RedisPermissionCache) Get(ctx context.Context, key string) (*domain.PermissionSet, bool, error) {
	val, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var perms domain.PermissionSet
	if err := json.Unmarshal(val, &perms); err != nil {
		return nil, false, err
	}
	return &perms, true, nil
}

func (c *RedisPermissionCache) Set(ctx context.Context, key string, value *domain.PermissionSet, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisKeyPrefix+key, payload, ttl).Err()
}

func (c *RedisPermissionCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, redisKeyPrefix+key).Err()
}
