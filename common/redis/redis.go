package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guiasync/tracking-reconciler/common/config"
	"github.com/redis/go-redis/v9"
)

const statusKeyPrefix = "tracking:status:"

// RedisClient wraps the Redis connection used as a carrier-status cache.
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClient creates a new Redis client instance
func NewClient(cfg config.Config) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		ttl:    cfg.Redis.TTL,
	}, nil
}

// Close closes the Redis client connection
func (c *RedisClient) Close() error {
	return c.client.Close()
}

// GetStatus returns the cached raw carrier status for a tracking ID.
// The second return value is false on a cache miss.
func (c *RedisClient) GetStatus(ctx context.Context, trackingID string) (string, bool, error) {
	val, err := c.client.Get(ctx, statusKeyPrefix+trackingID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetStatus caches the raw carrier status for a tracking ID with the
// configured TTL. Empty statuses are not cached so failed scrapes get retried.
func (c *RedisClient) SetStatus(ctx context.Context, trackingID, status string) error {
	if status == "" {
		return nil
	}
	return c.client.Set(ctx, statusKeyPrefix+trackingID, status, c.ttl).Err()
}

// Delete removes a cached status
func (c *RedisClient) Delete(ctx context.Context, trackingID string) error {
	return c.client.Del(ctx, statusKeyPrefix+trackingID).Err()
}
