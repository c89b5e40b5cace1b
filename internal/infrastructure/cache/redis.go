// Package cache holds the shared Redis connection.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	sharedConfig "github.com/autocrm-inc/autocrm/internal/shared/config"
)

// NewRedisClient connects to the configured Redis. Connection errors
// surface on first use.
func NewRedisClient(cfg sharedConfig.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.GetAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping reports whether client can reach Redis.
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}
	return nil
}
