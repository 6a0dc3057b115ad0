package cache

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// NewRedisClient creates the optional L2 client from a URL
// (e.g., "redis://localhost:6379") and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}
