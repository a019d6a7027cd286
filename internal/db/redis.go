package db

import (
	"github.com/redis/go-redis/v9"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/config"
)

// ConnectRedis returns nil when no address is configured; the hub then runs
// single-instance without pub/sub relay.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
