package ratelimit

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/storeadmin/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewRedisClient returns nil when REDIS_ADDR is unset; consumers fall back to in-process implementations.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	if !cfg.Redis.Enabled() {
		log.Info("redis disabled, using in-process rate limits and locks")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

// NewBucket prefers the shared redis bucket.
func NewBucket(client *redis.Client) Bucket {
	if client == nil {
		return NewLocalBucket()
	}
	return NewTokenBucket(client)
}

// NewLock prefers the shared redis lock.
func NewLock(client *redis.Client) Lock {
	if client == nil {
		return NewLocalLocker()
	}
	return NewLocker(client)
}
