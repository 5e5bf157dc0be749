package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipwave/clipwave/internal/config"
)

// progressTTL bounds how long an orphaned progress key can survive a crashed
// worker. Normal completion removes the key explicitly.
const progressTTL = 24 * time.Hour

// RedisSink is a Sink backed by Redis, for deployments where progress is
// consumed by another process (API nodes, websocket fan-out).
type RedisSink struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisSink creates a RedisSink from configuration.
func NewRedisSink(cfg config.RedisConfig) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisSink{client: client, keyPrefix: cfg.KeyPrefix}
}

// NewRedisSinkWithClient wraps an existing client, mainly for tests.
func NewRedisSinkWithClient(client *redis.Client, keyPrefix string) *RedisSink {
	return &RedisSink{client: client, keyPrefix: keyPrefix}
}

// Set records the current progress for a job key.
func (s *RedisSink) Set(ctx context.Context, key string, percent int) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, percent, progressTTL).Err(); err != nil {
		return fmt.Errorf("setting progress for %s: %w", key, err)
	}
	return nil
}

// Fetch returns the live progress value and whether the key is present.
func (s *RedisSink) Fetch(ctx context.Context, key string) (int, bool, error) {
	val, err := s.client.Get(ctx, s.keyPrefix+key).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("fetching progress for %s: %w", key, err)
	}
	return val, true, nil
}

// Remove deletes the progress entry for a job key.
func (s *RedisSink) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("removing progress for %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
