package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mwhitfield/authgate/internal/config"
	"github.com/mwhitfield/authgate/internal/models"
	"github.com/redis/go-redis/v9"
)

const opTimeout = 2 * time.Second

// CounterStore provides the atomic increment-with-expiry primitive the rate
// limiter is built on. Counters live in Redis so every instance of the
// service shares the same windows.
type CounterStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewCounterStore(cfg *config.RedisConfig, logger *slog.Logger) (*CounterStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}

	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = "authgate"
	}

	logger.Info("redis connection established", slog.String("addr", cfg.Addr))

	return &CounterStore{client: client, prefix: prefix, logger: logger}, nil
}

func (s *CounterStore) Close() error {
	return s.client.Close()
}

func (s *CounterStore) key(k string) string {
	return s.prefix + ":" + k
}

// Increment atomically bumps the counter for key, starting a fresh window of
// the given length on first hit. Returns the post-increment count and the
// remaining window.
func (s *CounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	k := s.key(key)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	// NX: only the first hit in a window sets the expiry, so later hits
	// cannot push the reset time out.
	pipe.ExpireNX(ctx, k, window)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, mapRedisError(err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return incr.Val(), remaining, nil
}

// Count reads the current counter without touching it. A missing key reads
// as zero with a full window remaining.
func (s *CounterStore) Count(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	k := s.key(key)
	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, mapRedisError(err)
	}

	count, err := get.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, window, nil
	}
	if err != nil {
		return 0, 0, mapRedisError(err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return count, remaining, nil
}

// Reset removes the counter for key.
func (s *CounterStore) Reset(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return mapRedisError(err)
	}
	return nil
}

func mapRedisError(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
}
