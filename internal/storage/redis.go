package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLedger implements Ledger with one Redis hash per bot
type RedisLedger struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// Ensure RedisLedger implements Ledger interface
var _ Ledger = (*RedisLedger)(nil)

// NewRedisLedger creates a ledger stored under tradebot:ledger:<bot>
func NewRedisLedger(client *redis.Client, bot string, logger *slog.Logger) *RedisLedger {
	return &RedisLedger{
		client: client,
		key:    "tradebot:ledger:" + bot,
		logger: logger,
	}
}

// NewRedisClient parses a redis:// URL, falling back to treating it as host:port
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		if redisURL == "" {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		opt = &redis.Options{Addr: redisURL}
	}
	return redis.NewClient(opt), nil
}

func (r *RedisLedger) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisLedger) WaitForConnection(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

func (r *RedisLedger) RecordTrade(ctx context.Context, item string, quantity int) error {
	if err := r.client.HIncrBy(ctx, r.key, item, int64(quantity)).Err(); err != nil {
		r.logger.Error("Failed to record trade", "item", item, "error", err)
		return fmt.Errorf("failed to record trade: %w", err)
	}
	return nil
}

func (r *RedisLedger) Totals(ctx context.Context) (map[string]int, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	totals := make(map[string]int, len(raw))
	for item, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.logger.Warn("Skipping malformed ledger entry", "item", item, "value", v)
			continue
		}
		totals[item] = n
	}
	return totals, nil
}

func (r *RedisLedger) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to reset ledger: %w", err)
	}
	return nil
}
