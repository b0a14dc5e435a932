package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	Prefix              string
	EnableIPThrottle    bool
	MaxInitiateAttempts int
	InitiateWindow      time.Duration
}

// Limiter enforces per-phone and per-IP initiation budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// AllowInitiate records one initiation for phone (and ip when IP throttling
// is enabled) and returns ErrRateLimited once either budget is exceeded in
// the current window. Every call counts, successful or not.
func (l *Limiter) AllowInitiate(ctx context.Context, phone, ip string) error {
	count, err := l.incrementWithTTL(ctx, l.phoneKey(phone), l.config.InitiateWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxInitiateAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, l.ipKey(ip), l.config.InitiateWindow)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxInitiateAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// ResetPhone clears the per-phone counter. Called after a confirmed login.
func (l *Limiter) ResetPhone(ctx context.Context, phone string) error {
	if err := l.redis.Del(ctx, l.phoneKey(phone)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the current counter for phone. Missing keys return zero.
func (l *Limiter) Attempts(ctx context.Context, phone string) (int, error) {
	count, err := l.redis.Get(ctx, l.phoneKey(phone)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func (l *Limiter) phoneKey(phone string) string {
	return l.config.Prefix + ":ip:p:" + phone
}

func (l *Limiter) ipKey(ip string) string {
	return l.config.Prefix + ":ip:a:" + ip
}
