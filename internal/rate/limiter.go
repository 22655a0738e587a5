package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters for the passwordless surface.
type Config struct {
	MaxCodesPerContact int
	ContactWindow      time.Duration
	ResendCooldown     time.Duration
}

// Limiter throttles code creation per contact and resends per device using
// Redis counters. A zero MaxCodesPerContact or ResendCooldown disables the
// corresponding check.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckCreate records one code-creation attempt for the contact and reports
// whether the window budget is exhausted.
func (l *Limiter) CheckCreate(ctx context.Context, contact string) error {
	if l == nil || l.config.MaxCodesPerContact <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, contactKey(contact), l.config.ContactWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxCodesPerContact) {
		return ErrRateLimited
	}

	return nil
}

// CheckResend enforces the per-device resend cooldown. The first call within
// a cooldown window succeeds; subsequent calls are limited until it elapses.
func (l *Limiter) CheckResend(ctx context.Context, deviceID string) error {
	if l == nil || l.config.ResendCooldown <= 0 {
		return nil
	}

	ok, err := l.redis.SetNX(ctx, resendKey(deviceID), 1, l.config.ResendCooldown).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !ok {
		return ErrRateLimited
	}

	return nil
}

// Reset clears the creation counter for a contact. Called after a successful
// consume so a fresh flow starts with a full budget.
func (l *Limiter) Reset(ctx context.Context, contact string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, contactKey(contact)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count == 1 && ttl > 0 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func contactKey(contact string) string {
	return "agl:c:" + contact
}

func resendKey(deviceID string) string {
	return "agl:r:" + deviceID
}
