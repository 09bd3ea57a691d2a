package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// Locker guards critical sections that must not run concurrently across
// api-server instances.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// ProviderDayKey serialises bookings on one provider's calendar day.
func ProviderDayKey(providerID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("lock:calendar:%s:%s", providerID, date.Format(time.DateOnly))
}

// SessionPoolKey serialises claims against one (subscription, service) pool.
func SessionPoolKey(subscriptionID, serviceID uuid.UUID) string {
	return fmt.Sprintf("lock:sessions:%s:%s", subscriptionID, serviceID)
}

// WithLockFallback runs fn under key like l.WithLock. If the lock store
// itself fails, fn still runs and only the advisory lock taken inside fn
// serialises it. Contention is returned as ErrLockNotAcquired.
func WithLockFallback(ctx context.Context, l Locker, key string, log *zap.Logger, fn func(ctx context.Context) error) error {
	entered := false
	err := l.WithLock(ctx, key, func(ctx context.Context) error {
		entered = true
		return fn(ctx)
	})
	if err == nil || entered || errors.Is(err, ErrLockNotAcquired) || ctx.Err() != nil {
		return err
	}

	log.Warn("lock store unavailable, relying on advisory lock",
		zap.String("key", key),
		zap.Error(err),
	)
	return fn(ctx)
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker creates a locker that holds one Redis key per critical section.
func NewRedisLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
