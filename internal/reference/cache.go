package reference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backend is a byte-oriented key/value store with per-key expiry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

type redisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) Backend {
	return &redisBackend{client: client}
}

func (b *redisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *redisBackend) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, val, ttl).Err()
}

// CachedDirectory keeps found records for ttl. Misses are never cached, so a
// record created after a failed lookup is visible immediately. Backend
// failures degrade to the wrapped directory.
type CachedDirectory struct {
	inner   Directory
	backend Backend
	ttl     time.Duration
	log     *zap.Logger
}

func NewCachedDirectory(inner Directory, backend Backend, ttl time.Duration, log *zap.Logger) *CachedDirectory {
	return &CachedDirectory{inner: inner, backend: backend, ttl: ttl, log: log}
}

func (c *CachedDirectory) Patient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return cached(ctx, c, "patient", id, c.inner.Patient)
}

func (c *CachedDirectory) Provider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return cached(ctx, c, "provider", id, c.inner.Provider)
}

func (c *CachedDirectory) Unit(ctx context.Context, id uuid.UUID) (*Unit, error) {
	return cached(ctx, c, "unit", id, c.inner.Unit)
}

func cached[T any](ctx context.Context, c *CachedDirectory, kind string, id uuid.UUID, load func(context.Context, uuid.UUID) (*T, error)) (*T, error) {
	key := fmt.Sprintf("ref:%s:%s", kind, id)

	if data, ok, err := c.backend.Get(ctx, key); err != nil {
		c.log.Warn("reference cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return &v, nil
		}
		c.log.Warn("reference cache entry corrupt", zap.String("key", key))
	}

	v, err := load(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(v)
	if err == nil {
		err = c.backend.Set(ctx, key, data, c.ttl)
	}
	if err != nil {
		c.log.Warn("reference cache write failed", zap.String("key", key), zap.Error(err))
	}

	return v, nil
}
