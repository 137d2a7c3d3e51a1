package cartstore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

// RedisOptions configures the redis backend. TTL of zero keeps snapshots
// forever.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedis(opts RedisOptions, logger *zap.Logger) *RedisBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBackend{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		ttl:    opts.TTL,
		logger: logger,
	}
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	payload, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("cart redis: get", zap.String("key", key), zap.Error(err))
		return nil, err
	}
	return payload, nil
}

func (r *RedisBackend) Save(ctx context.Context, key string, payload []byte) error {
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		r.logger.Error("cart redis: set", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
