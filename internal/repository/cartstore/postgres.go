package cartstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

type postgresBackend struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres stores snapshots in the cart_snapshots table as jsonb.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresBackend{pool: pool, logger: logger}
}

func (r *postgresBackend) Load(ctx context.Context, key string) ([]byte, error) {
	const q = `SELECT items::text FROM cart_snapshots WHERE key = $1`
	var payload string
	if err := r.pool.QueryRow(ctx, q, key).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("cart snapshot: load", zap.String("key", key), zap.Error(err))
		return nil, err
	}
	return []byte(payload), nil
}

func (r *postgresBackend) Save(ctx context.Context, key string, payload []byte) error {
	const q = `
INSERT INTO cart_snapshots (key, items, updated_at)
VALUES ($1, $2::jsonb, now())
ON CONFLICT (key) DO UPDATE SET
    items = EXCLUDED.items,
    updated_at = EXCLUDED.updated_at
`
	if _, err := r.pool.Exec(ctx, q, key, string(payload)); err != nil {
		r.logger.Error("cart snapshot: save", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}
