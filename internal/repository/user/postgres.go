package user

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres returns a Repository backed by Postgres.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresRepo{pool: pool, logger: logger}
}

// Ensure creates the user on first sight and refreshes email/display name
// when they are supplied. Existing order history is left untouched.
func (r *postgresRepo) Ensure(ctx context.Context, u domain.User) (*domain.User, error) {
	if strings.TrimSpace(u.ID) == "" {
		return nil, domain.ErrUnauthenticated
	}
	const q = `
INSERT INTO users (id, email, display_name)
VALUES ($1, lower($2), $3)
ON CONFLICT (id) DO UPDATE SET
    email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
    display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), users.display_name)
RETURNING id, email, display_name, order_ids, created_at
`
	return r.scanUser(r.pool.QueryRow(ctx, q, u.ID, u.Email, u.DisplayName))
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const q = `
SELECT id, email, display_name, order_ids, created_at
FROM users
WHERE id = $1
`
	return r.scanUser(r.pool.QueryRow(ctx, q, id))
}

func (r *postgresRepo) scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.OrderIDs, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Error("user repo: scan", zap.Error(err))
		return nil, err
	}
	if u.OrderIDs == nil {
		u.OrderIDs = []string{}
	}
	return &u, nil
}
