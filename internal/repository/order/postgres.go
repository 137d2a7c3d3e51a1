package order

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

const (
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) CreateOrderAtomic(ctx context.Context, order domain.Order, deltas []domain.StockDelta, appendTo string) (created *domain.Order, err error) {
	if err := domain.ValidateDeltas(deltas); err != nil {
		return nil, err
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				r.logger.Error("order repo: rollback", zap.String("order_id", order.ID), zap.Error(rbErr))
			}
		}
	}()

	if err = tx.QueryRow(ctx, `
INSERT INTO orders (id, user_id, email, total, status, created_at)
VALUES ($1, $2, NULLIF($3, ''), $4::numeric, $5, now())
RETURNING created_at
`, order.ID, order.UserID, order.Email, order.Total.StringFixed(2), string(order.Status)).Scan(&order.CreatedAt); err != nil {
		return nil, mapPgError(err, order.UserID)
	}

	for i, item := range order.Items {
		if _, err = tx.Exec(ctx, `
INSERT INTO order_items (order_id, position, product_id, name, unit_price, quantity, image_ref)
VALUES ($1, $2, $3, $4, $5::numeric, $6, NULLIF($7, ''))
`, order.ID, i, item.ProductID, item.Name, item.UnitPrice.StringFixed(2), item.Quantity, item.ImageRef); err != nil {
			return nil, mapPgError(err, item.ProductID)
		}
	}

	// Lock products in a stable order so concurrent commits cannot deadlock.
	sorted := make([]domain.StockDelta, len(deltas))
	copy(sorted, deltas)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })
	for _, d := range sorted {
		if err = decrementStock(ctx, tx, d); err != nil {
			return nil, err
		}
	}

	cmd, err := tx.Exec(ctx, `
UPDATE users
SET order_ids = array_append(order_ids, $2)
WHERE id = $1
`, appendTo, order.ID)
	if err != nil {
		return nil, mapPgError(err, appendTo)
	}
	if cmd.RowsAffected() == 0 {
		err = fmt.Errorf("user %s: %w", appendTo, domain.ErrNotFound)
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	r.logger.Info("order repo: committed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Int("lines", len(order.Items)))
	return &order, nil
}

// decrementStock applies a relative decrement that only succeeds while enough
// stock remains.
func decrementStock(ctx context.Context, tx pgx.Tx, d domain.StockDelta) error {
	var remaining int
	err := tx.QueryRow(ctx, `
UPDATE products
SET stock = stock - $2,
    sold = sold + $2
WHERE id::text = $1 AND stock >= $2
RETURNING stock
`, d.ProductID, d.Quantity).Scan(&remaining)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return mapPgError(err, d.ProductID)
	}

	var available int
	if err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id::text = $1`, d.ProductID).Scan(&available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("product %s: %w", d.ProductID, domain.ErrNotFound)
		}
		return err
	}
	return &domain.OutOfStockError{ProductID: d.ProductID, Requested: d.Quantity, Available: available}
}

func (r *postgresRepo) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	cmd, err := r.pool.Exec(ctx, `
UPDATE orders
SET status = $3, updated_at = now()
WHERE id::text = $1 AND status = $2
`, id, string(from), string(to))
	if err != nil {
		r.logger.Error("order repo: update status", zap.String("order_id", id), zap.Error(err))
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		// Someone else moved the order first.
		return nil, fmt.Errorf("order %s is %s, expected %s: %w", id, current.Status, from, domain.ErrInvalidStatusTransition)
	}
	return r.GetByID(ctx, id)
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `
SELECT id::text, user_id, COALESCE(email, ''), total::text, status, created_at, updated_at
FROM orders
WHERE id::text = $1
`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	byID := map[string]*domain.Order{o.ID: o}
	if err := r.loadItems(ctx, byID, []string{o.ID}); err != nil {
		return nil, err
	}
	return o, nil
}

// List returns orders newest first. An empty userID lists every order.
func (r *postgresRepo) List(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id::text, user_id, COALESCE(email, ''), total::text, status, created_at, updated_at
FROM orders
WHERE $1 = '' OR user_id = $1
ORDER BY created_at DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders user_id=%s: %w", userID, err)
	}
	defer rows.Close()

	byID := make(map[string]*domain.Order)
	var ids []string
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.Order{}, nil
	}
	if err := r.loadItems(ctx, byID, ids); err != nil {
		return nil, err
	}

	out := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, *byID[id])
	}
	return out, nil
}

func (r *postgresRepo) loadItems(ctx context.Context, byID map[string]*domain.Order, ids []string) error {
	rows, err := r.pool.Query(ctx, `
SELECT order_id::text, product_id::text, name, unit_price::text, quantity, COALESCE(image_ref, '')
FROM order_items
WHERE order_id::text = ANY($1)
ORDER BY order_id, position
`, ids)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
			price   string
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &price, &item.Quantity, &item.ImageRef); err != nil {
			return err
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return fmt.Errorf("order %s: parse unit price %q: %w", orderID, price, err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o      domain.Order
		total  string
		status string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.Email, &total, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("order %s: parse total %q: %w", o.ID, total, err)
	}
	o.Total = d
	o.Status = domain.OrderStatus(status)
	o.Items = []domain.OrderItem{}
	return &o, nil
}

func mapPgError(err error, subject string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", subject, domain.ErrNotFound)
		case pgCheckViolation:
			return &domain.OutOfStockError{ProductID: subject, Available: -1}
		}
	}
	return err
}
