package order

import (
	"context"

	"storefront/internal/domain"
)

// Repository is the order store. CreateOrderAtomic applies the order insert,
// every stock delta and the user's order-history append as one unit: either
// all of them are visible afterwards or none are.
type Repository interface {
	CreateOrderAtomic(ctx context.Context, order domain.Order, deltas []domain.StockDelta, appendTo string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, userID string) ([]domain.Order, error)
}
