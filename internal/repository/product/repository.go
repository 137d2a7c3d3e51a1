package product

import (
	"context"

	"storefront/internal/domain"
)

// Repository is the read side of the catalog plus the upsert used by seeding
// and imports. Stock counters are never written here; only the order commit
// changes them.
type Repository interface {
	List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}
