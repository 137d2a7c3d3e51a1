package user

import (
	"context"

	"storefront/internal/domain"
)

// Repository persists user records. The order history list is appended only
// by the order commit.
type Repository interface {
	Ensure(ctx context.Context, u domain.User) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
}
