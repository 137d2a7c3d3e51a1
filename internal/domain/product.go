package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	Key         string          `json:"key"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Brand       string          `json:"brand,omitempty"`
	ImageRef    string          `json:"imageRef,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Sold        int             `json:"sold"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// ProductFilter narrows catalog listings. Zero values match everything.
type ProductFilter struct {
	Brand   string
	InStock bool
	Limit   int
}

// StockDelta is a relative adjustment applied to one product during commit.
type StockDelta struct {
	ProductID string
	Quantity  int
}

// ValidateDeltas rejects deltas that would not take stock down.
func ValidateDeltas(deltas []StockDelta) error {
	for _, d := range deltas {
		if d.Quantity <= 0 {
			return fmt.Errorf("stock delta %d for product %s: %w", d.Quantity, d.ProductID, ErrInvalidQuantity)
		}
	}
	return nil
}
