package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultVariant is used in line ids when a line carries no variant.
const DefaultVariant = "default"

// MaxLineQuantity bounds the units one cart or order line may hold.
const MaxLineQuantity = 999

// CartLineItem is one product (plus optional variant) held in a cart.
type CartLineItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Variant   string          `json:"variant,omitempty"`
	Name      string          `json:"name,omitempty"`
	ImageRef  string          `json:"imageRef,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"addedAt"`
}

// LineTotal is UnitPrice × Quantity.
func (l CartLineItem) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartState is the client-owned cart with its derived totals.
type CartState struct {
	Items     []CartLineItem  `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"itemCount"`
}

// Recompute derives a CartState from the full item set. Totals are never
// adjusted incrementally.
func Recompute(items []CartLineItem) CartState {
	total := decimal.Zero
	count := 0
	for _, it := range items {
		total = total.Add(it.LineTotal())
		count += it.Quantity
	}
	if items == nil {
		items = []CartLineItem{}
	}
	return CartState{Items: items, Total: total, ItemCount: count}
}
