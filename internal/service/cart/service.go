package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/domain"
)

type productRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

// Service turns catalog lookups into cart candidates so prices are captured
// from the catalog at add time rather than trusted from the client.
type Service struct {
	products productRepo
}

func New(products productRepo) *Service {
	return &Service{products: products}
}

type AddInput struct {
	ProductID string `json:"productId"`
	Variant   string `json:"variant,omitempty"`
	Quantity  *int   `json:"quantity,omitempty"`
}

func (s *Service) AddProduct(ctx context.Context, sess *Session, in AddInput) (domain.CartState, error) {
	productID := strings.TrimSpace(in.ProductID)
	if productID == "" {
		return sess.State(), fmt.Errorf("productId required: %w", domain.ErrInvalidLineItem)
	}
	qty := 1
	if in.Quantity != nil {
		qty = *in.Quantity
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return sess.State(), err
		}
		return sess.State(), fmt.Errorf("load product %s: %w", productID, err)
	}
	return sess.AddItem(ctx, Candidate{
		ProductID: p.ID,
		Variant:   strings.TrimSpace(in.Variant),
		Name:      p.Name,
		ImageRef:  p.ImageRef,
		UnitPrice: p.Price,
		Quantity:  qty,
	})
}
