package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

// Candidate is what a caller offers to AddItem. UnitPrice is captured as-is
// and never re-fetched afterwards.
type Candidate struct {
	ProductID string
	Variant   string
	Name      string
	ImageRef  string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Observer is called with the full item list after every mutation.
type Observer func(ctx context.Context, items []domain.CartLineItem)

type lineKey struct {
	productID string
	variant   string
}

// Store is the cart state machine of one session. It is not safe for
// concurrent use; Session serializes access.
type Store struct {
	items     []domain.CartLineItem
	index     map[lineKey]int
	state     domain.CartState
	now       func() time.Time
	notifier  Notifier
	observers []Observer
}

func NewStore(notifier Notifier) *Store {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	s := &Store{
		index:    make(map[lineKey]int),
		now:      time.Now,
		notifier: notifier,
	}
	s.state = domain.Recompute(nil)
	return s
}

func (s *Store) Subscribe(o Observer) {
	s.observers = append(s.observers, o)
}

// State returns a copy of the current cart with derived totals.
func (s *Store) State() domain.CartState {
	st := s.state
	st.Items = s.snapshot()
	return st
}

// AddItem merges into the existing line for the same product and variant or
// appends a new line. A merge that would pass MaxLineQuantity is refused.
func (s *Store) AddItem(ctx context.Context, c Candidate) error {
	if err := validateCandidate(c); err != nil {
		s.fail(ctx, err)
		return err
	}

	key := lineKey{productID: c.ProductID, variant: c.Variant}
	if pos, ok := s.index[key]; ok {
		if s.items[pos].Quantity > domain.MaxLineQuantity-c.Quantity {
			err := &domain.QuantityLimitError{Limit: domain.MaxLineQuantity}
			s.fail(ctx, err)
			return err
		}
		s.items[pos].Quantity += c.Quantity
		s.commit(ctx)
		s.notifier.Notify(ctx, Notification{Kind: KindAdded, LineID: s.items[pos].ID, Message: fmt.Sprintf("%s added to cart", displayName(c.Name))})
		return nil
	}

	now := s.now()
	line := domain.CartLineItem{
		ID:        lineID(c.ProductID, c.Variant, now),
		ProductID: c.ProductID,
		Variant:   c.Variant,
		Name:      c.Name,
		ImageRef:  c.ImageRef,
		UnitPrice: c.UnitPrice,
		Quantity:  c.Quantity,
		AddedAt:   now.UTC(),
	}
	s.items = append(s.items, line)
	s.index[key] = len(s.items) - 1
	s.commit(ctx)
	s.notifier.Notify(ctx, Notification{Kind: KindAdded, LineID: line.ID, Message: fmt.Sprintf("%s added to cart", displayName(c.Name))})
	return nil
}

// RemoveItem drops the line with the given id. Unknown ids leave the cart as
// it was and notify nothing.
func (s *Store) RemoveItem(ctx context.Context, id string) {
	var (
		removed domain.CartLineItem
		found   bool
	)
	kept := s.items[:0:0]
	for _, it := range s.items {
		if it.ID == id {
			removed, found = it, true
			continue
		}
		kept = append(kept, it)
	}
	s.items = kept
	s.reindex()
	s.commit(ctx)
	if found {
		s.notifier.Notify(ctx, Notification{Kind: KindRemoved, LineID: removed.ID, Message: fmt.Sprintf("%s removed from cart", displayName(removed.Name))})
	}
}

// SetQuantity sets an absolute quantity. Zero or less removes the line; more
// than MaxLineQuantity is refused.
func (s *Store) SetQuantity(ctx context.Context, id string, quantity int) error {
	if quantity <= 0 {
		s.RemoveItem(ctx, id)
		return nil
	}
	if quantity > domain.MaxLineQuantity {
		err := &domain.QuantityLimitError{Limit: domain.MaxLineQuantity}
		s.fail(ctx, err)
		return err
	}
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Quantity = quantity
			break
		}
	}
	s.commit(ctx)
	return nil
}

func (s *Store) Clear(ctx context.Context) {
	s.items = nil
	s.reindex()
	s.commit(ctx)
	s.notifier.Notify(ctx, Notification{Kind: KindCleared, Message: "Cart cleared"})
}

// Load replaces the whole list without notifying observers. Lines that break
// the cart invariants are dropped and duplicates are merged up to
// MaxLineQuantity.
func (s *Store) Load(items []domain.CartLineItem) {
	s.items = nil
	s.index = make(map[lineKey]int, len(items))
	for _, it := range items {
		if it.ProductID == "" || it.Quantity < 1 || it.Quantity > domain.MaxLineQuantity || it.UnitPrice.IsNegative() {
			continue
		}
		key := lineKey{productID: it.ProductID, variant: it.Variant}
		if pos, ok := s.index[key]; ok {
			s.items[pos].Quantity = min(s.items[pos].Quantity+it.Quantity, domain.MaxLineQuantity)
			continue
		}
		s.items = append(s.items, it)
		s.index[key] = len(s.items) - 1
	}
	s.state = domain.Recompute(s.snapshot())
}

func (s *Store) fail(ctx context.Context, err error) {
	s.notifier.Notify(ctx, Notification{Kind: KindError, Message: err.Error()})
}

func (s *Store) commit(ctx context.Context) {
	s.state = domain.Recompute(s.snapshot())
	for _, o := range s.observers {
		o(ctx, s.snapshot())
	}
}

func (s *Store) reindex() {
	s.index = make(map[lineKey]int, len(s.items))
	for i, it := range s.items {
		s.index[lineKey{productID: it.ProductID, variant: it.Variant}] = i
	}
}

func (s *Store) snapshot() []domain.CartLineItem {
	out := make([]domain.CartLineItem, len(s.items))
	copy(out, s.items)
	return out
}

func validateCandidate(c Candidate) error {
	if c.Quantity < 1 {
		return domain.ErrInvalidQuantity
	}
	if c.Quantity > domain.MaxLineQuantity {
		return &domain.QuantityLimitError{Limit: domain.MaxLineQuantity}
	}
	if strings.TrimSpace(c.ProductID) == "" {
		return fmt.Errorf("product id required: %w", domain.ErrInvalidLineItem)
	}
	if c.UnitPrice.IsNegative() {
		return fmt.Errorf("negative unit price: %w", domain.ErrInvalidLineItem)
	}
	return nil
}

func lineID(productID, variant string, at time.Time) string {
	if variant == "" {
		variant = domain.DefaultVariant
	}
	return fmt.Sprintf("%s_%s_%d", productID, variant, at.UnixNano())
}

func displayName(name string) string {
	if name != "" {
		return name
	}
	return "item"
}
