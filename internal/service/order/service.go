package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/audit"
	"storefront/internal/domain"
	orderrepo "storefront/internal/repository/order"
)

const (
	defaultCommitTimeout = 15 * time.Second
	historyLimit         = 50
)

var allowedTransitions = map[domain.OrderStatus]map[domain.OrderStatus]bool{
	domain.OrderPending: {
		domain.OrderShipped:   true,
		domain.OrderCancelled: true,
	},
	domain.OrderShipped: {
		domain.OrderDelivered: true,
		domain.OrderCancelled: true,
	},
}

type catalog interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

// Submission is a checkout request. Total is a pointer so an absent total can
// be told apart from zero.
type Submission struct {
	UserID string
	Email  string
	Items  []domain.CartLineItem
	Total  *decimal.Decimal
}

// Actor is whoever asks for a status change.
type Actor struct {
	UserID string
	Admin  bool
}

type Options struct {
	CommitTimeout time.Duration
}

type Service struct {
	orders        orderrepo.Repository
	catalog       catalog
	audit         audit.Recorder
	logger        *zap.Logger
	commitTimeout time.Duration
	newID         func() string
	pending       sync.WaitGroup
}

func New(orders orderrepo.Repository, products catalog, recorder audit.Recorder, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = audit.Nop()
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = defaultCommitTimeout
	}
	return &Service{
		orders:        orders,
		catalog:       products,
		audit:         recorder,
		logger:        logger,
		commitTimeout: opts.CommitTimeout,
		newID:         uuid.NewString,
	}
}

// PlaceOrder validates the submission and commits the order, the stock
// decrements and the user's history append as one unit. Nothing is written
// unless every check passes.
func (s *Service) PlaceOrder(ctx context.Context, sub Submission) (string, error) {
	userID := strings.TrimSpace(sub.UserID)
	if userID == "" {
		return "", domain.ErrUnauthenticated
	}
	if len(sub.Items) == 0 {
		return "", domain.ErrEmptyCart
	}
	if sub.Total == nil {
		return "", &domain.MissingFieldError{Field: "total"}
	}

	// Catalog reads and the commit share one deadline.
	cctx, cancel := context.WithTimeout(ctx, s.commitTimeout)
	defer cancel()

	var (
		items     = make([]domain.OrderItem, 0, len(sub.Items))
		products  = make(map[string]*domain.Product)
		requested = make(map[string]int)
		seen      []string
	)
	for i, line := range sub.Items {
		if strings.TrimSpace(line.ProductID) == "" {
			return "", &domain.InvalidLineItemError{Index: i, Reason: "missing product id"}
		}
		if line.Quantity <= 0 {
			return "", &domain.InvalidLineItemError{Index: i, Reason: "quantity must be at least 1"}
		}
		if line.Quantity > domain.MaxLineQuantity {
			return "", &domain.InvalidLineItemError{Index: i, Reason: fmt.Sprintf("quantity above %d", domain.MaxLineQuantity)}
		}
		if line.UnitPrice.IsNegative() {
			return "", &domain.InvalidLineItemError{Index: i, Reason: "negative unit price"}
		}
		p, ok := products[line.ProductID]
		if !ok {
			var err error
			p, err = s.catalog.GetByID(cctx, line.ProductID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return "", &domain.InvalidLineItemError{Index: i, Reason: "unknown product"}
				}
				s.logger.Warn("order: catalog lookup failed", zap.String("product_id", line.ProductID), zap.Error(err))
				return "", &domain.CommitError{Err: fmt.Errorf("load product %s: %w", line.ProductID, err)}
			}
			products[line.ProductID] = p
			seen = append(seen, line.ProductID)
		}
		name := line.Name
		if name == "" {
			name = p.Name
		}
		items = append(items, domain.OrderItem{
			ProductID: line.ProductID,
			Name:      name,
			UnitPrice: line.UnitPrice.Round(2),
			Quantity:  line.Quantity,
			ImageRef:  line.ImageRef,
		})
		requested[line.ProductID] += line.Quantity
	}

	total := domain.ItemsTotal(items)
	if !total.Round(2).Equal(sub.Total.Round(2)) {
		return "", fmt.Errorf("submitted %s, computed %s: %w", sub.Total.StringFixed(2), total.StringFixed(2), domain.ErrTotalMismatch)
	}

	deltas := make([]domain.StockDelta, 0, len(seen))
	for _, id := range seen {
		qty := requested[id]
		if p := products[id]; qty > p.Stock {
			return "", &domain.OutOfStockError{ProductID: id, Requested: qty, Available: p.Stock}
		}
		deltas = append(deltas, domain.StockDelta{ProductID: id, Quantity: qty})
	}

	order := domain.Order{
		ID:     s.newID(),
		UserID: userID,
		Email:  strings.TrimSpace(sub.Email),
		Items:  items,
		Total:  total,
		Status: domain.OrderPending,
	}

	created, err := s.orders.CreateOrderAtomic(cctx, order, deltas, userID)
	if err != nil {
		s.logger.Warn("order: commit failed", zap.String("order_id", order.ID), zap.String("user_id", userID), zap.Error(err))
		if errors.Is(err, domain.ErrOutOfStock) || errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
		return "", &domain.CommitError{Err: err}
	}

	s.logger.Info("order: placed",
		zap.String("order_id", created.ID),
		zap.String("user_id", userID),
		zap.String("total", created.Total.StringFixed(2)))
	s.record(ctx, audit.Entry{
		Action:   audit.ActionOrderPlaced,
		EntityID: created.ID,
		ActorID:  userID,
		Data: map[string]interface{}{
			"total": created.Total.StringFixed(2),
			"lines": len(created.Items),
		},
	})
	return created.ID, nil
}

// UpdateStatus moves an order along its lifecycle. Setting the current status
// again is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, id string, status domain.OrderStatus) (*domain.Order, error) {
	if !actor.Admin {
		return nil, domain.ErrForbidden
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%q: %w", status, domain.ErrInvalidStatus)
	}

	current, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}
	if !allowedTransitions[current.Status][status] {
		s.logger.Warn("order: invalid status transition",
			zap.String("order_id", id),
			zap.String("from", current.Status.String()),
			zap.String("to", status.String()))
		return nil, fmt.Errorf("%s to %s: %w", current.Status, status, domain.ErrInvalidStatusTransition)
	}

	updated, err := s.orders.UpdateStatus(ctx, id, current.Status, status)
	if err != nil {
		return nil, err
	}
	s.logger.Info("order: status changed",
		zap.String("order_id", id),
		zap.String("from", current.Status.String()),
		zap.String("to", status.String()))
	s.record(ctx, audit.Entry{
		Action:   audit.ActionOrderStatusChanged,
		EntityID: id,
		ActorID:  actor.UserID,
		Data:     map[string]interface{}{"from": current.Status.String(), "to": status.String()},
	})
	return updated, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.orders.GetByID(ctx, id)
}

// ListOrders returns a user's orders newest first; an empty userID lists all.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.orders.List(ctx, userID)
}

// History returns the audit trail of an existing order, newest first.
func (s *Service) History(ctx context.Context, id string) ([]audit.Entry, error) {
	if _, err := s.orders.GetByID(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.audit.History(ctx, id, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load audit history %s: %w", id, err)
	}
	return entries, nil
}

// Wait blocks until queued audit writes have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) record(ctx context.Context, e audit.Entry) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.audit.Record(actx, e); err != nil {
			s.logger.Warn("order: audit write failed", zap.String("action", e.Action), zap.String("entity_id", e.EntityID), zap.Error(err))
		}
	}()
}
