package order

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/repository/product"
	"storefront/internal/repository/user"
)

// Step names one write of the order commit saga.
type Step string

const (
	StepWriteOrder Step = "write_order"
	StepStock      Step = "stock"
	StepUserAppend Step = "user_append"
)

// FaultFunc is consulted before each saga step. A non-nil error aborts the
// commit as if the process failed at that point; already applied steps are
// compensated.
type FaultFunc func(step Step, subject string) error

// Memory keeps products, users and orders in process memory. Commits run as a
// saga with compensating undo, serialized by one mutex.
type Memory struct {
	mu       sync.Mutex
	products map[string]*domain.Product
	keys     map[string]string
	users    map[string]*domain.User
	orders   map[string]*domain.Order
	seq      []string
	fault    FaultFunc
	now      func() time.Time
	logger   *zap.Logger
}

func NewMemory(logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		products: make(map[string]*domain.Product),
		keys:     make(map[string]string),
		users:    make(map[string]*domain.User),
		orders:   make(map[string]*domain.Order),
		now:      time.Now,
		logger:   logger,
	}
}

// SetFault installs a fault hook. Passing nil removes it.
func (m *Memory) SetFault(f FaultFunc) {
	m.mu.Lock()
	m.fault = f
	m.mu.Unlock()
}

// Catalog returns the product view over the shared state.
func (m *Memory) Catalog() product.Repository {
	return &memoryCatalog{m: m}
}

// Users returns the user view over the shared state.
func (m *Memory) Users() user.Repository {
	return &memoryUsers{m: m}
}

func (m *Memory) CreateOrderAtomic(ctx context.Context, order domain.Order, deltas []domain.StockDelta, appendTo string) (*domain.Order, error) {
	if err := domain.ValidateDeltas(deltas); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}
	step := func(s Step, subject string, apply func() (func(), error)) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.fault != nil {
			if err := m.fault(s, subject); err != nil {
				return fmt.Errorf("%s %s: %w", s, subject, err)
			}
		}
		compensate, err := apply()
		if err != nil {
			return err
		}
		undo = append(undo, compensate)
		return nil
	}

	order.CreatedAt = m.now().UTC()
	err := step(StepWriteOrder, order.ID, func() (func(), error) {
		if _, exists := m.orders[order.ID]; exists {
			return nil, fmt.Errorf("order %s: %w", order.ID, domain.ErrAlreadyExists)
		}
		stored := copyOrder(order)
		m.orders[order.ID] = &stored
		m.seq = append(m.seq, order.ID)
		return func() {
			delete(m.orders, order.ID)
			m.seq = m.seq[:len(m.seq)-1]
		}, nil
	})

	for i := 0; err == nil && i < len(deltas); i++ {
		d := deltas[i]
		err = step(StepStock, d.ProductID, func() (func(), error) {
			p, ok := m.products[d.ProductID]
			if !ok {
				return nil, fmt.Errorf("product %s: %w", d.ProductID, domain.ErrNotFound)
			}
			if p.Stock < d.Quantity {
				return nil, &domain.OutOfStockError{ProductID: d.ProductID, Requested: d.Quantity, Available: p.Stock}
			}
			p.Stock -= d.Quantity
			p.Sold += d.Quantity
			return func() {
				p.Stock += d.Quantity
				p.Sold -= d.Quantity
			}, nil
		})
	}

	if err == nil {
		err = step(StepUserAppend, appendTo, func() (func(), error) {
			u, ok := m.users[appendTo]
			if !ok {
				return nil, fmt.Errorf("user %s: %w", appendTo, domain.ErrNotFound)
			}
			prev := u.OrderIDs
			u.OrderIDs = append(append([]string{}, prev...), order.ID)
			return func() { u.OrderIDs = prev }, nil
		})
	}

	if err != nil {
		rollback()
		m.logger.Warn("order memory: commit rolled back",
			zap.String("order_id", order.ID),
			zap.Int("compensated", len(undo)),
			zap.Error(err))
		return nil, err
	}
	out := copyOrder(order)
	return &out, nil
}

func (m *Memory) UpdateStatus(_ context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if o.Status != from {
		return nil, fmt.Errorf("order %s is %s, expected %s: %w", id, o.Status, from, domain.ErrInvalidStatusTransition)
	}
	now := m.now().UTC()
	o.Status = to
	o.UpdatedAt = &now
	out := copyOrder(*o)
	return &out, nil
}

func (m *Memory) GetByID(_ context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := copyOrder(*o)
	return &out, nil
}

func (m *Memory) List(_ context.Context, userID string) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Order, 0, len(m.seq))
	for i := len(m.seq) - 1; i >= 0; i-- {
		o := m.orders[m.seq[i]]
		if userID != "" && o.UserID != userID {
			continue
		}
		out = append(out, copyOrder(*o))
	}
	return out, nil
}

func copyOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem{}, o.Items...)
	if o.UpdatedAt != nil {
		t := *o.UpdatedAt
		o.UpdatedAt = &t
	}
	return o
}

type memoryCatalog struct {
	m *Memory
}

func (c *memoryCatalog) List(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	out := make([]domain.Product, 0, len(c.m.products))
	for _, p := range c.m.products {
		if filter.Brand != "" && !strings.EqualFold(p.Brand, strings.TrimSpace(filter.Brand)) {
			continue
		}
		if filter.InStock && p.Stock <= 0 {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (c *memoryCatalog) GetByID(_ context.Context, id string) (*domain.Product, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	p, ok := c.m.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (c *memoryCatalog) Upsert(_ context.Context, p domain.Product) (*domain.Product, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if id, ok := c.m.keys[p.Key]; ok {
		existing := c.m.products[id]
		if p.ID != "" && p.ID != id {
			return nil, fmt.Errorf("product repo: id mismatch for key=%s existing_id=%s import_id=%s", p.Key, id, p.ID)
		}
		existing.Name = p.Name
		existing.Description = p.Description
		existing.Brand = p.Brand
		existing.ImageRef = p.ImageRef
		existing.Price = p.Price.Round(2)
		existing.Stock += p.Stock
		out := *existing
		return &out, nil
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Price = p.Price.Round(2)
	p.Sold = 0
	p.CreatedAt = c.m.now().UTC()
	stored := p
	c.m.products[p.ID] = &stored
	c.m.keys[p.Key] = p.ID
	return &p, nil
}

type memoryUsers struct {
	m *Memory
}

func (u *memoryUsers) Ensure(_ context.Context, in domain.User) (*domain.User, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, domain.ErrUnauthenticated
	}
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	existing, ok := u.m.users[in.ID]
	if !ok {
		existing = &domain.User{ID: in.ID, OrderIDs: []string{}, CreatedAt: u.m.now().UTC()}
		u.m.users[in.ID] = existing
	}
	if in.Email != "" {
		existing.Email = strings.ToLower(in.Email)
	}
	if in.DisplayName != "" {
		existing.DisplayName = in.DisplayName
	}
	out := *existing
	out.OrderIDs = append([]string{}, existing.OrderIDs...)
	return &out, nil
}

func (u *memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	existing, ok := u.m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *existing
	out.OrderIDs = append([]string{}, existing.OrderIDs...)
	return &out, nil
}
