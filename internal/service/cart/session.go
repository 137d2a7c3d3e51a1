package cart

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/repository/cartstore"
	"storefront/internal/service/identity"
	"storefront/internal/service/order"
)

// OrderPlacer commits a checkout submission.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, sub order.Submission) (string, error)
}

// Summary is the cart view shown before checkout.
type Summary struct {
	Items     []domain.CartLineItem `json:"items"`
	ItemCount int                   `json:"itemCount"`
	Subtotal  decimal.Decimal       `json:"subtotal"`
	Tax       decimal.Decimal       `json:"tax"`
	Total     decimal.Decimal       `json:"total"`
}

// Session owns one client's cart, its persistence and its identity. All
// operations on a session run one at a time.
type Session struct {
	ID string

	mu          sync.Mutex
	store       *Store
	persister   *Persister
	identity    *identity.Signal
	notes       *Recorder
	checkingOut atomic.Bool
	lastSeen    atomic.Int64
}

func newSession(ctx context.Context, id string, backend cartstore.Backend, logger *zap.Logger) *Session {
	notes := NewRecorder(NewLogNotifier(logger.With(zap.String("session_id", id))))
	store := NewStore(notes)
	s := &Session{
		ID:        id,
		store:     store,
		persister: NewPersister(store, backend, id, logger.With(zap.String("session_id", id))),
		identity:  identity.NewSignal(),
		notes:     notes,
	}
	s.identity.Subscribe(s.persister.OnIdentityChange)
	s.persister.OnIdentityChange(ctx, identity.Anonymous)
	return s
}

// Identify aligns the session with the caller's identity. Switching identity
// swaps in that identity's stored cart.
func (s *Session) Identify(ctx context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID == identity.Anonymous {
		s.identity.SignOut(ctx)
		return
	}
	s.identity.SignIn(ctx, userID)
}

func (s *Session) UserID() string {
	return s.identity.Current()
}

func (s *Session) AddItem(ctx context.Context, c Candidate) (domain.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.store.AddItem(ctx, c)
	return s.store.State(), err
}

func (s *Session) RemoveItem(ctx context.Context, lineID string) domain.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.RemoveItem(ctx, lineID)
	return s.store.State()
}

func (s *Session) SetQuantity(ctx context.Context, lineID string, quantity int) (domain.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.store.SetQuantity(ctx, lineID, quantity)
	return s.store.State(), err
}

func (s *Session) Clear(ctx context.Context) domain.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Clear(ctx)
	return s.store.State()
}

func (s *Session) State() domain.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.State()
}

// Summary adds a flat-rate tax estimate, rounded to cents, to the cart total.
func (s *Session) Summary(taxRate float64) Summary {
	st := s.State()
	tax := st.Total.Mul(decimal.NewFromFloat(taxRate)).Round(2)
	return Summary{
		Items:     st.Items,
		ItemCount: st.ItemCount,
		Subtotal:  st.Total,
		Tax:       tax,
		Total:     st.Total.Add(tax),
	}
}

// Notifications drains the messages produced since the last call.
func (s *Session) Notifications() []Notification {
	return s.notes.Drain()
}

// Checkout submits the current cart. The cart is cleared only when the order
// was placed; a second checkout while one is running is refused.
func (s *Session) Checkout(ctx context.Context, placer OrderPlacer, email string) (string, error) {
	if !s.checkingOut.CompareAndSwap(false, true) {
		return "", domain.ErrCheckoutInProgress
	}
	defer s.checkingOut.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.store.State()
	total := st.Total
	id, err := placer.PlaceOrder(ctx, order.Submission{
		UserID: s.identity.Current(),
		Email:  email,
		Items:  st.Items,
		Total:  &total,
	})
	if err != nil {
		return "", err
	}
	s.store.Clear(ctx)
	return id, nil
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

// Manager issues sessions and expires idle ones.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	backend  cartstore.Backend
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewManager(backend cartstore.Backend, ttl time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		backend:  backend,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// Start opens an anonymous session.
func (m *Manager) Start(ctx context.Context) *Session {
	s := newSession(ctx, uuid.NewString(), m.backend, m.logger)
	s.touch(m.now())
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.logger.Debug("cart session started", zap.String("session_id", s.ID))
	return s
}

// Get returns a live session and refreshes its idle timer.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	now := m.now()
	if m.ttl > 0 && s.idleSince(now) > m.ttl {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	s.touch(now)
	return s, nil
}

// Sweep drops every session idle for longer than the TTL and reports how many
// were removed. Carts stay in the backend.
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.idleSince(now) > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps periodically until ctx is done.
func (m *Manager) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Info("cart sessions expired", zap.Int("count", n))
			}
		}
	}
}
