package cart

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/repository/cartstore"
)

const (
	keyPrefix    = "cart_"
	anonymousKey = keyPrefix + "anonymous"
	saveTimeout  = 5 * time.Second
)

// Key is the storage key for an identity's cart.
func Key(userID string) string {
	if userID == "" {
		return anonymousKey
	}
	return keyPrefix + userID
}

// Persister mirrors a Store into a cartstore.Backend. Writes are full-list
// overwrites on every mutation; reads happen when the identity changes.
type Persister struct {
	store   *Store
	backend cartstore.Backend
	scope   string
	key     string
	logger  *zap.Logger
}

// NewPersister attaches to store. scope namespaces the anonymous cart so two
// anonymous sessions never share one; signed-in carts are global per user.
func NewPersister(store *Store, backend cartstore.Backend, scope string, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Persister{
		store:   store,
		backend: backend,
		scope:   scope,
		logger:  logger,
	}
	p.key = p.storageKey("")
	store.Subscribe(p.save)
	return p
}

// StorageKey is the key currently written to.
func (p *Persister) StorageKey() string {
	return p.key
}

// OnIdentityChange loads the cart of the new identity into the store. The
// previous identity's cart stays where it was written.
func (p *Persister) OnIdentityChange(ctx context.Context, userID string) {
	p.key = p.storageKey(userID)
	p.store.Load(p.restore(ctx))
}

func (p *Persister) restore(ctx context.Context) []domain.CartLineItem {
	payload, err := p.backend.Load(ctx, p.key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.logger.Warn("cart restore: load failed, starting empty", zap.String("key", p.key), zap.Error(err))
		}
		return nil
	}
	var items []domain.CartLineItem
	if err := json.Unmarshal(payload, &items); err != nil {
		p.logger.Warn("cart restore: unreadable snapshot, starting empty", zap.String("key", p.key), zap.Error(err))
		return nil
	}
	return items
}

func (p *Persister) save(ctx context.Context, items []domain.CartLineItem) {
	payload, err := json.Marshal(items)
	if err != nil {
		p.logger.Error("cart save: encode", zap.String("key", p.key), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := p.backend.Save(ctx, p.key, payload); err != nil {
		p.logger.Error("cart save: write failed", zap.String("key", p.key), zap.Error(err))
	}
}

func (p *Persister) storageKey(userID string) string {
	if userID == "" && p.scope != "" {
		return p.scope + "/" + anonymousKey
	}
	return Key(userID)
}
