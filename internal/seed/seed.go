package seed

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

type productStore interface {
	List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

type userStore interface {
	Ensure(ctx context.Context, u domain.User) (*domain.User, error)
}

// DemoUserID is the account the seed creates for manual checkout testing.
const DemoUserID = "demo-user"

type productSeed struct {
	Key         string
	Name        string
	Description string
	Brand       string
	ImageRef    string
	Price       string
	Stock       int
}

var demoProducts = []productSeed{
	{
		Key:         "demo-shirt",
		Name:        "Demo T-Shirt",
		Description: "Soft cotton tee for demo purposes",
		Brand:       "Demo",
		ImageRef:    "images/demo-shirt.jpg",
		Price:       "19.99",
		Stock:       25,
	},
	{
		Key:         "demo-mug",
		Name:        "Demo Mug",
		Description: "Ceramic mug with demo logo",
		Brand:       "Demo",
		ImageRef:    "images/demo-mug.jpg",
		Price:       "12.99",
		Stock:       40,
	},
	{
		Key:         "demo-cap",
		Name:        "Demo Cap",
		Description: "Limited run, sells out fast",
		Brand:       "Acme",
		ImageRef:    "images/demo-cap.jpg",
		Price:       "15.00",
		Stock:       3,
	},
}

// Apply inserts demo products and the demo user. Products that already exist
// are left alone so reruns do not restock them.
func Apply(ctx context.Context, products productStore, users userStore, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	existing, err := products.List(ctx, domain.ProductFilter{})
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, p := range existing {
		have[p.Key] = true
	}

	for _, s := range demoProducts {
		if have[s.Key] {
			logger.Debug("seed: product exists", zap.String("key", s.Key))
			continue
		}
		if _, err := products.Upsert(ctx, domain.Product{
			Key:         s.Key,
			Name:        s.Name,
			Description: s.Description,
			Brand:       s.Brand,
			ImageRef:    s.ImageRef,
			Price:       decimal.RequireFromString(s.Price),
			Stock:       s.Stock,
		}); err != nil {
			return fmt.Errorf("upsert product %s: %w", s.Key, err)
		}
	}

	if _, err := users.Ensure(ctx, domain.User{
		ID:          DemoUserID,
		Email:       "demo@example.com",
		DisplayName: "Demo Shopper",
	}); err != nil {
		return fmt.Errorf("ensure demo user: %w", err)
	}

	logger.Info("seed: applied", zap.Int("products", len(demoProducts)))
	return nil
}
