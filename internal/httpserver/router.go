package httpserver

import (
	"context"
	"errors"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/audit"
	"storefront/internal/domain"
	cartsvc "storefront/internal/service/cart"
	ordersvc "storefront/internal/service/order"
	usersvc "storefront/internal/service/user"
)

const (
	headerSessionID = "X-Session-ID"
	headerUserID    = "X-User-ID"
	headerUserEmail = "X-User-Email"
	headerUserName  = "X-User-Name"
	headerAdminKey  = "X-Admin-Key"
)

type productService interface {
	List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
}

type cartService interface {
	AddProduct(ctx context.Context, sess *cartsvc.Session, in cartsvc.AddInput) (domain.CartState, error)
}

type sessionManager interface {
	Start(ctx context.Context) *cartsvc.Session
	Get(id string) (*cartsvc.Session, error)
}

type orderService interface {
	PlaceOrder(ctx context.Context, sub ordersvc.Submission) (string, error)
	UpdateStatus(ctx context.Context, actor ordersvc.Actor, id string, status domain.OrderStatus) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, userID string) ([]domain.Order, error)
	History(ctx context.Context, id string) ([]audit.Entry, error)
}

type userService interface {
	Identify(ctx context.Context, in usersvc.IdentifyInput) (*domain.User, error)
	IsAdmin(key string) bool
}

// Deps are the services the router dispatches to.
type Deps struct {
	ProductSvc  productService
	CartSvc     cartService
	Sessions    sessionManager
	OrderSvc    orderService
	UserSvc     userService
	TaxRate     float64
	CORSOrigins []string
	Readiness   map[string]Pinger
}

func (d Deps) validate() error {
	switch {
	case d.ProductSvc == nil:
		return errors.New("httpserver: product service required")
	case d.CartSvc == nil:
		return errors.New("httpserver: cart service required")
	case d.Sessions == nil:
		return errors.New("httpserver: session manager required")
	case d.OrderSvc == nil:
		return errors.New("httpserver: order service required")
	case d.UserSvc == nil:
		return errors.New("httpserver: user service required")
	}
	return nil
}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.Logger, deps Deps) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	router := gin.New()
	router.Use(loggerMiddleware(logger), gin.Recovery(), cors.New(corsConfig(deps.CORSOrigins)))

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.Readiness))

	h := &handlers{deps: deps, logger: logger}

	router.POST("/sessions", h.startSession)

	router.GET("/products", h.listProducts)
	router.GET("/products/:id", h.getProduct)

	cart := router.Group("/", sessionMiddleware(deps.Sessions), identityMiddleware(deps.UserSvc))
	cart.GET("/cart", h.getCart)
	cart.POST("/cart/items", h.addCartItem)
	cart.PATCH("/cart/items/:lineId", h.updateCartItem)
	cart.DELETE("/cart/items/:lineId", h.removeCartItem)
	cart.DELETE("/cart", h.clearCart)
	cart.POST("/checkout", h.checkout)

	orders := router.Group("/orders", identityMiddleware(deps.UserSvc))
	orders.GET("", h.listMyOrders)
	orders.GET("/:id", h.getMyOrder)

	admin := router.Group("/admin", adminMiddleware(deps.UserSvc))
	admin.GET("/orders", h.listAllOrders)
	admin.GET("/orders/:id", h.getOrderWithHistory)
	admin.PATCH("/orders/:id/status", h.updateOrderStatus)

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", headerSessionID, headerUserID, headerUserEmail, headerUserName, headerAdminKey},
		ExposeHeaders: []string{headerSessionID},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

type handlers struct {
	deps   Deps
	logger *zap.Logger
}
