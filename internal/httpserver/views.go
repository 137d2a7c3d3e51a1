package httpserver

import (
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	cartsvc "storefront/internal/service/cart"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type productView struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Brand       string `json:"brand,omitempty"`
	ImageRef    string `json:"imageRef,omitempty"`
	Price       string `json:"price"`
	Stock       int    `json:"stock"`
	InStock     bool   `json:"inStock"`
}

func toProductView(p domain.Product) productView {
	return productView{
		ID:          p.ID,
		Key:         p.Key,
		Name:        p.Name,
		Description: p.Description,
		Brand:       p.Brand,
		ImageRef:    p.ImageRef,
		Price:       money(p.Price),
		Stock:       p.Stock,
		InStock:     p.Stock > 0,
	}
}

type lineView struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Variant   string    `json:"variant,omitempty"`
	Name      string    `json:"name,omitempty"`
	ImageRef  string    `json:"imageRef,omitempty"`
	UnitPrice string    `json:"unitPrice"`
	Quantity  int       `json:"quantity"`
	LineTotal string    `json:"lineTotal"`
	AddedAt   time.Time `json:"addedAt"`
}

type cartView struct {
	SessionID     string                 `json:"sessionId"`
	UserID        string                 `json:"userId,omitempty"`
	Items         []lineView             `json:"items"`
	ItemCount     int                    `json:"itemCount"`
	Subtotal      string                 `json:"subtotal"`
	Tax           string                 `json:"tax"`
	Total         string                 `json:"total"`
	Notifications []cartsvc.Notification `json:"notifications,omitempty"`
}

func toCartView(sess *cartsvc.Session, taxRate float64) cartView {
	sum := sess.Summary(taxRate)
	items := make([]lineView, 0, len(sum.Items))
	for _, it := range sum.Items {
		items = append(items, lineView{
			ID:        it.ID,
			ProductID: it.ProductID,
			Variant:   it.Variant,
			Name:      it.Name,
			ImageRef:  it.ImageRef,
			UnitPrice: money(it.UnitPrice),
			Quantity:  it.Quantity,
			LineTotal: money(it.LineTotal()),
			AddedAt:   it.AddedAt,
		})
	}
	return cartView{
		SessionID:     sess.ID,
		UserID:        sess.UserID(),
		Items:         items,
		ItemCount:     sum.ItemCount,
		Subtotal:      money(sum.Subtotal),
		Tax:           money(sum.Tax),
		Total:         money(sum.Total),
		Notifications: sess.Notifications(),
	}
}

type orderItemView struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	UnitPrice string `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	ImageRef  string `json:"imageRef,omitempty"`
}

type orderView struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Email     string          `json:"email,omitempty"`
	Items     []orderItemView `json:"items"`
	Total     string          `json:"total"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
}

func toOrderView(o domain.Order) orderView {
	items := make([]orderItemView, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemView{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: money(it.UnitPrice),
			Quantity:  it.Quantity,
			ImageRef:  it.ImageRef,
		})
	}
	return orderView{
		ID:        o.ID,
		UserID:    o.UserID,
		Email:     o.Email,
		Items:     items,
		Total:     money(o.Total),
		Status:    o.Status.String(),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

type listResponse[T any] struct {
	Results []T `json:"results"`
	Total   int `json:"total"`
}

func newList[T any](results []T) listResponse[T] {
	if results == nil {
		results = []T{}
	}
	return listResponse[T]{Results: results, Total: len(results)}
}
