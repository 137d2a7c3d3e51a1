package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/audit"
	"storefront/internal/domain"
	ordersvc "storefront/internal/service/order"
)

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *handlers) listMyOrders(c *gin.Context) {
	userID := c.GetString(ctxUserID)
	if userID == "" {
		writeError(c, domain.ErrUnauthenticated)
		return
	}
	h.writeOrders(c, userID)
}

func (h *handlers) getMyOrder(c *gin.Context) {
	userID := c.GetString(ctxUserID)
	if userID == "" {
		writeError(c, domain.ErrUnauthenticated)
		return
	}
	o, err := h.deps.OrderSvc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	// Other users' orders are reported as missing.
	if o.UserID != userID {
		writeError(c, domain.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, toOrderView(*o))
}

func (h *handlers) listAllOrders(c *gin.Context) {
	h.writeOrders(c, strings.TrimSpace(c.Query("userId")))
}

type orderWithHistory struct {
	orderView
	History []audit.Entry `json:"history"`
}

func (h *handlers) getOrderWithHistory(c *gin.Context) {
	id := c.Param("id")
	o, err := h.deps.OrderSvc.GetOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	history, err := h.deps.OrderSvc.History(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderWithHistory{orderView: toOrderView(*o), History: history})
}

func (h *handlers) updateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Status) == "" {
		badRequest(c, "status required")
		return
	}
	actor, _ := c.Get(ctxActor)
	a, ok := actor.(ordersvc.Actor)
	if !ok {
		writeError(c, errors.New("actor missing from context"))
		return
	}
	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	o, err := h.deps.OrderSvc.UpdateStatus(c.Request.Context(), a, c.Param("id"), status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderView(*o))
}

func (h *handlers) writeOrders(c *gin.Context, userID string) {
	orders, err := h.deps.OrderSvc.ListOrders(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, toOrderView(o))
	}
	c.JSON(http.StatusOK, newList(views))
}
