package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	cartsvc "storefront/internal/service/cart"
)

type updateLineRequest struct {
	Quantity *int `json:"quantity"`
}

type checkoutRequest struct {
	Email string `json:"email"`
}

func (h *handlers) startSession(c *gin.Context) {
	sess := h.deps.Sessions.Start(c.Request.Context())
	c.Header(headerSessionID, sess.ID)
	c.JSON(http.StatusCreated, gin.H{"sessionId": sess.ID})
}

func (h *handlers) getCart(c *gin.Context) {
	sess, _ := sessionFrom(c)
	c.JSON(http.StatusOK, toCartView(sess, h.deps.TaxRate))
}

func (h *handlers) addCartItem(c *gin.Context) {
	sess, _ := sessionFrom(c)
	var req cartsvc.AddInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if _, err := h.deps.CartSvc.AddProduct(c.Request.Context(), sess, req); err != nil {
		// The store already emitted its notification; drop it with the error.
		sess.Notifications()
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartView(sess, h.deps.TaxRate))
}

func (h *handlers) updateCartItem(c *gin.Context) {
	sess, _ := sessionFrom(c)
	var req updateLineRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity == nil {
		badRequest(c, "quantity required")
		return
	}
	if _, err := sess.SetQuantity(c.Request.Context(), c.Param("lineId"), *req.Quantity); err != nil {
		sess.Notifications()
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartView(sess, h.deps.TaxRate))
}

func (h *handlers) removeCartItem(c *gin.Context) {
	sess, _ := sessionFrom(c)
	sess.RemoveItem(c.Request.Context(), c.Param("lineId"))
	c.JSON(http.StatusOK, toCartView(sess, h.deps.TaxRate))
}

func (h *handlers) clearCart(c *gin.Context) {
	sess, _ := sessionFrom(c)
	sess.Clear(c.Request.Context())
	c.JSON(http.StatusOK, toCartView(sess, h.deps.TaxRate))
}

func (h *handlers) checkout(c *gin.Context) {
	sess, _ := sessionFrom(c)
	var req checkoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	orderID, err := sess.Checkout(c.Request.Context(), h.deps.OrderSvc, req.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	h.logger.Info("checkout completed", zap.String("session_id", sess.ID), zap.String("order_id", orderID), zap.String("user_id", sess.UserID()))
	c.JSON(http.StatusCreated, gin.H{"orderId": orderID})
}
