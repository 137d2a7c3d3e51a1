package httpserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
)

func (h *handlers) listProducts(c *gin.Context) {
	filter := domain.ProductFilter{Brand: c.Query("brand")}
	if v := c.Query("inStock"); v != "" {
		inStock, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "inStock must be a boolean")
			return
		}
		filter.InStock = inStock
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	products, err := h.deps.ProductSvc.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, toProductView(p))
	}
	c.JSON(http.StatusOK, newList(views))
}

func (h *handlers) getProduct(c *gin.Context) {
	p, err := h.deps.ProductSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductView(*p))
}
