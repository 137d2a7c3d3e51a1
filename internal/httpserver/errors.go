package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
)

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Index     *int   `json:"index,omitempty"`
	Field     string `json:"field,omitempty"`
	ProductID string `json:"productId,omitempty"`
	Available *int   `json:"available,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrOutOfStock, http.StatusConflict, "out_of_stock"},
	{domain.ErrCheckoutInProgress, http.StatusConflict, "checkout_in_progress"},
	{domain.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
	{domain.ErrAlreadyExists, http.StatusConflict, "already_exists"},
	{domain.ErrEmptyCart, http.StatusUnprocessableEntity, "empty_cart"},
	{domain.ErrInvalidQuantity, http.StatusUnprocessableEntity, "invalid_quantity"},
	{domain.ErrInvalidLineItem, http.StatusUnprocessableEntity, "invalid_line_item"},
	{domain.ErrMissingField, http.StatusUnprocessableEntity, "missing_field"},
	{domain.ErrTotalMismatch, http.StatusUnprocessableEntity, "total_mismatch"},
	{domain.ErrInvalidStatus, http.StatusUnprocessableEntity, "invalid_status"},
	{domain.ErrCommitFailed, http.StatusServiceUnavailable, "commit_failed"},
}

// writeError maps domain errors onto status codes. Unknown errors become a
// bare 500 so internals never reach the client.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		body := errorBody{Error: m.code, Message: err.Error()}
		if m.target == domain.ErrCommitFailed {
			body.Message = domain.ErrCommitFailed.Error()
		}
		var (
			lineErr  *domain.InvalidLineItemError
			fieldErr *domain.MissingFieldError
			stockErr *domain.OutOfStockError
		)
		switch {
		case errors.As(err, &lineErr):
			body.Index = &lineErr.Index
		case errors.As(err, &fieldErr):
			body.Field = fieldErr.Field
		case errors.As(err, &stockErr):
			body.ProductID = stockErr.ProductID
			if stockErr.Available >= 0 {
				body.Available = &stockErr.Available
			}
		}
		c.JSON(m.status, body)
		return
	}
	c.JSON(http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: "bad_request", Message: msg})
}
