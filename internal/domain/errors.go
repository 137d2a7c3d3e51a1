package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness conflict.
	ErrAlreadyExists = errors.New("already exists")

	ErrUnauthenticated    = errors.New("please sign in")
	ErrForbidden          = errors.New("admin capability required")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrInvalidLineItem    = errors.New("invalid line item")
	ErrMissingField       = errors.New("missing required field")
	ErrTotalMismatch      = errors.New("cart total does not match items")
	ErrOutOfStock         = errors.New("out of stock")
	ErrCommitFailed       = errors.New("order could not be placed")
	ErrCheckoutInProgress = errors.New("checkout already in progress")

	ErrInvalidStatus           = errors.New("unknown order status")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
)

// InvalidLineItemError reports which cart line failed validation.
type InvalidLineItemError struct {
	Index  int
	Reason string
}

func (e *InvalidLineItemError) Error() string {
	return fmt.Sprintf("invalid line item at index %d: %s", e.Index, e.Reason)
}

func (e *InvalidLineItemError) Is(target error) bool {
	return target == ErrInvalidLineItem
}

// QuantityLimitError is returned when a line would hold more than Limit units.
type QuantityLimitError struct {
	Limit int
}

func (e *QuantityLimitError) Error() string {
	return fmt.Sprintf("quantity limited to %d per line", e.Limit)
}

func (e *QuantityLimitError) Is(target error) bool {
	return target == ErrInvalidQuantity
}

// MissingFieldError names a required submission field that was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// OutOfStockError is returned when a line cannot be satisfied from stock.
type OutOfStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	if e.Available < 0 {
		return fmt.Sprintf("out of stock: product %s, requested %d", e.ProductID, e.Requested)
	}
	return fmt.Sprintf("out of stock: product %s, requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *OutOfStockError) Is(target error) bool {
	return target == ErrOutOfStock
}

// CommitError wraps a store failure during the atomic order commit.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("%s: %v", ErrCommitFailed.Error(), e.Err)
}

func (e *CommitError) Is(target error) bool {
	return target == ErrCommitFailed
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
