package cart

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
	// ErrInvariant reports stored data that breaks a cart invariant, such as a
	// line whose product no longer resolves.
	ErrInvariant = errors.New("cart invariant violated")
)

// NotFoundError names what could not be resolved: either a set of product ids
// or a cart identifier.
type NotFoundError struct {
	ProductIDs []int64
	Cart       string
}

func (e *NotFoundError) Error() string {
	if len(e.ProductIDs) > 0 {
		ids := make([]string, len(e.ProductIDs))
		for i, id := range e.ProductIDs {
			ids[i] = fmt.Sprint(id)
		}
		return fmt.Sprintf("products not found: %s", strings.Join(ids, ", "))
	}
	return fmt.Sprintf("cart not found: %s", e.Cart)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.ProductName, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
