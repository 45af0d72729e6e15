package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a missing product, order, user or category.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when a conditional write observed a
	// stale version. Callers may re-read current state and retry; every
	// other error in this package requires fixing input or state first.
	ErrVersionConflict = errors.New("concurrent update detected, please retry")
)

// ValidationError marks malformed or missing input.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// InsufficientStockError is returned when a requested quantity exceeds the
// available stock. Available carries the quantity on hand for diagnostics.
type InsufficientStockError struct {
	ProductName string
	Requested   int
	Available   int
}

func (e InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (Available: %d)", e.ProductName, e.Available)
}

// InvalidTransitionError marks a disallowed order status change.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}
