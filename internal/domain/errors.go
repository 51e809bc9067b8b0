package domain

import (
	"errors"
	"fmt"
)

var (
	ErrVariantNotFound     = errors.New("variant not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidID           = errors.New("invalid id")
	ErrSessionRequired     = errors.New("session id required")
	ErrCheckoutEmpty       = errors.New("checkout has no items")
	ErrSKURequired         = errors.New("sku required")
	ErrSKUAlreadyExists    = errors.New("sku already exists")
	ErrVariantNameRequired = errors.New("variant name required")
	ErrInvalidStock        = errors.New("invalid stock amount")
)

// InsufficientStockError carries the requested and available amounts so
// callers can build a useful message. It matches ErrInsufficientStock under
// errors.Is.
type InsufficientStockError struct {
	VariantID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s: requested %d, available %d",
		e.VariantID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
