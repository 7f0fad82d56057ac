package cart

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be greater than 0")
	ErrLineNotFound      = errors.New("line item not in cart")
	ErrInvalidItem       = errors.New("invalid catalog item")
)

// InsufficientStockError reports a rejected mutation. The ledger is unchanged
// when it is returned.
type InsufficientStockError struct {
	Key       Key
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s %s: requested %d, available %d", e.Key.Type, e.Key.ItemID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
