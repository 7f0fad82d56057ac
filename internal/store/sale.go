package store

import (
	"fmt"
	"strings"

	"cajapos/backend/internal/domain"
)

// ValidateSale applies the checks every sale recorder performs before it
// touches stock.
func ValidateSale(req domain.SaleRequest) error {
	if len(req.Lines) == 0 {
		return Reject("sale has no items", ErrInvalidSale)
	}
	if !req.PaymentMethod.Valid() {
		return Reject(fmt.Sprintf("unsupported payment method %q", req.PaymentMethod), ErrInvalidSale)
	}
	for _, line := range req.Lines {
		if strings.TrimSpace(line.ItemID) == "" || !line.ItemType.Valid() {
			return Reject("sale line has no valid item", ErrInvalidSale)
		}
		if line.Quantity < 1 {
			return Reject(fmt.Sprintf("invalid quantity %d for %s", line.Quantity, line.ItemID), ErrInvalidSale)
		}
		if line.UnitPrice.IsNegative() {
			return Reject(fmt.Sprintf("invalid price for %s", line.ItemID), ErrInvalidSale)
		}
	}
	return nil
}

// ProductQuantities sums requested quantities per product id, preserving the
// first-seen order.
func ProductQuantities(lines []domain.SaleLine) ([]string, map[string]int) {
	order := make([]string, 0, len(lines))
	qty := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.ItemType != domain.ItemProduct {
			continue
		}
		if _, seen := qty[line.ItemID]; !seen {
			order = append(order, line.ItemID)
		}
		qty[line.ItemID] += line.Quantity
	}
	return order, qty
}

func InsufficientStock(name string, available int) *RejectionError {
	return Reject(fmt.Sprintf("insufficient stock for %s (available %d)", name, available), ErrInsufficientStock)
}
