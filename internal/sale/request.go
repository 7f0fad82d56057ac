package sale

import (
	"errors"
	"strings"

	"cajapos/backend/internal/cart"
	"cajapos/backend/internal/domain"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrMissingPaymentMethod = errors.New("payment method is required")
)

// Selection is what the cashier picked around the cart itself.
type Selection struct {
	CustomerID    *string
	PaymentMethod domain.PaymentMethod
	Notes         *string
}

func (s Selection) clone() Selection {
	if s.CustomerID != nil {
		id := *s.CustomerID
		s.CustomerID = &id
	}
	if s.Notes != nil {
		notes := *s.Notes
		s.Notes = &notes
	}
	return s
}

// BuildRequest maps ledger lines to the wire request. It never touches the
// network, so both errors surface before any collaborator call.
func BuildRequest(lines []cart.LineItem, sel Selection) (domain.SaleRequest, error) {
	if len(lines) == 0 {
		return domain.SaleRequest{}, ErrEmptyCart
	}
	if !sel.PaymentMethod.Valid() {
		return domain.SaleRequest{}, ErrMissingPaymentMethod
	}

	sel = sel.clone()
	if sel.Notes != nil && strings.TrimSpace(*sel.Notes) == "" {
		sel.Notes = nil
	}
	req := domain.SaleRequest{
		CustomerID:    sel.CustomerID,
		PaymentMethod: sel.PaymentMethod,
		Notes:         sel.Notes,
		Lines:         make([]domain.SaleLine, 0, len(lines)),
	}
	for _, line := range lines {
		req.Lines = append(req.Lines, domain.SaleLine{
			ItemID:    line.ItemID,
			ItemType:  line.ItemType,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPriceAtAdd,
		})
	}
	return req, nil
}
