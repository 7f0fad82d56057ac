package cart

import (
	"math"

	"cajapos/backend/internal/domain"
)

// Unlimited is reported for items without a stock concept.
const Unlimited = math.MaxInt

// Available is how many more units of item the ledger may claim against the
// stock the catalog showed. It reserves nothing.
func Available(item Item, l *Ledger) int {
	switch item.Type {
	case domain.ItemService:
		return Unlimited
	case domain.ItemProduct:
		remaining := item.Stock
		if l != nil {
			remaining -= l.QuantityOf(item.Key())
		}
		if remaining < 0 {
			return 0
		}
		return remaining
	default:
		return 0
	}
}

func ProductAvailable(p domain.CatalogProduct, l *Ledger) int {
	return Available(ProductItem(p), l)
}
