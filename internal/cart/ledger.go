package cart

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"cajapos/backend/internal/domain"
)

// Key identifies a line. A product and a service may share an id.
type Key struct {
	ItemID string
	Type   domain.ItemType
}

func (k Key) String() string {
	return string(k.Type) + ":" + k.ItemID
}

// Item is a catalog entry as seen by the cart at the moment of selection.
// Stock is only read for products.
type Item struct {
	Type  domain.ItemType
	ID    string
	Name  string
	Price decimal.Decimal
	Stock int
}

func ProductItem(p domain.CatalogProduct) Item {
	return Item{Type: domain.ItemProduct, ID: p.ID, Name: p.Name, Price: p.SellPrice, Stock: p.StockOnHand}
}

func ServiceItem(s domain.CatalogService) Item {
	return Item{Type: domain.ItemService, ID: s.ID, Name: s.Name, Price: s.Price}
}

func (i Item) Key() Key {
	return Key{ItemID: i.ID, Type: i.Type}
}

type LineItem struct {
	ItemID         string          `json:"item_id"`
	ItemType       domain.ItemType `json:"item_type"`
	DisplayName    string          `json:"display_name"`
	UnitPriceAtAdd decimal.Decimal `json:"unit_price"`
	Quantity       int             `json:"quantity"`
	StockCeiling   *int            `json:"stock_ceiling,omitempty"`
}

func (l LineItem) Key() Key {
	return Key{ItemID: l.ItemID, Type: l.ItemType}
}

func (l LineItem) LineTotal() decimal.Decimal {
	return LineTotal(l)
}

func (l LineItem) withinCeiling(quantity int) bool {
	if l.ItemType != domain.ItemProduct || l.StockCeiling == nil {
		return true
	}
	return quantity <= *l.StockCeiling
}

func (l LineItem) clone() LineItem {
	if l.StockCeiling != nil {
		ceiling := *l.StockCeiling
		l.StockCeiling = &ceiling
	}
	return l
}

// Ledger is the ordered set of line items of one in-progress sale. It is not
// safe for concurrent use; the owning session serialises access.
type Ledger struct {
	lines []LineItem
	index map[Key]int
}

func NewLedger() *Ledger {
	return &Ledger{index: make(map[Key]int)}
}

// Add merges quantity into the line for item, creating it when absent. A new
// line freezes the item's current price and, for products, its stock as the
// line's ceiling.
func (l *Ledger) Add(item Item, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if err := validateItem(item); err != nil {
		return err
	}

	key := item.Key()
	if item.Type == domain.ItemProduct {
		if available := Available(item, l); quantity > available {
			return &InsufficientStockError{Key: key, Requested: l.QuantityOf(key) + quantity, Available: available}
		}
	}

	if pos, ok := l.index[key]; ok {
		if quantity > math.MaxInt-l.lines[pos].Quantity {
			return ErrInvalidQuantity
		}
		merged := l.lines[pos].Quantity + quantity
		if !l.lines[pos].withinCeiling(merged) {
			return &InsufficientStockError{Key: key, Requested: merged, Available: *l.lines[pos].StockCeiling - l.lines[pos].Quantity}
		}
		l.lines[pos].Quantity = merged
		return nil
	}

	line := LineItem{
		ItemID:         item.ID,
		ItemType:       item.Type,
		DisplayName:    item.Name,
		UnitPriceAtAdd: item.Price,
		Quantity:       quantity,
	}
	if item.Type == domain.ItemProduct {
		ceiling := item.Stock
		line.StockCeiling = &ceiling
	}
	l.index[key] = len(l.lines)
	l.lines = append(l.lines, line)
	return nil
}

// SetQuantity replaces a line's quantity. Zero or less removes the line.
func (l *Ledger) SetQuantity(key Key, quantity int) error {
	pos, ok := l.index[key]
	if !ok {
		return ErrLineNotFound
	}
	if quantity <= 0 {
		l.Remove(key)
		return nil
	}
	line := l.lines[pos]
	if !line.withinCeiling(quantity) {
		return &InsufficientStockError{Key: key, Requested: quantity, Available: *line.StockCeiling}
	}
	l.lines[pos].Quantity = quantity
	return nil
}

func (l *Ledger) Remove(key Key) {
	pos, ok := l.index[key]
	if !ok {
		return
	}
	l.lines = append(l.lines[:pos], l.lines[pos+1:]...)
	delete(l.index, key)
	for i := pos; i < len(l.lines); i++ {
		l.index[l.lines[i].Key()] = i
	}
}

func (l *Ledger) Reset() {
	l.lines = nil
	l.index = make(map[Key]int)
}

func (l *Ledger) Len() int {
	return len(l.lines)
}

func (l *Ledger) IsEmpty() bool {
	return len(l.lines) == 0
}

func (l *Ledger) QuantityOf(key Key) int {
	if pos, ok := l.index[key]; ok {
		return l.lines[pos].Quantity
	}
	return 0
}

func (l *Ledger) Line(key Key) (LineItem, bool) {
	pos, ok := l.index[key]
	if !ok {
		return LineItem{}, false
	}
	return l.lines[pos].clone(), true
}

// Lines returns a copy of the lines in insertion order.
func (l *Ledger) Lines() []LineItem {
	out := make([]LineItem, 0, len(l.lines))
	for _, line := range l.lines {
		out = append(out, line.clone())
	}
	return out
}

func (l *Ledger) Total() decimal.Decimal {
	return CartTotal(l.lines)
}

func validateItem(item Item) error {
	if strings.TrimSpace(item.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidItem)
	}
	if item.Price.IsNegative() {
		return fmt.Errorf("%w: negative price for %s", ErrInvalidItem, item.ID)
	}
	switch item.Type {
	case domain.ItemProduct:
		if item.Stock < 0 {
			return fmt.Errorf("%w: negative stock for %s", ErrInvalidItem, item.ID)
		}
	case domain.ItemService:
	default:
		return fmt.Errorf("%w: unknown item type %q", ErrInvalidItem, item.Type)
	}
	return nil
}
