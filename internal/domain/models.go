package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ItemType discriminates the two kinds of sellable catalog entries.
type ItemType string

const (
	ItemProduct ItemType = "producto"
	ItemService ItemType = "servicio"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemProduct, ItemService:
		return true
	default:
		return false
	}
}

// ParseItemType accepts the wire values plus their English aliases.
func ParseItemType(raw string) (ItemType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "producto", "product":
		return ItemProduct, nil
	case "servicio", "service":
		return ItemService, nil
	default:
		return "", fmt.Errorf("unknown item type %q", raw)
	}
}

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "efectivo"
	PaymentCard     PaymentMethod = "tarjeta"
	PaymentTransfer PaymentMethod = "transferencia"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return true
	default:
		return false
	}
}

type CatalogProduct struct {
	ID          string          `json:"id"`
	Name        string          `json:"nombre"`
	SellPrice   decimal.Decimal `json:"precio_venta"`
	StockOnHand int             `json:"stock"`
}

type CatalogService struct {
	ID              string          `json:"id"`
	Name            string          `json:"nombre"`
	Price           decimal.Decimal `json:"precio"`
	DurationMinutes *int            `json:"duracion_minutos,omitempty"`
}

type Customer struct {
	ID   string `json:"id"`
	Name string `json:"nombre"`
}

type SaleLine struct {
	ItemID    string          `json:"id"`
	ItemType  ItemType        `json:"tipo"`
	Quantity  int             `json:"cantidad"`
	UnitPrice decimal.Decimal `json:"precio"`
}

// SaleRequest is the payload committed to the sale-recording collaborator.
type SaleRequest struct {
	CustomerID    *string       `json:"cliente_id"`
	PaymentMethod PaymentMethod `json:"metodo_pago"`
	Notes         *string       `json:"observaciones"`
	Lines         []SaleLine    `json:"items"`
}

// Total is the sum of the request lines at their submitted prices.
func (r SaleRequest) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range r.Lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

type SaleResult struct {
	SaleID    string          `json:"venta_id"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"cantidad_items"`
	CreatedAt time.Time       `json:"fecha"`
}

const (
	ResourceSales     = "sales"
	ResourceCatalog   = "catalog"
	ResourceCustomers = "customers"
)

type ResourceAccess struct {
	View   bool `json:"view"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
}

type PermissionSet struct {
	BusinessID string                    `json:"business_id"`
	UserID     string                    `json:"user_id"`
	FullAccess bool                      `json:"full_access"`
	Resources  map[string]ResourceAccess `json:"resources"`
}

// Actor is the authenticated caller extracted from a bearer token.
type Actor struct {
	UserID     string
	BusinessID string
}
