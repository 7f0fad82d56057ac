package catalog

import (
	"time"

	"cajapos/backend/internal/cart"
	"cajapos/backend/internal/domain"
)

// Snapshot is the catalog as returned by one fetch. It is never mutated after
// construction, so it can be shared between goroutines freely.
type Snapshot struct {
	businessID string
	fetchedAt  time.Time

	products     []domain.CatalogProduct
	services     []domain.CatalogService
	productIndex map[string]int
	serviceIndex map[string]int
}

func NewSnapshot(businessID string, products []domain.CatalogProduct, services []domain.CatalogService, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{
		businessID:   businessID,
		fetchedAt:    fetchedAt,
		products:     make([]domain.CatalogProduct, len(products)),
		services:     make([]domain.CatalogService, len(services)),
		productIndex: make(map[string]int, len(products)),
		serviceIndex: make(map[string]int, len(services)),
	}
	copy(s.products, products)
	copy(s.services, services)
	for i, p := range s.products {
		s.productIndex[p.ID] = i
	}
	for i, svc := range s.services {
		s.serviceIndex[svc.ID] = i
	}
	return s
}

func (s *Snapshot) BusinessID() string { return s.businessID }

func (s *Snapshot) FetchedAt() time.Time { return s.fetchedAt }

func (s *Snapshot) Product(id string) (domain.CatalogProduct, bool) {
	i, ok := s.productIndex[id]
	if !ok {
		return domain.CatalogProduct{}, false
	}
	return s.products[i], true
}

func (s *Snapshot) Service(id string) (domain.CatalogService, bool) {
	i, ok := s.serviceIndex[id]
	if !ok {
		return domain.CatalogService{}, false
	}
	return s.services[i], true
}

func (s *Snapshot) Products() []domain.CatalogProduct {
	out := make([]domain.CatalogProduct, len(s.products))
	copy(out, s.products)
	return out
}

func (s *Snapshot) Services() []domain.CatalogService {
	out := make([]domain.CatalogService, len(s.services))
	copy(out, s.services)
	return out
}

// Item resolves a cart key against the snapshot.
func (s *Snapshot) Item(key cart.Key) (cart.Item, bool) {
	switch key.Type {
	case domain.ItemProduct:
		p, ok := s.Product(key.ItemID)
		if !ok {
			return cart.Item{}, false
		}
		return cart.ProductItem(p), true
	case domain.ItemService:
		svc, ok := s.Service(key.ItemID)
		if !ok {
			return cart.Item{}, false
		}
		return cart.ServiceItem(svc), true
	default:
		return cart.Item{}, false
	}
}

// Items lists every entry as a cart item, products first.
func (s *Snapshot) Items() []cart.Item {
	items := make([]cart.Item, 0, len(s.products)+len(s.services))
	for _, p := range s.products {
		items = append(items, cart.ProductItem(p))
	}
	for _, svc := range s.services {
		items = append(items, cart.ServiceItem(svc))
	}
	return items
}
