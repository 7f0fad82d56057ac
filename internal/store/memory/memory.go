package memory

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cajapos/backend/internal/domain"
	"cajapos/backend/internal/store"
	"cajapos/backend/internal/xid"
)

const DefaultBusinessID = "main-business"

type business struct {
	products     map[string]domain.CatalogProduct
	productOrder []string
	services     map[string]domain.CatalogService
	serviceOrder []string
	customers    []domain.Customer
	sales        []RecordedSale
}

type RecordedSale struct {
	Result  domain.SaleResult
	Request domain.SaleRequest
}

// Store is an in-process stand-in for the remote data service.
type Store struct {
	mu          sync.RWMutex
	businesses  map[string]*business
	permissions map[permissionKey]domain.PermissionSet
}

func New() *Store {
	return &Store{
		businesses:  make(map[string]*business),
		permissions: make(map[permissionKey]domain.PermissionSet),
	}
}

// NewSeeded builds a demo business. SEED_BUSINESS_ID overrides its id.
func NewSeeded() *Store {
	businessID := envOr("SEED_BUSINESS_ID", DefaultBusinessID)

	s := New()
	duration := func(m int) *int { return &m }
	for _, p := range []domain.CatalogProduct{
		{ID: "prod-shampoo", Name: "Shampoo 400ml", SellPrice: decimal.RequireFromString("10.00"), StockOnHand: 5},
		{ID: "prod-cera", Name: "Cera para peinar", SellPrice: decimal.RequireFromString("7.50"), StockOnHand: 12},
		{ID: "prod-tinte", Name: "Tinte castaño", SellPrice: decimal.RequireFromString("15.25"), StockOnHand: 8},
		{ID: "prod-peine", Name: "Peine de carey", SellPrice: decimal.RequireFromString("3.40"), StockOnHand: 0},
	} {
		s.PutProduct(businessID, p)
	}
	for _, svc := range []domain.CatalogService{
		{ID: "serv-corte", Name: "Corte de cabello", Price: decimal.RequireFromString("20.00"), DurationMinutes: duration(30)},
		{ID: "serv-tinte", Name: "Aplicación de tinte", Price: decimal.RequireFromString("35.00"), DurationMinutes: duration(90)},
		{ID: "serv-barba", Name: "Arreglo de barba", Price: decimal.RequireFromString("12.00")},
	} {
		s.PutService(businessID, svc)
	}
	s.PutCustomer(businessID, domain.Customer{ID: "cli-001", Name: "Ana Torres"})
	s.PutCustomer(businessID, domain.Customer{ID: "cli-002", Name: "Luis Pérez"})

	s.PutPermissions(domain.PermissionSet{BusinessID: businessID, UserID: "admin", FullAccess: true})
	s.PutPermissions(domain.PermissionSet{
		BusinessID: businessID,
		UserID:     "cashier",
		Resources: map[string]domain.ResourceAccess{
			domain.ResourceSales:     {View: true, Edit: true},
			domain.ResourceCatalog:   {View: true},
			domain.ResourceCustomers: {View: true},
		},
	})
	s.PutPermissions(domain.PermissionSet{
		BusinessID: businessID,
		UserID:     "auditor",
		Resources: map[string]domain.ResourceAccess{
			domain.ResourceSales: {View: true},
		},
	})
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) businessLocked(businessID string) *business {
	b, ok := s.businesses[businessID]
	if !ok {
		b = &business{
			products: make(map[string]domain.CatalogProduct),
			services: make(map[string]domain.CatalogService),
		}
		s.businesses[businessID] = b
	}
	return b
}

// PutProduct inserts or replaces a product, keeping its catalog position.
func (s *Store) PutProduct(businessID string, p domain.CatalogProduct) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.businessLocked(businessID)
	if _, exists := b.products[p.ID]; !exists {
		b.productOrder = append(b.productOrder, p.ID)
	}
	b.products[p.ID] = p
}

func (s *Store) PutService(businessID string, svc domain.CatalogService) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.businessLocked(businessID)
	if _, exists := b.services[svc.ID]; !exists {
		b.serviceOrder = append(b.serviceOrder, svc.ID)
	}
	b.services[svc.ID] = svc
}

func (s *Store) PutCustomer(businessID string, c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.businessLocked(businessID)
	b.customers = append(b.customers, c)
}

func (s *Store) PutPermissions(p domain.PermissionSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions[permissionKey{p.BusinessID, p.UserID}] = p
}

func (s *Store) Stock(businessID string, productID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.businesses[businessID]
	if !ok {
		return 0, false
	}
	p, ok := b.products[productID]
	return p.StockOnHand, ok
}

func (s *Store) Sales(businessID string) []RecordedSale {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.businesses[businessID]
	if !ok {
		return nil
	}
	out := make([]RecordedSale, len(b.sales))
	copy(out, b.sales)
	return out
}

func (s *Store) FetchCatalogProducts(_ context.Context, businessID string) ([]domain.CatalogProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.businesses[businessID]
	if !ok {
		return nil, store.ErrNotFound
	}
	products := make([]domain.CatalogProduct, 0, len(b.productOrder))
	for _, id := range b.productOrder {
		products = append(products, b.products[id])
	}
	return products, nil
}

func (s *Store) FetchCatalogServices(_ context.Context, businessID string) ([]domain.CatalogService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.businesses[businessID]
	if !ok {
		return nil, store.ErrNotFound
	}
	services := make([]domain.CatalogService, 0, len(b.serviceOrder))
	for _, id := range b.serviceOrder {
		services = append(services, b.services[id])
	}
	return services, nil
}

func (s *Store) FetchCustomers(_ context.Context, businessID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.businesses[businessID]
	if !ok {
		return nil, store.ErrNotFound
	}
	customers := make([]domain.Customer, len(b.customers))
	copy(customers, b.customers)
	return customers, nil
}

// SubmitSale re-validates stock against the authoritative quantities and
// decrements them atomically; a partial commit is never visible.
func (s *Store) SubmitSale(_ context.Context, businessID string, req domain.SaleRequest) (domain.SaleResult, error) {
	if err := store.ValidateSale(req); err != nil {
		return domain.SaleResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.businesses[businessID]
	if !ok {
		return domain.SaleResult{}, store.Reject(fmt.Sprintf("unknown business %s", businessID), store.ErrNotFound)
	}

	if req.CustomerID != nil {
		found := false
		for _, c := range b.customers {
			if c.ID == *req.CustomerID {
				found = true
				break
			}
		}
		if !found {
			return domain.SaleResult{}, store.Reject(fmt.Sprintf("unknown customer %s", *req.CustomerID), store.ErrInvalidSale)
		}
	}

	itemCount := 0
	for _, line := range req.Lines {
		itemCount += line.Quantity
		switch line.ItemType {
		case domain.ItemProduct:
			if _, ok := b.products[line.ItemID]; !ok {
				return domain.SaleResult{}, store.Reject(fmt.Sprintf("product %s unavailable", line.ItemID), store.ErrNotFound)
			}
		case domain.ItemService:
			if _, ok := b.services[line.ItemID]; !ok {
				return domain.SaleResult{}, store.Reject(fmt.Sprintf("service %s unavailable", line.ItemID), store.ErrNotFound)
			}
		}
	}

	order, wanted := store.ProductQuantities(req.Lines)
	for _, id := range order {
		p := b.products[id]
		if p.StockOnHand < wanted[id] {
			return domain.SaleResult{}, store.InsufficientStock(p.Name, p.StockOnHand)
		}
	}
	for _, id := range order {
		p := b.products[id]
		p.StockOnHand -= wanted[id]
		b.products[id] = p
	}

	result := domain.SaleResult{
		SaleID:    xid.New("sale"),
		Total:     req.Total(),
		ItemCount: itemCount,
		CreatedAt: time.Now().UTC(),
	}
	b.sales = append(b.sales, RecordedSale{Result: result, Request: cloneRequest(req)})
	return result, nil
}

func (s *Store) FetchPermissions(_ context.Context, businessID string, userID string) (domain.PermissionSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.permissions[permissionKey{businessID, userID}]
	if !ok {
		return domain.PermissionSet{}, store.ErrNotFound
	}
	return clonePermissions(p), nil
}

type permissionKey struct {
	businessID string
	userID     string
}

func cloneRequest(src domain.SaleRequest) domain.SaleRequest {
	dup := src
	dup.Lines = make([]domain.SaleLine, len(src.Lines))
	copy(dup.Lines, src.Lines)
	return dup
}

func clonePermissions(src domain.PermissionSet) domain.PermissionSet {
	dup := src
	if src.Resources != nil {
		dup.Resources = make(map[string]domain.ResourceAccess, len(src.Resources))
		for k, v := range src.Resources {
			dup.Resources[k] = v
		}
	}
	return dup
}
