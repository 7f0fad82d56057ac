package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cajapos/backend/internal/domain"
	"cajapos/backend/internal/store"
)

func saleOf(lines ...domain.SaleLine) domain.SaleRequest {
	return domain.SaleRequest{PaymentMethod: domain.PaymentCash, Lines: lines}
}

func shampoo(qty int) domain.SaleLine {
	return domain.SaleLine{ItemID: "prod-shampoo", ItemType: domain.ItemProduct, Quantity: qty, UnitPrice: decimal.RequireFromString("10.00")}
}

func TestSubmitSaleDecrementsStock(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	res, err := s.SubmitSale(ctx, DefaultBusinessID, saleOf(
		shampoo(2),
		domain.SaleLine{ItemID: "serv-corte", ItemType: domain.ItemService, Quantity: 1, UnitPrice: decimal.RequireFromString("20.00")},
	))
	require.NoError(t, err)

	assert.NotEmpty(t, res.SaleID)
	assert.True(t, res.Total.Equal(decimal.RequireFromString("40.00")))
	assert.Equal(t, 3, res.ItemCount)
	stock, ok := s.Stock(DefaultBusinessID, "prod-shampoo")
	require.True(t, ok)
	assert.Equal(t, 3, stock)
	assert.Len(t, s.Sales(DefaultBusinessID), 1)
}

func TestSubmitSaleRejectsOversellWithoutPartialCommit(t *testing.T) {
	s := NewSeeded()

	_, err := s.SubmitSale(context.Background(), DefaultBusinessID, saleOf(
		domain.SaleLine{ItemID: "prod-cera", ItemType: domain.ItemProduct, Quantity: 1, UnitPrice: decimal.RequireFromString("7.50")},
		shampoo(6),
	))

	var rejection *store.RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.True(t, errors.Is(err, store.ErrInsufficientStock))
	assert.Contains(t, rejection.Reason, "Shampoo 400ml")
	stock, _ := s.Stock(DefaultBusinessID, "prod-cera")
	assert.Equal(t, 12, stock)
	assert.Empty(t, s.Sales(DefaultBusinessID))
}

func TestConcurrentSalesCannotOversell(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.SubmitSale(ctx, DefaultBusinessID, saleOf(shampoo(3))); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	stock, _ := s.Stock(DefaultBusinessID, "prod-shampoo")
	assert.Equal(t, 2, stock)
}

func TestSubmitSaleValidation(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	unknown := "cli-999"

	_, err := s.SubmitSale(ctx, DefaultBusinessID, domain.SaleRequest{PaymentMethod: domain.PaymentCash})
	assert.ErrorIs(t, err, store.ErrInvalidSale)

	_, err = s.SubmitSale(ctx, DefaultBusinessID, domain.SaleRequest{PaymentMethod: "cheque", Lines: []domain.SaleLine{shampoo(1)}})
	assert.ErrorIs(t, err, store.ErrInvalidSale)

	req := saleOf(shampoo(1))
	req.CustomerID = &unknown
	_, err = s.SubmitSale(ctx, DefaultBusinessID, req)
	assert.ErrorIs(t, err, store.ErrInvalidSale)

	_, err = s.SubmitSale(ctx, DefaultBusinessID, saleOf(domain.SaleLine{ItemID: "ghost", ItemType: domain.ItemService, Quantity: 1}))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFetchesReturnCopiesInCatalogOrder(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	products, err := s.FetchCatalogProducts(ctx, DefaultBusinessID)
	require.NoError(t, err)
	require.Len(t, products, 4)
	assert.Equal(t, "prod-shampoo", products[0].ID)
	products[0].StockOnHand = 1000
	stock, _ := s.Stock(DefaultBusinessID, "prod-shampoo")
	assert.Equal(t, 5, stock)

	_, err = s.FetchCatalogServices(ctx, "other-business")
	assert.ErrorIs(t, err, store.ErrNotFound)

	perms, err := s.FetchPermissions(ctx, DefaultBusinessID, "cashier")
	require.NoError(t, err)
	assert.True(t, perms.Resources[domain.ResourceSales].Edit)
}
