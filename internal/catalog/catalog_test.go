package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cajapos/backend/internal/cart"
	"cajapos/backend/internal/domain"
	"cajapos/backend/internal/store/memory"
)

type failingSource struct {
	products []domain.CatalogProduct
	err      error
}

func (f failingSource) FetchCatalogProducts(context.Context, string) ([]domain.CatalogProduct, error) {
	return f.products, nil
}

func (f failingSource) FetchCatalogServices(context.Context, string) ([]domain.CatalogService, error) {
	return nil, f.err
}

func TestLoaderBuildsSnapshotInFetchOrder(t *testing.T) {
	loader := NewLoader(memory.NewSeeded(), zap.NewNop())

	snap, err := loader.Load(context.Background(), memory.DefaultBusinessID)
	require.NoError(t, err)

	assert.Equal(t, memory.DefaultBusinessID, snap.BusinessID())
	assert.False(t, snap.FetchedAt().IsZero())
	require.Len(t, snap.Products(), 4)
	assert.Equal(t, "prod-shampoo", snap.Products()[0].ID)
	require.Len(t, snap.Services(), 3)

	item, ok := snap.Item(cart.Key{ItemID: "serv-corte", Type: domain.ItemService})
	require.True(t, ok)
	assert.True(t, item.Price.Equal(decimal.RequireFromString("20.00")))

	_, ok = snap.Item(cart.Key{ItemID: "serv-corte", Type: domain.ItemProduct})
	assert.False(t, ok)
}

func TestLoaderFailsWholeLoadOnPartialError(t *testing.T) {
	boom := errors.New("catalog offline")
	loader := NewLoader(failingSource{products: []domain.CatalogProduct{{ID: "p"}}, err: boom}, nil)

	snap, err := loader.Load(context.Background(), "b1")
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, boom)
}

func TestSnapshotIsolatedFromCallerSlices(t *testing.T) {
	products := []domain.CatalogProduct{{ID: "p1", Name: "Gel", SellPrice: decimal.NewFromInt(4), StockOnHand: 2}}
	snap := NewSnapshot("b1", products, nil, time.Now())

	products[0].StockOnHand = 99
	got, ok := snap.Product("p1")
	require.True(t, ok)
	assert.Equal(t, 2, got.StockOnHand)

	listed := snap.Products()
	listed[0].Name = "changed"
	got, _ = snap.Product("p1")
	assert.Equal(t, "Gel", got.Name)
}

func TestSearch(t *testing.T) {
	snap := NewSnapshot("b1",
		[]domain.CatalogProduct{
			{ID: "prod-tinte", Name: "Tinte castaño"},
			{ID: "prod-cera", Name: "Cera para peinar"},
		},
		[]domain.CatalogService{
			{ID: "serv-tinte", Name: "Aplicación de tinte"},
		},
		time.Now(),
	)

	assert.Len(t, Search(snap, ""), 3)

	found := Search(snap, "  TINTE ")
	require.Len(t, found, 2)
	assert.Equal(t, domain.ItemProduct, found[0].Type)
	assert.Equal(t, domain.ItemService, found[1].Type)

	byID := Search(snap, "prod-cera")
	require.Len(t, byID, 1)
	assert.Equal(t, "Cera para peinar", byID[0].Name)

	assert.Empty(t, Search(snap, "shampoo"))
	assert.Nil(t, Search(nil, "x"))
}
