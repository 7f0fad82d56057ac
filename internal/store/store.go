package store

import (
	"context"
	"errors"

	"cajapos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidSale       = errors.New("invalid sale")
	ErrConflict          = errors.New("concurrent update conflict")
)

// RejectionError carries the reason the data service gave for refusing a
// request. Reason is shown to the cashier as-is.
type RejectionError struct {
	Reason string
	Status int
	Err    error
}

func (e *RejectionError) Error() string {
	return e.Reason
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

func Reject(reason string, err error) *RejectionError {
	return &RejectionError{Reason: reason, Err: err}
}

type CatalogSource interface {
	FetchCatalogProducts(ctx context.Context, businessID string) ([]domain.CatalogProduct, error)
	FetchCatalogServices(ctx context.Context, businessID string) ([]domain.CatalogService, error)
}

type CustomerSource interface {
	FetchCustomers(ctx context.Context, businessID string) ([]domain.Customer, error)
}

// SaleRecorder is the system of record for sales and stock decrements.
type SaleRecorder interface {
	SubmitSale(ctx context.Context, businessID string, req domain.SaleRequest) (domain.SaleResult, error)
}

type PermissionSource interface {
	FetchPermissions(ctx context.Context, businessID string, userID string) (domain.PermissionSet, error)
}

type Repository interface {
	CatalogSource
	CustomerSource
	SaleRecorder
	PermissionSource
}
