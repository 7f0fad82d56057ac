package catalog

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cajapos/backend/internal/domain"
	"cajapos/backend/internal/store"
)

// Loader fetches fresh snapshots from the catalog collaborator.
type Loader struct {
	source store.CatalogSource
	logger *zap.Logger
	now    func() time.Time
}

func NewLoader(source store.CatalogSource, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{source: source, logger: logger.Named("catalog"), now: time.Now}
}

// Load fetches products and services concurrently. Either failure fails the
// whole load; a partial snapshot is never returned.
func (l *Loader) Load(ctx context.Context, businessID string) (*Snapshot, error) {
	ctx, span := otel.Tracer("cajapos/catalog").Start(ctx, "catalog.load")
	defer span.End()
	span.SetAttributes(attribute.String("business.id", businessID))

	var (
		products []domain.CatalogProduct
		services []domain.CatalogService
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = l.source.FetchCatalogProducts(gctx, businessID)
		if err != nil {
			return fmt.Errorf("fetch products: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		services, err = l.source.FetchCatalogServices(gctx, businessID)
		if err != nil {
			return fmt.Errorf("fetch services: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.Warn("catalog load failed", zap.String("business_id", businessID), zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("catalog.products", len(products)),
		attribute.Int("catalog.services", len(services)),
	)
	l.logger.Debug("catalog loaded",
		zap.String("business_id", businessID),
		zap.Int("products", len(products)),
		zap.Int("services", len(services)),
	)
	return NewSnapshot(businessID, products, services, l.now().UTC()), nil
}
