package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"cajapos/backend/internal/domain"
	"cajapos/backend/internal/store"
	"cajapos/backend/internal/xid"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables when they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) FetchCatalogProducts(ctx context.Context, businessID string) ([]domain.CatalogProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, sell_price, stock
		FROM catalog_products
		WHERE business_id = $1
		ORDER BY position
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.CatalogProduct, 0, 64)
	for rows.Next() {
		var p domain.CatalogProduct
		if err := rows.Scan(&p.ID, &p.Name, &p.SellPrice, &p.StockOnHand); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) FetchCatalogServices(ctx context.Context, businessID string) ([]domain.CatalogService, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, duration_minutes
		FROM catalog_services
		WHERE business_id = $1
		ORDER BY position
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.CatalogService, 0, 32)
	for rows.Next() {
		var svc domain.CatalogService
		var duration sql.NullInt64
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Price, &duration); err != nil {
			return nil, err
		}
		if duration.Valid {
			minutes := int(duration.Int64)
			svc.DurationMinutes = &minutes
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) FetchCustomers(ctx context.Context, businessID string) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name
		FROM customers
		WHERE business_id = $1
		ORDER BY name
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) FetchPermissions(ctx context.Context, businessID string, userID string) (domain.PermissionSet, error) {
	perms := domain.PermissionSet{BusinessID: businessID, UserID: userID}
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT full_access, resources
		FROM user_permissions
		WHERE business_id = $1 AND user_id = $2
	`, businessID, userID).Scan(&perms.FullAccess, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PermissionSet{}, store.ErrNotFound
	}
	if err != nil {
		return domain.PermissionSet{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &perms.Resources); err != nil {
			return domain.PermissionSet{}, fmt.Errorf("decode resources: %w", err)
		}
	}
	return perms, nil
}

// SubmitSale locks the product rows it touches, re-validates stock against
// them and records the sale in one serializable transaction.
func (s *Store) SubmitSale(ctx context.Context, businessID string, req domain.SaleRequest) (domain.SaleResult, error) {
	if err := store.ValidateSale(req); err != nil {
		return domain.SaleResult{}, err
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.SaleResult{}, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if req.CustomerID != nil {
		var exists bool
		if err := pgTx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM customers WHERE business_id = $1 AND id = $2)
		`, businessID, *req.CustomerID).Scan(&exists); err != nil {
			return domain.SaleResult{}, err
		}
		if !exists {
			return domain.SaleResult{}, store.Reject(fmt.Sprintf("unknown customer %s", *req.CustomerID), store.ErrInvalidSale)
		}
	}

	order, wanted := store.ProductQuantities(req.Lines)
	type stockRow struct {
		name  string
		stock int
	}
	stock := make(map[string]stockRow, len(order))
	if len(order) > 0 {
		rows, err := pgTx.QueryContext(ctx, `
			SELECT id, name, stock
			FROM catalog_products
			WHERE business_id = $1 AND id = ANY($2)
			ORDER BY id
			FOR UPDATE
		`, businessID, order)
		if err != nil {
			return domain.SaleResult{}, err
		}
		for rows.Next() {
			var id string
			var row stockRow
			if err := rows.Scan(&id, &row.name, &row.stock); err != nil {
				_ = rows.Close()
				return domain.SaleResult{}, err
			}
			stock[id] = row
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return domain.SaleResult{}, err
		}
		_ = rows.Close()
	}

	itemCount := 0
	for _, line := range req.Lines {
		itemCount += line.Quantity
		switch line.ItemType {
		case domain.ItemProduct:
			if _, ok := stock[line.ItemID]; !ok {
				return domain.SaleResult{}, store.Reject(fmt.Sprintf("product %s unavailable", line.ItemID), store.ErrNotFound)
			}
		case domain.ItemService:
			var exists bool
			if err := pgTx.QueryRowContext(ctx, `
				SELECT EXISTS (SELECT 1 FROM catalog_services WHERE business_id = $1 AND id = $2)
			`, businessID, line.ItemID).Scan(&exists); err != nil {
				return domain.SaleResult{}, err
			}
			if !exists {
				return domain.SaleResult{}, store.Reject(fmt.Sprintf("service %s unavailable", line.ItemID), store.ErrNotFound)
			}
		}
	}

	for _, id := range order {
		row := stock[id]
		if row.stock < wanted[id] {
			return domain.SaleResult{}, store.InsufficientStock(row.name, row.stock)
		}
	}
	for _, id := range order {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE catalog_products
			SET stock = stock - $1, updated_at = now()
			WHERE business_id = $2 AND id = $3
		`, wanted[id], businessID, id); err != nil {
			return domain.SaleResult{}, err
		}
	}

	result := domain.SaleResult{
		SaleID:    xid.New("sale"),
		Total:     req.Total(),
		ItemCount: itemCount,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := pgTx.ExecContext(ctx, `
		INSERT INTO sales (id, business_id, customer_id, payment_method, notes, total, item_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, result.SaleID, businessID, nullString(req.CustomerID), string(req.PaymentMethod), nullString(req.Notes),
		result.Total, result.ItemCount, result.CreatedAt); err != nil {
		return domain.SaleResult{}, mapWriteError(err)
	}
	for i, line := range req.Lines {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, line_no, item_id, item_type, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, result.SaleID, i+1, line.ItemID, string(line.ItemType), line.Quantity, line.UnitPrice); err != nil {
			return domain.SaleResult{}, mapWriteError(err)
		}
	}

	if err := pgTx.Commit(); err != nil {
		return domain.SaleResult{}, mapWriteError(err)
	}
	return result, nil
}

// PutProduct upserts a catalog product. Used for seeding and tests.
func (s *Store) PutProduct(ctx context.Context, businessID string, p domain.CatalogProduct) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_products (business_id, id, name, sell_price, stock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id, id)
		DO UPDATE SET name = EXCLUDED.name, sell_price = EXCLUDED.sell_price, stock = EXCLUDED.stock, updated_at = now()
	`, businessID, p.ID, p.Name, p.SellPrice, p.StockOnHand)
	return err
}

func (s *Store) PutService(ctx context.Context, businessID string, svc domain.CatalogService) error {
	var duration any
	if svc.DurationMinutes != nil {
		duration = *svc.DurationMinutes
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_services (business_id, id, name, price, duration_minutes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id, id)
		DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, duration_minutes = EXCLUDED.duration_minutes
	`, businessID, svc.ID, svc.Name, svc.Price, duration)
	return err
}

func (s *Store) PutCustomer(ctx context.Context, businessID string, c domain.Customer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (business_id, id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (business_id, id) DO UPDATE SET name = EXCLUDED.name
	`, businessID, c.ID, c.Name)
	return err
}

func (s *Store) PutPermissions(ctx context.Context, p domain.PermissionSet) error {
	resources := p.Resources
	if resources == nil {
		resources = map[string]domain.ResourceAccess{}
	}
	raw, err := json.Marshal(resources)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_permissions (business_id, user_id, full_access, resources)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (business_id, user_id)
		DO UPDATE SET full_access = EXCLUDED.full_access, resources = EXCLUDED.resources
	`, p.BusinessID, p.UserID, p.FullAccess, raw)
	return err
}

// SaleTotal reads back a recorded sale's total.
func (s *Store) SaleTotal(ctx context.Context, saleID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `SELECT total FROM sales WHERE id = $1`, saleID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, store.ErrNotFound
	}
	return total, err
}

func mapWriteError(err error) error {
	if isUniqueViolation(err) || isSerializationFailure(err) {
		return store.Reject("the sale conflicted with another terminal, try again", fmt.Errorf("%w: %v", store.ErrConflict, err))
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}

func nullString(val *string) any {
	if val == nil {
		return nil
	}
	return *val
}
