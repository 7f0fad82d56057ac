package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cajapos/backend/internal/cart"
	"cajapos/backend/internal/catalog"
	"cajapos/backend/internal/domain"
	"cajapos/backend/internal/metrics"
	"cajapos/backend/internal/sale"
)

// Session is one sale screen: a cart, the catalog it was priced against and
// the cashier's selections. Ledger mutations are serialised by mu; the lock is
// never held across a collaborator call, so the cart stays editable while a
// submission or catalog fetch is running.
type Session struct {
	id         string
	businessID string
	userID     string
	openedAt   time.Time
	now        func() time.Time

	loader    *catalog.Loader
	submitter *sale.Submitter
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu        sync.Mutex
	ledger    *cart.Ledger
	snapshot  *catalog.Snapshot
	customers []domain.Customer
	selection sale.Selection
	touched   time.Time
}

func (s *Session) ID() string         { return s.id }
func (s *Session) BusinessID() string { return s.businessID }

func (s *Session) AddLine(ctx context.Context, itemType domain.ItemType, itemID string, quantity int) error {
	key := cart.Key{ItemID: strings.TrimSpace(itemID), Type: itemType}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	item, ok := s.snapshot.Item(key)
	if !ok {
		s.metrics.CartMutation("add", ErrUnknownItem)
		return fmt.Errorf("%w: %s", ErrUnknownItem, key)
	}
	err := s.ledger.Add(item, quantity)
	s.metrics.CartMutation("add", err)
	if err != nil {
		return err
	}
	s.audit(ctx, "line_add", zap.Stringer("item", key), zap.Int("quantity", quantity), zap.Int("line_quantity", s.ledger.QuantityOf(key)))
	return nil
}

func (s *Session) SetQuantity(ctx context.Context, itemType domain.ItemType, itemID string, quantity int) error {
	key := cart.Key{ItemID: strings.TrimSpace(itemID), Type: itemType}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	err := s.ledger.SetQuantity(key, quantity)
	s.metrics.CartMutation("set_quantity", err)
	if err != nil {
		return err
	}
	s.audit(ctx, "line_set_quantity", zap.Stringer("item", key), zap.Int("quantity", quantity))
	return nil
}

func (s *Session) RemoveLine(ctx context.Context, itemType domain.ItemType, itemID string) {
	key := cart.Key{ItemID: strings.TrimSpace(itemID), Type: itemType}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	s.ledger.Remove(key)
	s.metrics.CartMutation("remove", nil)
	s.audit(ctx, "line_remove", zap.Stringer("item", key))
}

// SelectCustomer attaches a customer to the sale. An empty id clears it.
func (s *Session) SelectCustomer(ctx context.Context, customerID string) error {
	customerID = strings.TrimSpace(customerID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	if customerID == "" {
		s.selection.CustomerID = nil
		return nil
	}
	for _, c := range s.customers {
		if c.ID == customerID {
			s.selection.CustomerID = &customerID
			s.audit(ctx, "customer_select", zap.String("customer_id", customerID))
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownCustomer, customerID)
}

// SelectPaymentMethod sets the payment method. An empty value clears it.
func (s *Session) SelectPaymentMethod(_ context.Context, method domain.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	if method != "" && !method.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, method)
	}
	s.selection.PaymentMethod = method
	return nil
}

func (s *Session) SetNotes(_ context.Context, notes string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	notes = strings.TrimSpace(notes)
	if notes == "" {
		s.selection.Notes = nil
		return
	}
	s.selection.Notes = &notes
}

// Discard empties the cart and clears every selection.
func (s *Session) Discard(ctx context.Context) {
	s.mu.Lock()
	s.ledger.Reset()
	s.selection = sale.Selection{}
	s.touchLocked()
	s.mu.Unlock()

	s.submitter.Reset()
	s.audit(ctx, "cart_discard")
}

// Submit commits the cart. On success the cart and selections are cleared and
// the catalog is re-fetched so displayed stock matches the data service. On
// failure nothing in the session changes.
//
// The lines are copied and the submitter enters Submitting under mu, and the
// cart is emptied before the submitter leaves Submitting, so a committed cart
// can never be sent again.
func (s *Session) Submit(ctx context.Context) (domain.SaleResult, error) {
	s.mu.Lock()
	req, err := s.submitter.Begin(s.ledger.Lines(), s.selection)
	s.touchLocked()
	s.mu.Unlock()
	if err != nil {
		return domain.SaleResult{}, err
	}

	result, err := s.submitter.Commit(ctx, s.businessID, req, func(domain.SaleResult) {
		s.mu.Lock()
		s.ledger.Reset()
		s.selection = sale.Selection{}
		s.mu.Unlock()
	})
	if err != nil {
		var subErr *sale.SubmissionError
		if errors.As(err, &subErr) {
			s.audit(ctx, "sale_failed", zap.String("reason", subErr.Message))
		}
		return domain.SaleResult{}, err
	}

	s.audit(ctx, "sale_settled", zap.String("sale_id", result.SaleID), zap.String("total", result.Total.String()))

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("catalog reconciliation failed after sale",
			zap.String("session_id", s.id),
			zap.String("sale_id", result.SaleID),
			zap.Error(err),
		)
	}
	return result, nil
}

// Refresh replaces the catalog snapshot. Existing lines keep their frozen
// prices and ceilings.
func (s *Session) Refresh(ctx context.Context) error {
	snapshot, err := s.loader.Load(ctx, s.businessID)
	s.metrics.CatalogLoaded(err)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.snapshot = snapshot
	s.touchLocked()
	s.mu.Unlock()
	return nil
}

func (s *Session) Customers() []domain.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Customer, len(s.customers))
	copy(out, s.customers)
	return out
}

type LineView struct {
	cart.LineItem
	LineTotal decimal.Decimal `json:"line_total"`
}

type SelectionView struct {
	CustomerID    *string              `json:"customer_id"`
	PaymentMethod domain.PaymentMethod `json:"payment_method,omitempty"`
	Notes         *string              `json:"notes"`
}

type View struct {
	ID               string             `json:"id"`
	BusinessID       string             `json:"business_id"`
	UserID           string             `json:"user_id"`
	OpenedAt         time.Time          `json:"opened_at"`
	Lines            []LineView         `json:"lines"`
	Total            decimal.Decimal    `json:"total"`
	ItemCount        int                `json:"item_count"`
	Selection        SelectionView      `json:"selection"`
	State            sale.State         `json:"state"`
	LastError        string             `json:"last_error,omitempty"`
	LastSale         *domain.SaleResult `json:"last_sale,omitempty"`
	CatalogFetchedAt time.Time          `json:"catalog_fetched_at"`
}

// View recomputes line and cart totals from the ledger on every call.
func (s *Session) View() View {
	s.mu.Lock()
	lines := s.ledger.Lines()
	selection := s.selection
	fetchedAt := s.snapshot.FetchedAt()
	s.mu.Unlock()

	v := View{
		ID:               s.id,
		BusinessID:       s.businessID,
		UserID:           s.userID,
		OpenedAt:         s.openedAt,
		Lines:            make([]LineView, 0, len(lines)),
		Total:            cart.CartTotal(lines),
		ItemCount:        cart.ItemCount(lines),
		Selection:        SelectionView(selection),
		State:            s.submitter.State(),
		CatalogFetchedAt: fetchedAt,
	}
	for _, line := range lines {
		v.Lines = append(v.Lines, LineView{LineItem: line, LineTotal: line.LineTotal()})
	}
	var subErr *sale.SubmissionError
	if err := s.submitter.LastError(); errors.As(err, &subErr) {
		v.LastError = subErr.Message
	}
	if last, ok := s.submitter.LastResult(); ok {
		v.LastSale = &last
	}
	return v
}

// CatalogEntry is a catalog item annotated with what the cart may still
// claim. Available is nil for services.
type CatalogEntry struct {
	Type      domain.ItemType `json:"type"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     *int            `json:"stock,omitempty"`
	Available *int            `json:"available"`
	InCart    int             `json:"in_cart"`
}

func (s *Session) Catalog(query string) []CatalogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := catalog.Search(s.snapshot, query)
	entries := make([]CatalogEntry, 0, len(items))
	for _, item := range items {
		entry := CatalogEntry{
			Type:   item.Type,
			ID:     item.ID,
			Name:   item.Name,
			Price:  item.Price,
			InCart: s.ledger.QuantityOf(item.Key()),
		}
		if item.Type == domain.ItemProduct {
			stock := item.Stock
			available := cart.Available(item, s.ledger)
			entry.Stock = &stock
			entry.Available = &available
		}
		entries = append(entries, entry)
	}
	return entries
}

func (s *Session) State() sale.State {
	return s.submitter.State()
}

func (s *Session) touchLocked() {
	s.touched = s.now().UTC()
}

func (s *Session) lastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

func (s *Session) audit(ctx context.Context, action string, fields ...zap.Field) {
	userID := s.userID
	if actor, ok := ActorFromContext(ctx); ok {
		userID = actor.UserID
	}
	base := []zap.Field{
		zap.String("action", action),
		zap.String("session_id", s.id),
		zap.String("business_id", s.businessID),
		zap.String("user_id", userID),
	}
	s.logger.Info("audit", append(base, fields...)...)
}
