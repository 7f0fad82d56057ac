package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cajapos/backend/internal/cart"
	"cajapos/backend/internal/catalog"
	"cajapos/backend/internal/domain"
	"cajapos/backend/internal/metrics"
	"cajapos/backend/internal/sale"
	"cajapos/backend/internal/store"
	"cajapos/backend/internal/xid"
)

var (
	ErrSessionNotFound      = errors.New("sale session not found")
	ErrUnknownItem          = errors.New("item not in catalog")
	ErrUnknownCustomer      = errors.New("customer not found")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
	ErrInvalidInput         = errors.New("invalid input")
)

// Backend is everything a sale session needs from the data service.
type Backend interface {
	store.CatalogSource
	store.CustomerSource
	store.SaleRecorder
}

// Service keeps the open sale sessions. Sessions live only in memory; a
// restart discards every cart, as closing the sale screen would.
type Service struct {
	backend Backend
	loader  *catalog.Loader
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(backend Backend, opts ...Option) *Service {
	s := &Service{
		backend:  backend,
		logger:   zap.NewNop(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.loader = catalog.NewLoader(backend, s.logger)
	return s
}

// OpenSession starts an empty cart against a fresh catalog snapshot and the
// business's customer list.
func (s *Service) OpenSession(ctx context.Context, businessID string, userID string) (*Session, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, fmt.Errorf("%w: business id is required", ErrInvalidInput)
	}

	var (
		snapshot  *catalog.Snapshot
		customers []domain.Customer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snapshot, err = s.loader.Load(gctx, businessID)
		s.metrics.CatalogLoaded(err)
		return err
	})
	g.Go(func() error {
		var err error
		customers, err = s.backend.FetchCustomers(gctx, businessID)
		if err != nil {
			return fmt.Errorf("fetch customers: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sess := &Session{
		id:         xid.New("sess"),
		businessID: businessID,
		userID:     userID,
		openedAt:   s.now().UTC(),
		now:        s.now,
		loader:     s.loader,
		metrics:    s.metrics,
		logger:     s.logger.Named("session"),
		ledger:     cart.NewLedger(),
		snapshot:   snapshot,
		customers:  customers,
		submitter: sale.NewSubmitter(s.backend,
			sale.WithObserver(s.metrics),
			sale.WithLogger(s.logger.Named("sale")),
		),
	}
	sess.touched = sess.openedAt

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	s.metrics.SessionOpened()

	sess.audit(ctx, "session_open", zap.Int("customers", len(customers)))
	return sess, nil
}

// Session looks a session up. When ctx carries an actor, sessions of other
// businesses are reported as not found.
func (s *Service) Session(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if actor, ok := ActorFromContext(ctx); ok && actor.BusinessID != sess.businessID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// DiscardSession empties the cart and forgets the session. The data service
// is not notified.
func (s *Service) DiscardSession(ctx context.Context, id string) error {
	sess, err := s.Session(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	s.metrics.SessionClosed()

	sess.Discard(ctx)
	sess.audit(ctx, "session_close")
	return nil
}

// DiscardIdle drops sessions untouched for longer than maxIdle and reports how
// many were dropped. Sessions with a submission in flight are kept.
func (s *Service) DiscardIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id, sess := range s.sessions {
		if sess.submitter.State() == sale.Submitting || sess.lastTouched().After(cutoff) {
			continue
		}
		delete(s.sessions, id)
		s.metrics.SessionClosed()
		dropped++
	}
	if dropped > 0 {
		s.logger.Info("idle sale sessions discarded", zap.Int("count", dropped))
	}
	return dropped
}

func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
