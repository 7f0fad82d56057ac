package sale

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"cajapos/backend/internal/cart"
	"cajapos/backend/internal/domain"
	"cajapos/backend/internal/store"
)

type State int

const (
	Idle State = iota
	Submitting
	Settled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Settled:
		return "settled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var ErrSubmissionInFlight = errors.New("a sale submission is already in progress")

var errNotBegun = errors.New("commit without a begun submission")

const genericFailure = "the sale could not be recorded, try again"

// SubmissionError is a failed collaborator call. Message is what the cashier
// sees: the server's reason when it sent one.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	return e.Message
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

func newSubmissionError(err error) *SubmissionError {
	var rejection *store.RejectionError
	if errors.As(err, &rejection) && rejection.Reason != "" {
		return &SubmissionError{Message: rejection.Reason, Err: err}
	}
	return &SubmissionError{Message: genericFailure, Err: err}
}

// Observer receives one call per finished collaborator call.
type Observer interface {
	SubmissionFinished(outcome string, elapsed time.Duration)
}

// Submitter gates a cart to one in-flight sale at a time. It holds no lock
// while the collaborator call runs.
type Submitter struct {
	recorder store.SaleRecorder
	observer Observer
	logger   *zap.Logger

	mu      sync.Mutex
	state   State
	lastErr error
	last    *domain.SaleResult
}

type Option func(*Submitter)

func WithObserver(o Observer) Option {
	return func(s *Submitter) { s.observer = o }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Submitter) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewSubmitter(recorder store.SaleRecorder, opts ...Option) *Submitter {
	s := &Submitter{recorder: recorder, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Submitter) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError is the failure of the most recent submission, nil after a
// settle or before any attempt.
func (s *Submitter) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Submitter) LastResult() (domain.SaleResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return domain.SaleResult{}, false
	}
	return *s.last, true
}

// Reset returns a settled or failed submitter to Idle. It does nothing while
// a submission is in flight.
func (s *Submitter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Submitting {
		return
	}
	s.state = Idle
	s.lastErr = nil
}

// Submit validates lines and sel, then issues exactly one SubmitSale call.
// Validation failures leave the state as it was.
func (s *Submitter) Submit(ctx context.Context, businessID string, lines []cart.LineItem, sel Selection) (domain.SaleResult, error) {
	req, err := s.Begin(lines, sel)
	if err != nil {
		return domain.SaleResult{}, err
	}
	return s.Commit(ctx, businessID, req, nil)
}

// Begin builds the request and moves the submitter to Submitting. Callers
// that own the cart hold their own lock across Begin so the lines they copied
// are the lines that get committed.
func (s *Submitter) Begin(lines []cart.LineItem, sel Selection) (domain.SaleRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Submitting {
		return domain.SaleRequest{}, ErrSubmissionInFlight
	}
	req, err := BuildRequest(lines, sel)
	if err != nil {
		return domain.SaleRequest{}, err
	}
	s.state = Submitting
	return req, nil
}

// Commit sends a request obtained from Begin. onSettled, when set, runs after
// the collaborator accepted the sale and before the state leaves Submitting,
// so no new submission can start until it returns.
func (s *Submitter) Commit(ctx context.Context, businessID string, req domain.SaleRequest, onSettled func(domain.SaleResult)) (domain.SaleResult, error) {
	if s.State() != Submitting {
		return domain.SaleResult{}, errNotBegun
	}

	ctx, span := otel.Tracer("cajapos/sale").Start(ctx, "sale.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("business.id", businessID),
		attribute.Int("sale.lines", len(req.Lines)),
		attribute.String("sale.payment_method", string(req.PaymentMethod)),
	)

	started := time.Now()
	result, callErr := s.recorder.SubmitSale(ctx, businessID, req)
	elapsed := time.Since(started)
	if callErr == nil && onSettled != nil {
		onSettled(result)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if callErr != nil {
		subErr := newSubmissionError(callErr)
		s.state = Failed
		s.lastErr = subErr
		span.RecordError(callErr)
		span.SetStatus(codes.Error, subErr.Message)
		s.observe("failed", elapsed)
		s.logger.Warn("sale submission failed",
			zap.String("business_id", businessID),
			zap.String("reason", subErr.Message),
			zap.Error(callErr),
		)
		return domain.SaleResult{}, subErr
	}

	s.state = Settled
	s.lastErr = nil
	s.last = &result
	span.SetAttributes(attribute.String("sale.id", result.SaleID))
	s.observe("settled", elapsed)
	s.logger.Info("sale settled",
		zap.String("business_id", businessID),
		zap.String("sale_id", result.SaleID),
		zap.String("total", result.Total.String()),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

func (s *Submitter) observe(outcome string, elapsed time.Duration) {
	if s.observer != nil {
		s.observer.SubmissionFinished(outcome, elapsed)
	}
}
