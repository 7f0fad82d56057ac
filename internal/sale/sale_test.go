package sale

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cajapos/backend/internal/cart"
	"cajapos/backend/internal/domain"
	"cajapos/backend/internal/store"
)

type recorderFunc func(ctx context.Context, businessID string, req domain.SaleRequest) (domain.SaleResult, error)

func (f recorderFunc) SubmitSale(ctx context.Context, businessID string, req domain.SaleRequest) (domain.SaleResult, error) {
	return f(ctx, businessID, req)
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *countingObserver) SubmissionFinished(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func sampleLines(t *testing.T) []cart.LineItem {
	t.Helper()
	l := cart.NewLedger()
	require.NoError(t, l.Add(cart.Item{Type: domain.ItemProduct, ID: "P", Name: "Shampoo", Price: decimal.RequireFromString("10.00"), Stock: 5}, 3))
	require.NoError(t, l.Add(cart.Item{Type: domain.ItemService, ID: "S", Name: "Corte", Price: decimal.RequireFromString("20.00")}, 1))
	return l.Lines()
}

func TestBuildRequestWireShape(t *testing.T) {
	customer := "cli-001"
	req, err := BuildRequest(sampleLines(t), Selection{CustomerID: &customer, PaymentMethod: domain.PaymentCard})
	require.NoError(t, err)

	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"cliente_id": "cli-001",
		"metodo_pago": "tarjeta",
		"observaciones": null,
		"items": [
			{"id": "P", "tipo": "producto", "cantidad": 3, "precio": "10"},
			{"id": "S", "tipo": "servicio", "cantidad": 1, "precio": "20"}
		]
	}`, string(raw))
}

func TestBuildRequestValidation(t *testing.T) {
	_, err := BuildRequest(nil, Selection{PaymentMethod: domain.PaymentCash})
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = BuildRequest(sampleLines(t), Selection{})
	assert.ErrorIs(t, err, ErrMissingPaymentMethod)

	_, err = BuildRequest(sampleLines(t), Selection{PaymentMethod: "cheque"})
	assert.ErrorIs(t, err, ErrMissingPaymentMethod)

	blank := "   "
	req, err := BuildRequest(sampleLines(t), Selection{PaymentMethod: domain.PaymentCash, Notes: &blank})
	require.NoError(t, err)
	assert.Nil(t, req.Notes)
}

func TestSubmitMissingPaymentMethodMakesNoCall(t *testing.T) {
	calls := 0
	s := NewSubmitter(recorderFunc(func(context.Context, string, domain.SaleRequest) (domain.SaleResult, error) {
		calls++
		return domain.SaleResult{}, nil
	}))

	_, err := s.Submit(context.Background(), "b1", sampleLines(t), Selection{})
	assert.ErrorIs(t, err, ErrMissingPaymentMethod)
	assert.Equal(t, 0, calls)
	assert.Equal(t, Idle, s.State())
}

func TestSubmitSettles(t *testing.T) {
	obs := &countingObserver{}
	var got domain.SaleRequest
	s := NewSubmitter(recorderFunc(func(_ context.Context, businessID string, req domain.SaleRequest) (domain.SaleResult, error) {
		assert.Equal(t, "b1", businessID)
		got = req
		return domain.SaleResult{SaleID: "sale-1", Total: req.Total(), ItemCount: 4}, nil
	}), WithObserver(obs))

	res, err := s.Submit(context.Background(), "b1", sampleLines(t), Selection{PaymentMethod: domain.PaymentCash})
	require.NoError(t, err)

	assert.Equal(t, "sale-1", res.SaleID)
	assert.True(t, res.Total.Equal(decimal.RequireFromString("50.00")))
	assert.Len(t, got.Lines, 2)
	assert.Equal(t, Settled, s.State())
	assert.NoError(t, s.LastError())
	last, ok := s.LastResult()
	require.True(t, ok)
	assert.Equal(t, "sale-1", last.SaleID)
	assert.Equal(t, []string{"settled"}, obs.outcomes)
}

func TestSubmitFailurePreservesServerReason(t *testing.T) {
	s := NewSubmitter(recorderFunc(func(context.Context, string, domain.SaleRequest) (domain.SaleResult, error) {
		return domain.SaleResult{}, store.InsufficientStock("Shampoo", 1)
	}))

	_, err := s.Submit(context.Background(), "b1", sampleLines(t), Selection{PaymentMethod: domain.PaymentCash})

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "insufficient stock for Shampoo (available 1)", subErr.Message)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, Failed, s.State())
	assert.Equal(t, err, s.LastError())
}

func TestSubmitFailureWithoutReasonIsGeneric(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	s := NewSubmitter(recorderFunc(func(context.Context, string, domain.SaleRequest) (domain.SaleResult, error) {
		return domain.SaleResult{}, boom
	}))

	_, err := s.Submit(context.Background(), "b1", sampleLines(t), Selection{PaymentMethod: domain.PaymentCash})

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, genericFailure, subErr.Message)
	assert.ErrorIs(t, err, boom)

	s.Reset()
	assert.Equal(t, Idle, s.State())
	assert.NoError(t, s.LastError())
}

func TestSecondSubmitWhileInFlightIsRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	s := NewSubmitter(recorderFunc(func(context.Context, string, domain.SaleRequest) (domain.SaleResult, error) {
		calls++
		close(entered)
		<-release
		return domain.SaleResult{SaleID: "sale-1"}, nil
	}))
	sel := Selection{PaymentMethod: domain.PaymentTransfer}
	lines := sampleLines(t)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "b1", lines, sel)
		done <- err
	}()
	<-entered

	assert.Equal(t, Submitting, s.State())
	_, err := s.Submit(context.Background(), "b1", lines, sel)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	s.Reset()
	assert.Equal(t, Submitting, s.State())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, calls)
	assert.Equal(t, Settled, s.State())
}

func TestSettleHookRunsBeforeSubmittingEnds(t *testing.T) {
	s := NewSubmitter(recorderFunc(func(context.Context, string, domain.SaleRequest) (domain.SaleResult, error) {
		return domain.SaleResult{SaleID: "sale-1"}, nil
	}))

	req, err := s.Begin(sampleLines(t), Selection{PaymentMethod: domain.PaymentCard})
	require.NoError(t, err)
	assert.Equal(t, Submitting, s.State())

	var stateInHook State
	var hookErr error
	res, err := s.Commit(context.Background(), "b1", req, func(r domain.SaleResult) {
		assert.Equal(t, "sale-1", r.SaleID)
		stateInHook = s.State()
		_, hookErr = s.Begin(sampleLines(t), Selection{PaymentMethod: domain.PaymentCard})
	})
	require.NoError(t, err)

	assert.Equal(t, "sale-1", res.SaleID)
	assert.Equal(t, Submitting, stateInHook)
	assert.ErrorIs(t, hookErr, ErrSubmissionInFlight)
	assert.Equal(t, Settled, s.State())
}

func TestCommitWithoutBeginMakesNoCall(t *testing.T) {
	calls := 0
	s := NewSubmitter(recorderFunc(func(context.Context, string, domain.SaleRequest) (domain.SaleResult, error) {
		calls++
		return domain.SaleResult{}, nil
	}))

	_, err := s.Commit(context.Background(), "b1", domain.SaleRequest{PaymentMethod: domain.PaymentCash}, nil)

	assert.Error(t, err)
	assert.Zero(t, calls)
	assert.Equal(t, Idle, s.State())
}

func TestFailedCommitSkipsSettleHook(t *testing.T) {
	s := NewSubmitter(recorderFunc(func(context.Context, string, domain.SaleRequest) (domain.SaleResult, error) {
		return domain.SaleResult{}, store.Reject("caja cerrada", store.ErrInvalidSale)
	}))
	req, err := s.Begin(sampleLines(t), Selection{PaymentMethod: domain.PaymentTransfer})
	require.NoError(t, err)

	hooked := false
	_, err = s.Commit(context.Background(), "b1", req, func(domain.SaleResult) { hooked = true })

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "caja cerrada", subErr.Message)
	assert.False(t, hooked)
	assert.Equal(t, Failed, s.State())
}

func TestStateText(t *testing.T) {
	raw, err := json.Marshal(map[string]State{"state": Submitting})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"submitting"}`, string(raw))
}
