package httpapi

import (
	"errors"
	"net/http"

	"cajapos/backend/internal/cart"
	"cajapos/backend/internal/domain"
	"cajapos/backend/internal/sale"
	"cajapos/backend/internal/service"
	"cajapos/backend/internal/store"
)

type addLineRequest struct {
	Type     string `json:"type"`
	ItemID   string `json:"item_id"`
	Quantity *int   `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

type customerRequest struct {
	CustomerID string `json:"customer_id"`
}

type paymentMethodRequest struct {
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (a *API) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	sess, err := a.service.OpenSession(r.Context(), actor.BusinessID, actor.UserID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": sess.View()})
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess.View()})
}

func (a *API) handleDiscardSession(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DiscardSession(r.Context(), r.PathValue("id")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"discarded": true})
}

func (a *API) handleAddLine(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req addLineRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	itemType, err := domain.ParseItemType(req.Type)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if err := sess.AddLine(r.Context(), itemType, req.ItemID, quantity); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess.View()})
}

func (a *API) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	itemType, err := domain.ParseItemType(r.PathValue("type"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req setQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Quantity == nil {
		a.writeError(w, http.StatusBadRequest, errors.New("quantity is required"))
		return
	}
	if err := sess.SetQuantity(r.Context(), itemType, r.PathValue("itemID"), *req.Quantity); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess.View()})
}

func (a *API) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	itemType, err := domain.ParseItemType(r.PathValue("type"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	sess.RemoveLine(r.Context(), itemType, r.PathValue("itemID"))
	writeJSON(w, http.StatusOK, map[string]any{"session": sess.View()})
}

func (a *API) handleSelectCustomer(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req customerRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := sess.SelectCustomer(r.Context(), req.CustomerID); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess.View()})
}

func (a *API) handleSelectPaymentMethod(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req paymentMethodRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := sess.SelectPaymentMethod(r.Context(), req.PaymentMethod); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess.View()})
}

func (a *API) handleSetNotes(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req notesRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	sess.SetNotes(r.Context(), req.Notes)
	writeJSON(w, http.StatusOK, map[string]any{"session": sess.View()})
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	result, err := sess.Submit(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"sale":    result,
		"session": sess.View(),
	})
}

func (a *API) handleRefreshCatalog(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := sess.Refresh(r.Context()); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess.View()})
}

func (a *API) handleCatalog(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": sess.Catalog(r.URL.Query().Get("q"))})
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": sess.Customers()})
}

func (a *API) session(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	sess, err := a.service.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return nil, false
	}
	return sess, true
}

// writeServiceError maps engine errors to statuses. A failed submission is
// reported as 502 with the reason the cashier must see.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	var subErr *sale.SubmissionError
	if errors.As(err, &subErr) {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": subErr.Message})
		return
	}
	var stockErr *cart.InsufficientStockError
	if errors.As(err, &stockErr) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     stockErr.Error(),
			"requested": stockErr.Requested,
			"available": stockErr.Available,
		})
		return
	}
	a.writeError(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidItem),
		errors.Is(err, sale.ErrEmptyCart),
		errors.Is(err, sale.ErrMissingPaymentMethod),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, cart.ErrInsufficientStock),
		errors.Is(err, sale.ErrSubmissionInFlight):
		return http.StatusConflict
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrUnknownItem),
		errors.Is(err, service.ErrUnknownCustomer),
		errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}
