package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"cajapos/backend/internal/authz"
	"cajapos/backend/internal/metrics"
	"cajapos/backend/internal/service"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	authz         *authz.Authorizer
	metrics       *metrics.Metrics
	logger        *zap.Logger
	allowedOrigin string
}

type Option func(*API)

func WithLogger(l *zap.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics exposes m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *API) { a.metrics = m }
}

func New(svc *service.Service, auth *AuthManager, authorizer *authz.Authorizer, allowedOrigin string, opts ...Option) *API {
	a := &API{
		service:       svc,
		auth:          auth,
		authz:         authorizer,
		logger:        zap.NewNop(),
		allowedOrigin: allowedOrigin,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("http")
	return a
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}

	mux.HandleFunc("POST /api/v1/sales/sessions", a.guard(authz.Edit, a.handleOpenSession))
	mux.HandleFunc("GET /api/v1/sales/sessions/{id}", a.guard(authz.View, a.handleGetSession))
	mux.HandleFunc("DELETE /api/v1/sales/sessions/{id}", a.guard(authz.Edit, a.handleDiscardSession))
	mux.HandleFunc("POST /api/v1/sales/sessions/{id}/lines", a.guard(authz.Edit, a.handleAddLine))
	mux.HandleFunc("PATCH /api/v1/sales/sessions/{id}/lines/{type}/{itemID}", a.guard(authz.Edit, a.handleSetQuantity))
	mux.HandleFunc("DELETE /api/v1/sales/sessions/{id}/lines/{type}/{itemID}", a.guard(authz.Edit, a.handleRemoveLine))
	mux.HandleFunc("PUT /api/v1/sales/sessions/{id}/customer", a.guard(authz.Edit, a.handleSelectCustomer))
	mux.HandleFunc("PUT /api/v1/sales/sessions/{id}/payment-method", a.guard(authz.Edit, a.handleSelectPaymentMethod))
	mux.HandleFunc("PUT /api/v1/sales/sessions/{id}/notes", a.guard(authz.Edit, a.handleSetNotes))
	mux.HandleFunc("POST /api/v1/sales/sessions/{id}/checkout", a.guard(authz.Edit, a.handleCheckout))
	mux.HandleFunc("POST /api/v1/sales/sessions/{id}/catalog/refresh", a.guard(authz.View, a.handleRefreshCatalog))
	mux.HandleFunc("GET /api/v1/sales/sessions/{id}/catalog", a.guard(authz.View, a.handleCatalog))
	mux.HandleFunc("GET /api/v1/sales/sessions/{id}/customers", a.guard(authz.View, a.handleCustomers))

	mux.HandleFunc("POST /api/v1/permissions/invalidate", a.requireAuth(a.handleInvalidatePermissions))

	return a.withMiddleware(mux)
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"at":       time.Now().UTC().Format(time.RFC3339),
		"sessions": a.service.SessionCount(),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, traceparent")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := otel.Tracer("cajapos/http").Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("http.method", r.Method)),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(startedAt)),
		)
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies never carry internal details; the log does.
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func bearerToken(r *http.Request) (string, error) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		return "", errors.New("missing bearer token")
	}
	return strings.TrimSpace(authorization[len("Bearer "):]), nil
}
