package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"cajapos/backend/internal/domain"
	"cajapos/backend/internal/store"
)

const DefaultTimeout = 10 * time.Second

// Client talks to the business data service over REST. It implements
// store.Repository.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// saleResponse tells absent totals apart from echoed zeros.
type saleResponse struct {
	SaleID    string           `json:"venta_id"`
	Total     *decimal.Decimal `json:"total"`
	ItemCount *int             `json:"cantidad_items"`
	CreatedAt time.Time        `json:"fecha"`
}

func (b *errorBody) reason() string {
	if b == nil {
		return ""
	}
	if r := strings.TrimSpace(b.Error); r != "" {
		return r
	}
	return strings.TrimSpace(b.Message)
}

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if _, err := url.ParseRequestURI(base); err != nil || base == "" {
		return nil, fmt.Errorf("invalid data service url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			otel.GetTextMapPropagator().Inject(r.Context(), propagation.HeaderCarrier(r.Header))
			return nil
		})
	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}
	return &Client{http: rc, logger: logger.Named("remote")}, nil
}

func (c *Client) FetchCatalogProducts(ctx context.Context, businessID string) ([]domain.CatalogProduct, error) {
	var products []domain.CatalogProduct
	if err := c.get(ctx, "/negocios/{business}/productos", businessID, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) FetchCatalogServices(ctx context.Context, businessID string) ([]domain.CatalogService, error) {
	var services []domain.CatalogService
	if err := c.get(ctx, "/negocios/{business}/servicios", businessID, &services); err != nil {
		return nil, err
	}
	return services, nil
}

func (c *Client) FetchCustomers(ctx context.Context, businessID string) ([]domain.Customer, error) {
	var customers []domain.Customer
	if err := c.get(ctx, "/negocios/{business}/clientes", businessID, &customers); err != nil {
		return nil, err
	}
	return customers, nil
}

func (c *Client) FetchPermissions(ctx context.Context, businessID string, userID string) (domain.PermissionSet, error) {
	var perms domain.PermissionSet
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"business": businessID, "user": userID}).
		SetResult(&perms).
		SetError(&errorBody{}).
		Get("/negocios/{business}/permisos/{user}")
	if err := c.check(resp, err, "fetch permissions"); err != nil {
		return domain.PermissionSet{}, err
	}
	if perms.BusinessID == "" {
		perms.BusinessID = businessID
	}
	if perms.UserID == "" {
		perms.UserID = userID
	}
	return perms, nil
}

// SubmitSale posts the request body unchanged. A rejection carries the
// service's own reason.
func (c *Client) SubmitSale(ctx context.Context, businessID string, req domain.SaleRequest) (domain.SaleResult, error) {
	var echoed saleResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("business", businessID).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&echoed).
		SetError(&errorBody{}).
		Post("/negocios/{business}/ventas")
	if err := c.check(resp, err, "submit sale"); err != nil {
		return domain.SaleResult{}, err
	}
	result := domain.SaleResult{SaleID: echoed.SaleID, CreatedAt: echoed.CreatedAt}
	if echoed.Total != nil {
		result.Total = *echoed.Total
	} else {
		result.Total = req.Total()
	}
	if echoed.ItemCount != nil {
		result.ItemCount = *echoed.ItemCount
	} else {
		for _, line := range req.Lines {
			result.ItemCount += line.Quantity
		}
	}
	return result, nil
}

func (c *Client) get(ctx context.Context, path string, businessID string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("business", businessID).
		SetResult(out).
		SetError(&errorBody{}).
		Get(path)
	return c.check(resp, err, strings.TrimPrefix(path, "/negocios/{business}/"))
}

func (c *Client) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		c.logger.Warn("data service call failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}

	status := resp.StatusCode()
	body, _ := resp.Error().(*errorBody)
	reason := body.reason()
	c.logger.Warn("data service rejected request",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("reason", reason),
	)

	sentinel := statusSentinel(status)
	if reason == "" {
		if sentinel != nil {
			return fmt.Errorf("%s: status %d: %w", op, status, sentinel)
		}
		return fmt.Errorf("%s: data service returned status %d", op, status)
	}
	if sentinel == nil {
		sentinel = errors.New(http.StatusText(status))
	}
	return &store.RejectionError{Reason: reason, Status: status, Err: sentinel}
}

func statusSentinel(status int) error {
	switch status {
	case http.StatusNotFound:
		return store.ErrNotFound
	case http.StatusConflict:
		return store.ErrInsufficientStock
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return store.ErrInvalidSale
	default:
		return nil
	}
}
