package authz

import (
	"context"
	"errors"
	"net/url"
	"time"

	"go.uber.org/zap"

	"cajapos/backend/internal/cache"
	"cajapos/backend/internal/domain"
	"cajapos/backend/internal/metrics"
	"cajapos/backend/internal/store"
)

const DefaultTTL = 5 * time.Minute

type Action int

const (
	View Action = iota
	Edit
	Delete
)

func (a Action) String() string {
	switch a {
	case View:
		return "view"
	case Edit:
		return "edit"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Authorizer answers permission predicates for (business, user) pairs. Sets
// fetched from the source are cached for ttl and can be dropped explicitly
// with Invalidate.
type Authorizer struct {
	source  store.PermissionSource
	cache   cache.PermissionCache
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

type Option func(*Authorizer)

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authorizer) { a.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Authorizer) {
		if l != nil {
			a.logger = l
		}
	}
}

func New(source store.PermissionSource, permissionCache cache.PermissionCache, ttl time.Duration, opts ...Option) *Authorizer {
	if permissionCache == nil {
		permissionCache = cache.NoopPermissionCache{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	a := &Authorizer{source: source, cache: permissionCache, ttl: ttl, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("authz")
	return a
}

// Key is the cache key for a user's set. Both parts are path-escaped so the
// separator cannot appear inside either of them.
func Key(businessID string, userID string) string {
	return url.PathEscape(businessID) + "|" + url.PathEscape(userID)
}

// Permissions returns the caller's set. A user the source does not know gets
// an empty set, which denies everything.
func (a *Authorizer) Permissions(ctx context.Context, businessID string, userID string) (domain.PermissionSet, error) {
	key := Key(businessID, userID)

	cached, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		a.logger.Warn("permission cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok && cached != nil {
		a.metrics.PermissionLookup("hit")
		return *cached, nil
	}
	a.metrics.PermissionLookup("miss")

	perms, err := a.source.FetchPermissions(ctx, businessID, userID)
	if errors.Is(err, store.ErrNotFound) {
		perms = domain.PermissionSet{BusinessID: businessID, UserID: userID}
	} else if err != nil {
		return domain.PermissionSet{}, err
	}

	if err := a.cache.Set(ctx, key, &perms, a.ttl); err != nil {
		a.logger.Warn("permission cache write failed", zap.String("key", key), zap.Error(err))
	}
	return perms, nil
}

func (a *Authorizer) Allowed(ctx context.Context, businessID string, userID string, resource string, action Action) (bool, error) {
	perms, err := a.Permissions(ctx, businessID, userID)
	if err != nil {
		return false, err
	}
	return Allows(perms, resource, action), nil
}

func (a *Authorizer) CanView(ctx context.Context, businessID string, userID string, resource string) (bool, error) {
	return a.Allowed(ctx, businessID, userID, resource, View)
}

func (a *Authorizer) CanEdit(ctx context.Context, businessID string, userID string, resource string) (bool, error) {
	return a.Allowed(ctx, businessID, userID, resource, Edit)
}

func (a *Authorizer) CanDelete(ctx context.Context, businessID string, userID string, resource string) (bool, error) {
	return a.Allowed(ctx, businessID, userID, resource, Delete)
}

func (a *Authorizer) HasFullAccess(ctx context.Context, businessID string, userID string) (bool, error) {
	perms, err := a.Permissions(ctx, businessID, userID)
	if err != nil {
		return false, err
	}
	return perms.FullAccess, nil
}

// Invalidate forgets the cached set so the next check goes to the source.
func (a *Authorizer) Invalidate(ctx context.Context, businessID string, userID string) error {
	return a.cache.Delete(ctx, Key(businessID, userID))
}

// Allows evaluates one predicate against a set. Full access grants
// everything.
func Allows(perms domain.PermissionSet, resource string, action Action) bool {
	if perms.FullAccess {
		return true
	}
	access, ok := perms.Resources[resource]
	if !ok {
		return false
	}
	switch action {
	case View:
		return access.View
	case Edit:
		return access.Edit
	case Delete:
		return access.Delete
	default:
		return false
	}
}
