package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"cajapos/backend/internal/domain"
)

// PermissionCache stores permission sets under an explicit key with an
// explicit time-to-live.
type PermissionCache interface {
	Get(ctx context.Context, key string) (*domain.PermissionSet, bool, error)
	Set(ctx context.Context, key string, value *domain.PermissionSet, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopPermissionCache struct{}

func (NoopPermissionCache) Get(_ context.Context, _ string) (*domain.PermissionSet, bool, error) {
	return nil, false, nil
}

func (NoopPermissionCache) Set(_ context.Context, _ string, _ *domain.PermissionSet, _ time.Duration) error {
	return nil
}

func (NoopPermissionCache) Delete(_ context.Context, _ string) error {
	return nil
}

// MemoryPermissionCache is the single-process default. Reads never extend an
// entry's lifetime; expired entries are purged on each write.
type MemoryPermissionCache struct {
	items *ttlcache.Cache[string, domain.PermissionSet]
}

func NewMemoryPermissionCache() *MemoryPermissionCache {
	return &MemoryPermissionCache{
		items: ttlcache.New[string, domain.PermissionSet](
			ttlcache.WithDisableTouchOnHit[string, domain.PermissionSet](),
		),
	}
}

func (c *MemoryPermissionCache) Get(_ context.Context, key string) (*domain.PermissionSet, bool, error) {
	item := c.items.Get(key)
	if item == nil {
		return nil, false, nil
	}
	value := clonePermissions(item.Value())
	return &value, true, nil
}

func (c *MemoryPermissionCache) Set(_ context.Context, key string, value *domain.PermissionSet, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}
	c.items.DeleteExpired()
	c.items.Set(key, clonePermissions(*value), ttl)
	return nil
}

func (c *MemoryPermissionCache) Delete(_ context.Context, key string) error {
	c.items.Delete(key)
	return nil
}

func (c *MemoryPermissionCache) Len() int {
	return c.items.Len()
}

func clonePermissions(src domain.PermissionSet) domain.PermissionSet {
	dup := src
	if src.Resources != nil {
		dup.Resources = make(map[string]domain.ResourceAccess, len(src.Resources))
		for k, v := range src.Resources {
			dup.Resources[k] = v
		}
	}
	return dup
}
