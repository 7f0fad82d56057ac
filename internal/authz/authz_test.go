package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cajapos/backend/internal/cache"
	"cajapos/backend/internal/domain"
	"cajapos/backend/internal/store"
	"cajapos/backend/internal/store/memory"
)

type countingSource struct {
	inner store.PermissionSource
	calls int
	err   error
}

func (s *countingSource) FetchPermissions(ctx context.Context, businessID string, userID string) (domain.PermissionSet, error) {
	s.calls++
	if s.err != nil {
		return domain.PermissionSet{}, s.err
	}
	return s.inner.FetchPermissions(ctx, businessID, userID)
}

func TestPredicates(t *testing.T) {
	a := New(memory.NewSeeded(), cache.NewMemoryPermissionCache(), time.Minute)
	ctx := context.Background()
	b := memory.DefaultBusinessID

	cases := []struct {
		user     string
		resource string
		action   Action
		want     bool
	}{
		{"admin", domain.ResourceSales, Delete, true},
		{"admin", "anything", Edit, true},
		{"cashier", domain.ResourceSales, View, true},
		{"cashier", domain.ResourceSales, Edit, true},
		{"cashier", domain.ResourceSales, Delete, false},
		{"cashier", domain.ResourceCatalog, Edit, false},
		{"auditor", domain.ResourceSales, View, true},
		{"auditor", domain.ResourceSales, Edit, false},
		{"stranger", domain.ResourceSales, View, false},
	}
	for _, tc := range cases {
		t.Run(tc.user+"/"+tc.resource+"/"+tc.action.String(), func(t *testing.T) {
			got, err := a.Allowed(ctx, b, tc.user, tc.resource, tc.action)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	full, err := a.HasFullAccess(ctx, b, "admin")
	require.NoError(t, err)
	assert.True(t, full)
	full, err = a.HasFullAccess(ctx, b, "cashier")
	require.NoError(t, err)
	assert.False(t, full)

	ok, err := a.CanView(ctx, b, "cashier", domain.ResourceSales)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.CanEdit(ctx, b, "auditor", domain.ResourceSales)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = a.CanDelete(ctx, b, "admin", domain.ResourceSales)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCachesUntilInvalidated(t *testing.T) {
	seeded := memory.NewSeeded()
	src := &countingSource{inner: seeded}
	a := New(src, cache.NewMemoryPermissionCache(), time.Minute)
	ctx := context.Background()
	b := memory.DefaultBusinessID

	for i := 0; i < 3; i++ {
		ok, err := a.CanEdit(ctx, b, "auditor", domain.ResourceSales)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, src.calls)

	seeded.PutPermissions(domain.PermissionSet{
		BusinessID: b,
		UserID:     "auditor",
		Resources:  map[string]domain.ResourceAccess{domain.ResourceSales: {View: true, Edit: true}},
	})
	ok, _ := a.CanEdit(ctx, b, "auditor", domain.ResourceSales)
	assert.False(t, ok)

	require.NoError(t, a.Invalidate(ctx, b, "auditor"))
	ok, err := a.CanEdit(ctx, b, "auditor", domain.ResourceSales)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, src.calls)
}

func TestSourceErrorsAreNotCached(t *testing.T) {
	boom := errors.New("permission service down")
	src := &countingSource{inner: memory.NewSeeded(), err: boom}
	a := New(src, cache.NewMemoryPermissionCache(), time.Minute)
	ctx := context.Background()

	_, err := a.CanView(ctx, memory.DefaultBusinessID, "cashier", domain.ResourceSales)
	assert.ErrorIs(t, err, boom)

	src.err = nil
	ok, err := a.CanView(ctx, memory.DefaultBusinessID, "cashier", domain.ResourceSales)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, src.calls)
}

func TestDefaultsWithoutCache(t *testing.T) {
	src := &countingSource{inner: memory.NewSeeded()}
	a := New(src, nil, 0)
	assert.Equal(t, DefaultTTL, a.ttl)

	_, _ = a.CanView(context.Background(), memory.DefaultBusinessID, "cashier", domain.ResourceSales)
	_, _ = a.CanView(context.Background(), memory.DefaultBusinessID, "cashier", domain.ResourceSales)
	assert.Equal(t, 2, src.calls)
}

func TestKeyIsUnambiguous(t *testing.T) {
	assert.NotEqual(t, Key("a|b", "c"), Key("a", "b|c"))
	assert.NotEqual(t, Key("a%7Cb", "c"), Key("a|b", "c"))
	assert.Equal(t, "main-business|cashier", Key("main-business", "cashier"))
}

func TestSeparatorInIDsDoesNotShareCacheEntries(t *testing.T) {
	repo := memory.New()
	repo.PutPermissions(domain.PermissionSet{BusinessID: "a|b", UserID: "c", FullAccess: true})
	a := New(repo, cache.NewMemoryPermissionCache(), time.Minute)
	ctx := context.Background()

	full, err := a.HasFullAccess(ctx, "a|b", "c")
	require.NoError(t, err)
	require.True(t, full)

	full, err = a.HasFullAccess(ctx, "a", "b|c")
	require.NoError(t, err)
	assert.False(t, full)
}
