package rbac

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*PermissionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPermissionCache(client, time.Minute), mr
}

func TestPermissionCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)

	perms := []string{PermCatalogView, PermSalesCreate}
	require.NoError(t, cache.Set(ctx, "u1", perms))

	got, ok, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, perms, got)
}

func TestPermissionCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "u1", []string{PermCatalogView}))
	require.NoError(t, cache.Invalidate(ctx, "u1"))

	_, ok, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPermissionCacheInvalidateRole(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "u1", []string{PermCatalogView}))
	require.NoError(t, cache.Set(ctx, "u2", []string{PermCatalogEdit}))
	require.NoError(t, cache.Set(ctx, "u3", []string{PermSalesView}))

	require.NoError(t, cache.InvalidateRole(ctx, []string{"u1", "u2"}))

	_, ok, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = cache.Get(ctx, "u2")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = cache.Get(ctx, "u3")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPermissionCacheExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "u1", []string{PermCatalogView}))
	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPermissionCacheNilClient(t *testing.T) {
	var cache *PermissionCache
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, cache.Set(ctx, "u1", nil))
	require.NoError(t, cache.Invalidate(ctx, "u1"))
}
