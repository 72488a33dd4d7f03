package rbac

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestPermissionCacheExpiresAtTTL(t *testing.T) {
	clock := newFakeClock()
	cache, err := NewPermissionCache(8, 10*time.Second, clock.Now)
	require.NoError(t, err)

	cache.Store("u1", NewPermissionSet("user.read"), cache.Generation())

	clock.Advance(9 * time.Second)
	perms, ok := cache.Get("u1")
	require.True(t, ok)
	require.True(t, perms.Has("user.read"))

	clock.Advance(time.Second)
	_, ok = cache.Get("u1")
	require.False(t, ok)
	require.Zero(t, cache.Len())
}

func TestPermissionCacheClampsTTL(t *testing.T) {
	cache, err := NewPermissionCache(0, time.Hour, nil)
	require.NoError(t, err)
	require.Equal(t, MaxCacheTTL, cache.TTL())

	cache, err = NewPermissionCache(0, 0, nil)
	require.NoError(t, err)
	require.Equal(t, MaxCacheTTL, cache.TTL())
}

func TestPermissionCacheInvalidateRejectsStaleStore(t *testing.T) {
	cache, err := NewPermissionCache(8, time.Second, newFakeClock().Now)
	require.NoError(t, err)

	gen := cache.Generation()
	cache.Invalidate("u1")
	cache.Store("u1", NewPermissionSet("user.delete"), gen)

	_, ok := cache.Get("u1")
	require.False(t, ok)
}

func TestPermissionCacheReturnsCopies(t *testing.T) {
	cache, err := NewPermissionCache(8, time.Second, newFakeClock().Now)
	require.NoError(t, err)

	cache.Store("u1", NewPermissionSet("house.read"), cache.Generation())
	perms, ok := cache.Get("u1")
	require.True(t, ok)
	perms.Add("user.delete")

	again, ok := cache.Get("u1")
	require.True(t, ok)
	require.False(t, again.Has("user.delete"))
}
