package rbac

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/domushq/domus/pkg/metrics"
)

const (
	// MaxCacheTTL bounds how stale a cached permission set may be.
	MaxCacheTTL = 30 * time.Second
	// DefaultCacheSize is the number of users kept in the permission cache.
	DefaultCacheSize = 4096
)

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

type cacheEntry struct {
	perms    PermissionSet
	storedAt time.Time
}

// PermissionCache memoises effective permissions per user for at most the TTL.
type PermissionCache struct {
	entries    *lru.Cache[string, cacheEntry]
	ttl        time.Duration
	now        Clock
	generation atomic.Uint64
}

// NewPermissionCache creates a bounded cache. A ttl outside (0, MaxCacheTTL] is clamped.
func NewPermissionCache(size int, ttl time.Duration, now Clock) (*PermissionCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 || ttl > MaxCacheTTL {
		ttl = MaxCacheTTL
	}
	if now == nil {
		now = time.Now
	}

	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &PermissionCache{entries: entries, ttl: ttl, now: now}, nil
}

// TTL returns the effective cache window.
func (c *PermissionCache) TTL() time.Duration {
	return c.ttl
}

// Get returns a copy of the cached set when it is younger than the TTL.
func (c *PermissionCache) Get(userID string) (PermissionSet, bool) {
	entry, ok := c.entries.Get(userID)
	if !ok {
		metrics.RBACCache.WithLabelValues("miss").Inc()
		return nil, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.entries.Remove(userID)
		metrics.RBACCache.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.RBACCache.WithLabelValues("hit").Inc()
	return entry.perms.Clone(), true
}

// Generation identifies the invalidation epoch. A value computed under an old
// generation must not be stored.
func (c *PermissionCache) Generation() uint64 {
	return c.generation.Load()
}

// Store caches perms unless an invalidation happened since gen was read.
func (c *PermissionCache) Store(userID string, perms PermissionSet, gen uint64) {
	if c.generation.Load() != gen {
		return
	}
	c.entries.Add(userID, cacheEntry{perms: perms.Clone(), storedAt: c.now()})
}

// Invalidate drops the cached set for a user.
func (c *PermissionCache) Invalidate(userID string) {
	c.generation.Add(1)
	c.entries.Remove(userID)
}

// Purge drops every entry.
func (c *PermissionCache) Purge() {
	c.generation.Add(1)
	c.entries.Purge()
}

// Len returns the number of cached users.
func (c *PermissionCache) Len() int {
	return c.entries.Len()
}
