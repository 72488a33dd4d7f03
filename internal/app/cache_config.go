package app

import (
	"strings"

	"github.com/domushq/domus/internal/cache"
	"github.com/domushq/domus/internal/rbac"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// PermissionCache builds the RBAC permission cache from configuration.
func (c RBACConfig) PermissionCache() (*rbac.PermissionCache, error) {
	return rbac.NewPermissionCache(c.CacheSize, c.CacheTTL, nil)
}
