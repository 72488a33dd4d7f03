package app

import (
	"strings"
	"time"

	"github.com/domushq/domus/internal/auth"
	"github.com/domushq/domus/internal/middleware"
)

const (
	defaultCookieName       = "domus_refresh"
	defaultCookiePath       = "/api/auth"
	defaultRateLimitWindow  = time.Minute
	defaultRateLimitRequest = 10
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	refreshTTL := c.Session.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = auth.DefaultRefreshTokenTTL
	}

	return auth.JWTConfig{
		AccessSecret:    c.JWT.AccessSecret,
		RefreshSecret:   c.JWT.RefreshSecret,
		Issuer:          strings.TrimSpace(c.JWT.Issuer),
		AccessTokenTTL:  ttl,
		RefreshTokenTTL: refreshTTL,
	}
}

// CookieName returns the refresh cookie name, falling back to the default.
func (c AuthConfig) CookieName() string {
	if name := strings.TrimSpace(c.Cookie.Name); name != "" {
		return name
	}
	return defaultCookieName
}

// CookiePath returns the path the refresh cookie is scoped to.
func (c AuthConfig) CookiePath() string {
	if path := strings.TrimSpace(c.Cookie.Path); path != "" {
		return path
	}
	return defaultCookiePath
}

// RateLimitConfig converts the auth throttling settings for the middleware.
// A disabled limiter yields ok == false.
func (c AuthConfig) RateLimitConfig() (middleware.RateLimitConfig, bool) {
	if !c.RateLimit.Enabled {
		return middleware.RateLimitConfig{}, false
	}

	requests := c.RateLimit.Requests
	if requests <= 0 {
		requests = defaultRateLimitRequest
	}
	window := c.RateLimit.Window
	if window <= 0 {
		window = defaultRateLimitWindow
	}

	return middleware.RateLimitConfig{
		Requests: requests,
		Window:   window,
		Prefix:   "auth",
	}, true
}
