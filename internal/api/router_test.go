package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/domushq/domus/internal/app"
	iauth "github.com/domushq/domus/internal/auth"
	"github.com/domushq/domus/internal/cache"
	"github.com/domushq/domus/internal/database/testutil"
	"github.com/domushq/domus/internal/monitoring"
	"github.com/domushq/domus/internal/rbac"
)

type routerDeps struct {
	db       *gorm.DB
	jwt      *iauth.JWTService
	sessions *iauth.SessionService
	engine   *rbac.Engine
	cfg      *app.Config
}

func newRouterDeps(t *testing.T) (routerDeps, func() (*gin.Engine, error)) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	cfg := &app.Config{
		Server: app.ServerConfig{Development: true},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				AccessSecret:  "router-access-secret-0123456789abcd",
				RefreshSecret: "router-refresh-secret-0123456789abc",
				TTL:           time.Minute,
			},
		},
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)
	roles, err := rbac.LoadRoleTable(context.Background(), db)
	require.NoError(t, err)
	engine, err := rbac.NewEngine(db, roles)
	require.NoError(t, err)
	sessions, err := iauth.NewSessionService(db, jwtSvc, engine, iauth.SessionConfig{})
	require.NoError(t, err)

	deps := routerDeps{db: db, jwt: jwtSvc, sessions: sessions, engine: engine, cfg: cfg}
	build := func() (*gin.Engine, error) {
		return NewRouter(deps.db, deps.jwt, deps.cfg, deps.sessions, deps.engine, cache.NewMemoryStore(nil))
	}
	return deps, build
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	_, build := newRouterDeps(t)
	router, err := build()
	require.NoError(t, err)

	for _, path := range []string{"/health", "/api/health"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), `"status":"ok"`)
		require.NotEmpty(t, w.Header().Get("X-Request-ID"))
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRouterUnknownRouteIsJSON404(t *testing.T) {
	_, build := newRouterDeps(t)
	router, err := build()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nowhere", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), `"NOT_FOUND"`)
}

func TestRouterRequiresDependencies(t *testing.T) {
	deps, build := newRouterDeps(t)

	_, err := NewRouter(nil, deps.jwt, deps.cfg, deps.sessions, deps.engine, nil)
	require.Error(t, err)

	deps.cfg.Server.TrustedProxies = []string{"not-an-ip"}
	_, err = build()
	require.Error(t, err)
}

func TestRouterReadiness(t *testing.T) {
	deps, build := newRouterDeps(t)
	router, err := build()
	require.NoError(t, err)

	for _, path := range []string{"/health/ready", "/api/health/ready"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), `"component":"database"`)
		require.Contains(t, w.Body.String(), `"component":"roles"`)
		require.Contains(t, w.Body.String(), `"ready":true`)
	}

	down := monitoring.NewCheck("broker", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "unreachable"}
	})
	router, err = NewRouter(deps.db, deps.jwt, deps.cfg, deps.sessions, deps.engine, nil, WithReadinessChecks(down))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), `"code":"NOT_READY"`)
	require.Contains(t, w.Body.String(), `"component":"broker"`)
}
