package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/domushq/domus/internal/app"
	iauth "github.com/domushq/domus/internal/auth"
	"github.com/domushq/domus/internal/cache"
	"github.com/domushq/domus/internal/delegation"
	"github.com/domushq/domus/internal/handlers"
	"github.com/domushq/domus/internal/middleware"
	"github.com/domushq/domus/internal/monitoring"
	"github.com/domushq/domus/internal/monitoring/checks"
	"github.com/domushq/domus/internal/rbac"
	"github.com/domushq/domus/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers every route.
// rateStore may be nil, which disables auth rate limiting.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, sessions *iauth.SessionService, engine *rbac.Engine, rateStore cache.Store, opts ...Option) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session service must be provided")
	}
	if engine == nil {
		return nil, fmt.Errorf("rbac engine must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders(middleware.SecurityConfig{
		ForceHTTPS:  cfg.Server.ForceHTTPS,
		Development: cfg.Server.Development,
	}))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))

	auditSvc, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	validator, err := delegation.NewValidator(db)
	if err != nil {
		return nil, err
	}
	userSvc, err := services.NewUserService(db, engine, validator, auditSvc)
	if err != nil {
		return nil, err
	}
	houseSvc, err := services.NewHouseService(db)
	if err != nil {
		return nil, err
	}
	boardSvc, err := services.NewBoardService(db)
	if err != nil {
		return nil, err
	}
	residentSvc, err := services.NewResidentService(db, auditSvc)
	if err != nil {
		return nil, err
	}

	var options routerOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	health := monitoring.NewHealthManager(checks.Database(db, 0), checks.Roles(db, 0))
	for _, check := range options.readiness {
		health.Register(check)
	}
	registerHealthRoutes(r, health)

	var authLimiter []gin.HandlerFunc
	if limit, ok := cfg.Auth.RateLimitConfig(); ok && rateStore != nil {
		authLimiter = append(authLimiter, middleware.RateLimit(rateStore, limit))
	}

	authHandler := handlers.NewAuthHandler(sessions, userSvc, auditSvc, handlers.CookieConfig{
		Name:   cfg.Auth.CookieName(),
		Path:   cfg.Auth.CookiePath(),
		Domain: cfg.Auth.Cookie.Domain,
		Secure: cfg.Auth.Cookie.Secure,
	})

	api := r.Group("/api")
	protected := api.Group("")
	protected.Use(middleware.Auth(jwt))

	registerAuthRoutes(api, protected, authHandler, authLimiter)
	registerUserRoutes(protected, handlers.NewUserHandler(userSvc))
	registerHouseRoutes(protected, handlers.NewHouseHandler(houseSvc), handlers.NewResidentHandler(residentSvc))
	registerPublicRoutes(api, handlers.NewBoardHandler(boardSvc))

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
