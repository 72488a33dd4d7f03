package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/domushq/domus/internal/api"
	"github.com/domushq/domus/internal/app"
	iauth "github.com/domushq/domus/internal/auth"
	"github.com/domushq/domus/internal/cache"
	sharedtestutil "github.com/domushq/domus/internal/database/testutil"
	"github.com/domushq/domus/internal/delegation"
	"github.com/domushq/domus/internal/models"
	"github.com/domushq/domus/internal/rbac"
	"github.com/domushq/domus/pkg/crypto"
	"github.com/domushq/domus/pkg/response"
)

// DefaultPassword is the password given to users created by CreateUser.
const DefaultPassword = "password123"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	Engine *rbac.Engine
	Config *app.Config
}

// EnvOption adjusts the configuration before the router is built.
type EnvOption func(*app.Config)

// WithAuthRateLimit enables login and refresh throttling.
func WithAuthRateLimit(requests int, window time.Duration) EnvOption {
	return func(cfg *app.Config) {
		cfg.Auth.RateLimit = app.RateLimitSettings{Enabled: true, Requests: requests, Window: window}
	}
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	cfg := &app.Config{
		Server: app.ServerConfig{Development: true},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				AccessSecret:  "test-suite-access-secret-32-bytes!!",
				RefreshSecret: "test-suite-refresh-secret-32-bytes!",
				Issuer:        "test-suite",
				TTL:           time.Hour,
			},
			Session: app.SessionSettings{RefreshTTL: 24 * time.Hour},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	roles, err := rbac.LoadRoleTable(context.Background(), db)
	require.NoError(t, err)
	engine, err := rbac.NewEngine(db, roles)
	require.NoError(t, err)

	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, engine, iauth.SessionConfig{})
	require.NoError(t, err)

	router, err := api.NewRouter(db, jwtSvc, cfg, sessionSvc, engine, cache.NewMemoryStore(nil))
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		Engine: engine,
		Config: cfg,
	}
}

// CreateUser inserts an active user with DefaultPassword. When role is set the
// user receives that role limited to scope; capCodes become the delegation cap.
func (e *Env) CreateUser(email, role string, scope rbac.Scope, capCodes ...string) *models.User {
	e.T.Helper()

	hashed, err := crypto.HashPassword(DefaultPassword)
	require.NoError(e.T, err)

	user := &models.User{Email: email, PasswordHash: hashed, IsActive: true}
	require.NoError(e.T, e.DB.Create(user).Error)

	if role != "" {
		require.NoError(e.T, e.DB.Create(&models.UserRole{UserID: user.ID, RoleID: role, Scope: scope.MustJSON()}).Error)
	}

	capDoc := delegation.CodesCap(capCodes...)
	if role == models.RoleSuperadmin {
		capDoc = delegation.UnrestrictedCap()
	}
	encoded, err := capDoc.MarshalJSON()
	require.NoError(e.T, err)
	require.NoError(e.T, e.DB.Create(&models.UserDelegationCap{UserID: user.ID, Permissions: encoded}).Error)

	e.Engine.Invalidate(user.ID)
	return user
}

// LoginResult carries the access token and the refresh cookie issued on login.
type LoginResult struct {
	AccessToken   string
	RefreshCookie *http.Cookie
}

// Login authenticates with email and password and returns the issued credentials.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var body struct {
		Access string `json:"access"`
	}
	DecodeInto(e.T, resp.Data, &body)
	require.NotEmpty(e.T, body.Access)

	cookie := FindCookie(w, e.Config.Auth.CookieName())
	require.NotNil(e.T, cookie, "refresh cookie missing")
	return LoginResult{AccessToken: body.Access, RefreshCookie: cookie}
}

// LoginAs creates nothing; it signs in an existing user with DefaultPassword and returns the access token.
func (e *Env) LoginAs(user *models.User) string {
	e.T.Helper()
	return e.Login(user.Email, DefaultPassword).AccessToken
}

// FindCookie returns the named cookie set by the response, if any.
func FindCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// RequireError asserts the response status and error code.
func RequireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	resp := DecodeResponse(t, w)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error, w.Body.String())
	require.Equal(t, code, resp.Error.Code)
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.T.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		payload, err := json.Marshal(v)
		require.NoError(e.T, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, cookie := range cookies {
		if cookie != nil {
			req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
		}
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
