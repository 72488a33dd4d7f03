package handlers

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/domushq/domus/internal/auth"
	"github.com/domushq/domus/internal/services"
	"github.com/domushq/domus/pkg/errors"
	"github.com/domushq/domus/pkg/logger"
	"github.com/domushq/domus/pkg/response"
)

// CookieConfig describes the refresh token cookie.
type CookieConfig struct {
	Name   string
	Path   string
	Domain string
	Secure bool
}

// AuthHandler manages authentication flows (login/refresh/logout/me).
type AuthHandler struct {
	sessions *iauth.SessionService
	users    *services.UserService
	audit    *services.AuditService
	cookie   CookieConfig
	now      func() time.Time
	log      *zap.Logger
}

// NewAuthHandler wires the auth endpoints.
func NewAuthHandler(sessions *iauth.SessionService, users *services.UserService, audit *services.AuditService, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		users:    users,
		audit:    audit,
		cookie:   cookie,
		now:      time.Now,
		log:      logger.WithModule("auth"),
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type accessResponse struct {
	Access string `json:"access"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	pair, err := h.sessions.Login(ctx, req.Email, req.Password, h.metadata(c))
	if err != nil {
		h.recordLogin(c, services.AuditEntry{
			ActorEmail: iauth.NormalizeEmail(req.Email),
			Result:     services.AuditResultFailure,
			Metadata:   map[string]any{"code": errors.FromError(err).Code},
		})
		response.Error(c, err)
		return
	}

	h.recordLogin(c, services.AuditEntry{
		ActorID:    pair.UserID,
		ActorEmail: iauth.NormalizeEmail(req.Email),
		Result:     services.AuditResultSuccess,
		Metadata:   map[string]any{"session_id": pair.SessionID},
	})
	h.setRefreshCookie(c, pair)
	response.Success(c, http.StatusOK, accessResponse{Access: pair.AccessToken})
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, err := c.Cookie(h.cookie.Name)
	if err != nil || token == "" {
		h.clearRefreshCookie(c)
		response.Error(c, errors.ErrInvalidRefresh)
		return
	}

	pair, err := h.sessions.Refresh(requestContext(c), token, h.metadata(c))
	if err != nil {
		if stderrors.Is(err, errors.ErrInvalidRefresh) {
			h.clearRefreshCookie(c)
		}
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, pair)
	response.Success(c, http.StatusOK, accessResponse{Access: pair.AccessToken})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if token, err := c.Cookie(h.cookie.Name); err == nil {
		h.sessions.Logout(requestContext(c), token)
	}

	h.clearRefreshCookie(c)
	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

type meResponse struct {
	*services.UserView
	Permissions []string `json:"permissions"`
	Scope       any      `json:"scope"`
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	user, err := h.users.GetUser(requestContext(c), p.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, meResponse{
		UserView:    user,
		Permissions: p.Permissions.Codes(),
		Scope:       p.Scope,
	})
}

func (h *AuthHandler) metadata(c *gin.Context) iauth.SessionMetadata {
	return iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func (h *AuthHandler) recordLogin(c *gin.Context, entry services.AuditEntry) {
	if h.audit == nil {
		return
	}
	entry.Action = "auth.login"
	entry.Resource = "session"
	if err := h.audit.Log(requestContext(c), entry); err != nil {
		h.log.Warn("failed to record login audit", zap.Error(err))
	}
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, pair iauth.TokenPair) {
	maxAge := int(pair.RefreshExpiresAt.Sub(h.now()).Seconds())
	if maxAge <= 0 {
		maxAge = 1
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    pair.RefreshToken,
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		MaxAge:   maxAge,
		Expires:  pair.RefreshExpiresAt,
		Secure:   h.cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   h.cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
