package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/domushq/domus/internal/auditctx"
	iauth "github.com/domushq/domus/internal/auth"
	"github.com/domushq/domus/pkg/errors"
	"github.com/domushq/domus/pkg/response"
)

const (
	CtxPrincipalKey = "authPrincipal"
	CtxUserIDKey    = "userID"
	CtxRequestIDKey = "requestID"
)

// Auth validates the bearer access token and stores the Principal in the context.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(authz) < 7 || !strings.EqualFold(authz[:7], "Bearer ") {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrNoToken)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		if token == "" {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrNoToken)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			response.Error(c, errors.ErrInvalidToken)
			c.Abort()
			return
		}

		principal := iauth.PrincipalFromClaims(claims)
		c.Set(CtxPrincipalKey, principal)
		c.Set(CtxUserIDKey, principal.UserID)
		c.Request = c.Request.WithContext(auditctx.WithUser(c.Request.Context(), principal.UserID))

		c.Next()
	}
}

// PrincipalFrom returns the authenticated principal stored by Auth.
func PrincipalFrom(c *gin.Context) (*iauth.Principal, bool) {
	v, ok := c.Get(CtxPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := v.(*iauth.Principal)
	return principal, ok && principal != nil
}
