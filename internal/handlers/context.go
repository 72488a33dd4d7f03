package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	iauth "github.com/domushq/domus/internal/auth"
	"github.com/domushq/domus/internal/middleware"
	"github.com/domushq/domus/internal/rbac"
	"github.com/domushq/domus/pkg/errors"
	"github.com/domushq/domus/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// principal returns the authenticated caller or writes NO_TOKEN.
func principal(c *gin.Context) (*iauth.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, errors.ErrNoToken)
		return nil, false
	}
	return p, true
}

// houseIDParam parses a positive house or resident id from the path.
func houseIDParam(c *gin.Context, name string) (uint, bool) {
	id, ok := rbac.ParseHouseID(c.Param(name))
	if !ok {
		response.Error(c, errors.ErrNotFound)
		return 0, false
	}
	return id, true
}
