package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/domushq/domus/internal/rbac"
	"github.com/domushq/domus/pkg/errors"
	"github.com/domushq/domus/pkg/metrics"
	"github.com/domushq/domus/pkg/response"
)

// maxScopeBodyBytes bounds how much of a request body the scope gate buffers.
const maxScopeBodyBytes = 1 << 20

// RequirePermission aborts with NO_PERMISSION unless the access token carries code.
func RequirePermission(code string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			response.Error(c, errors.ErrNoToken)
			c.Abort()
			return
		}
		if !principal.Can(code) {
			metrics.PermissionChecks.WithLabelValues(code, "denied").Inc()
			response.Error(c, errors.ErrNoPermission)
			c.Abort()
			return
		}
		metrics.PermissionChecks.WithLabelValues(code, "allowed").Inc()
		c.Next()
	}
}

// RequireScope resolves a house id named param from the path, then the JSON
// body, then the query string, and aborts unless the token scope contains it.
// The first source that carries the parameter decides; a value that is not a
// positive integer is NO_HOUSE_ID.
func RequireScope(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			response.Error(c, errors.ErrNoToken)
			c.Abort()
			return
		}

		houseID, appErr := resolveHouseID(c, param)
		if appErr != nil {
			metrics.PermissionChecks.WithLabelValues("scope", "invalid").Inc()
			response.Error(c, appErr)
			c.Abort()
			return
		}

		if !principal.InScope(houseID) {
			metrics.PermissionChecks.WithLabelValues("scope", "denied").Inc()
			response.Error(c, errors.ErrScopeForbidden)
			c.Abort()
			return
		}

		metrics.PermissionChecks.WithLabelValues("scope", "allowed").Inc()
		c.Next()
	}
}

func resolveHouseID(c *gin.Context, param string) (uint, *errors.AppError) {
	if raw, present := pathParam(c, param); present {
		return parseHouseID(raw)
	}
	raw, present, err := bodyField(c, param)
	if err != nil {
		return 0, err
	}
	if present {
		return parseHouseID(raw)
	}
	if raw, present := c.GetQuery(param); present {
		return parseHouseID(raw)
	}
	return 0, errors.ErrNoHouseID
}

func parseHouseID(raw string) (uint, *errors.AppError) {
	id, ok := rbac.ParseHouseID(raw)
	if !ok {
		return 0, errors.ErrNoHouseID
	}
	return id, nil
}

func pathParam(c *gin.Context, param string) (string, bool) {
	for _, p := range c.Params {
		if p.Key == param {
			return p.Value, true
		}
	}
	return "", false
}

// bodyField reads a top-level JSON field and restores the full body for the
// handler. A body larger than maxScopeBodyBytes is PAYLOAD_TOO_LARGE.
func bodyField(c *gin.Context, param string) (string, bool, *errors.AppError) {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return "", false, nil
	}
	if !strings.Contains(strings.ToLower(c.ContentType()), "json") && c.ContentType() != "" {
		return "", false, nil
	}

	original := c.Request.Body
	data, err := io.ReadAll(io.LimitReader(original, maxScopeBodyBytes+1))
	c.Request.Body = replayBody{
		Reader: io.MultiReader(bytes.NewReader(data), original),
		Closer: original,
	}
	if len(data) > maxScopeBodyBytes {
		return "", false, errors.ErrPayloadTooLarge
	}
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return "", false, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", false, nil
	}
	raw, ok := fields[param]
	if !ok {
		return "", false, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, true, nil
	}
	return string(raw), true, nil
}

// replayBody serves the buffered prefix before the unread remainder and closes
// the original body.
type replayBody struct {
	io.Reader
	io.Closer
}
