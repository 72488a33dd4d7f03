package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/domushq/domus/internal/delegation"
	"github.com/domushq/domus/internal/models"
	"github.com/domushq/domus/internal/rbac"
	"github.com/domushq/domus/internal/services"
	"github.com/domushq/domus/pkg/response"
)

// UserHandler exposes user administration. Every mutation passes the caller
// as grantor so the service can apply the delegation rules.
type UserHandler struct {
	service *services.UserService
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(service *services.UserService) *UserHandler {
	return &UserHandler{service: service}
}

type createUserRequest struct {
	Email    string     `json:"email" validate:"required,email,max=255"`
	Password string     `json:"password" validate:"required,min=8,max=128"`
	Scope    rbac.Scope `json:"scope"`
}

type updateManagerRequest struct {
	Email    *string     `json:"email" validate:"omitempty,email,max=255"`
	Password *string     `json:"password" validate:"omitempty,min=8,max=128"`
	Scope    *rbac.Scope `json:"scope"`
}

type setRoleRequest struct {
	Role  string     `json:"role" validate:"required"`
	Scope rbac.Scope `json:"scope"`
}

type permissionsRequest struct {
	Permissions delegation.CodeRequest `json:"permissions"`
}

// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	users, err := h.service.ListUsersVisibleFor(requestContext(c), p.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, users, &response.Meta{Total: len(users)})
}

// POST /api/users/admins
func (h *UserHandler) CreateAdmin(c *gin.Context) {
	h.create(c, models.RoleAdmin)
}

// POST /api/users/managers
func (h *UserHandler) CreateManager(c *gin.Context) {
	h.create(c, models.RoleManager)
}

func (h *UserHandler) create(c *gin.Context, role string) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var body createUserRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.service.CreateUserWithRole(requestContext(c), p.UserID, services.CreateUserInput{
		Email:    body.Email,
		Password: body.Password,
		Role:     role,
		Scope:    body.Scope,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, user)
}

// PATCH /api/users/managers/:id
func (h *UserHandler) UpdateManager(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var body updateManagerRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.service.UpdateManager(requestContext(c), p.UserID, c.Param("id"), services.UpdateManagerInput{
		Email:    body.Email,
		Password: body.Password,
		Scope:    body.Scope,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/users/:id/disable
func (h *UserHandler) Disable(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	if err := h.service.DisableUser(requestContext(c), p.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": c.Param("id"), "is_active": false})
}

// POST /api/users/:id/enable
func (h *UserHandler) Enable(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	if err := h.service.EnableUser(requestContext(c), p.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": c.Param("id"), "is_active": true})
}

// DELETE /api/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	if err := h.service.DeleteUser(requestContext(c), p.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/users/:id/roles
func (h *UserHandler) SetRole(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var body setRoleRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.service.SetUserRole(requestContext(c), p.UserID, c.Param("id"), services.SetRoleInput{
		Role:  body.Role,
		Scope: body.Scope,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/users/:id/boosts
func (h *UserHandler) SetBoosts(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var body permissionsRequest
	if !bindAndValidate(c, &body) {
		return
	}

	codes, err := h.service.SetUserBoosts(requestContext(c), p.UserID, c.Param("id"), services.PermissionsInput{
		Permissions: body.Permissions,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"permissions": codes})
}

// POST /api/users/:id/delegation-cap
func (h *UserHandler) SetDelegationCap(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var body permissionsRequest
	if !bindAndValidate(c, &body) {
		return
	}

	granted, err := h.service.SetUserDelegationCap(requestContext(c), p.UserID, c.Param("id"), services.PermissionsInput{
		Permissions: body.Permissions,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"delegation_cap": granted})
}

// GET /api/roles
func (h *UserHandler) ListRoles(c *gin.Context) {
	roles, err := h.service.ListRoles(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, roles)
}

// GET /api/permissions
func (h *UserHandler) ListPermissions(c *gin.Context) {
	perms, err := h.service.ListPermissions(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, perms)
}
