package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/domushq/domus/internal/delegation"
	"github.com/domushq/domus/internal/handlers/testutil"
	"github.com/domushq/domus/internal/models"
	"github.com/domushq/domus/internal/permissions"
	"github.com/domushq/domus/internal/rbac"
)

type userPayload struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
	Roles    []struct {
		Role  string `json:"role"`
		Scope struct {
			All    bool   `json:"all"`
			Houses []uint `json:"houses"`
		} `json:"scope"`
	} `json:"roles"`
}

func TestCreateManagerOutsideGrantorScope(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser("admin@example.com", models.RoleAdmin, rbac.Houses(1, 2), permissions.UserManagerCreate)
	token := env.LoginAs(admin)

	w := env.Request(http.MethodPost, "/api/users/managers", map[string]any{
		"email":    "manager@example.com",
		"password": "password123",
		"scope":    map[string]any{"houses": []uint{1, 3}},
	}, token)
	testutil.RequireError(t, w, http.StatusForbidden, "SCOPE_FORBIDDEN")

	var count int64
	require.NoError(t, env.DB.Model(&models.User{}).Where("email = ?", "manager@example.com").Count(&count).Error)
	require.Zero(t, count)
}

func TestCreateManagerWithinGrantorScope(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser("admin@example.com", models.RoleAdmin, rbac.Houses(1, 2), permissions.UserManagerCreate)
	token := env.LoginAs(admin)

	w := env.Request(http.MethodPost, "/api/users/managers", map[string]any{
		"email":    "Manager@Example.com",
		"password": "password123",
		"scope":    map[string]any{"houses": []uint{1}},
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created userPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &created)
	require.Equal(t, "manager@example.com", created.Email)
	require.True(t, created.IsActive)
	require.Len(t, created.Roles, 1)
	require.Equal(t, models.RoleManager, created.Roles[0].Role)
	require.Equal(t, []uint{1}, created.Roles[0].Scope.Houses)

	var stored models.UserDelegationCap
	require.NoError(t, env.DB.Take(&stored, "user_id = ?", created.ID).Error)
	capValue, err := delegation.ParseCap(stored.Permissions)
	require.NoError(t, err)
	require.False(t, capValue.IsUnrestricted())
	require.Empty(t, capValue.Codes())

	// The new manager can sign in straight away.
	login := env.Login("manager@example.com", "password123")
	require.NotEmpty(t, login.AccessToken)
}

func TestCreateUserValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser("admin@example.com", models.RoleAdmin, rbac.Houses(1))
	token := env.LoginAs(admin)

	w := env.Request(http.MethodPost, "/api/users/managers", map[string]any{
		"email":    "not-an-email",
		"password": "short",
		"scope":    map[string]any{"houses": []uint{1}},
	}, token)
	testutil.RequireError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = env.Request(http.MethodPost, "/api/users/managers", map[string]any{
		"email":    "manager@example.com",
		"password": "password123",
		"scope":    map[string]any{"houses": []int{1, -2}},
	}, token)
	testutil.RequireError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = env.Request(http.MethodPost, "/api/users/managers", map[string]any{
		"email":    "admin@example.com",
		"password": "password123",
		"scope":    map[string]any{"houses": []uint{1}},
	}, token)
	testutil.RequireError(t, w, http.StatusConflict, "EMAIL_EXISTS")
}

func TestCreateAdminRequiresPermission(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser("admin@example.com", models.RoleAdmin, rbac.Unrestricted())
	owner := env.CreateUser("owner@example.com", models.RoleSuperadmin, rbac.Unrestricted())
	payload := map[string]any{
		"email":    "second-admin@example.com",
		"password": "password123",
		"scope":    map[string]any{"houses": []uint{4}},
	}

	w := env.Request(http.MethodPost, "/api/users/admins", payload, env.LoginAs(admin))
	testutil.RequireError(t, w, http.StatusForbidden, "NO_PERMISSION")

	w = env.Request(http.MethodPost, "/api/users/admins", payload, env.LoginAs(owner))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestManagerCannotReachUserRoutes(t *testing.T) {
	env := testutil.NewEnv(t)
	manager := env.CreateUser("manager@example.com", models.RoleManager, rbac.Houses(1))
	token := env.LoginAs(manager)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/users"},
		{http.MethodPost, "/api/users/managers"},
		{http.MethodPost, "/api/users/" + manager.ID + "/disable"},
		{http.MethodDelete, "/api/users/" + manager.ID},
		{http.MethodPost, "/api/users/" + manager.ID + "/delegation-cap"},
		{http.MethodGet, "/api/permissions"},
	} {
		w := env.Request(route.method, route.path, map[string]any{}, token)
		testutil.RequireError(t, w, http.StatusForbidden, "NO_PERMISSION")
	}
}

func TestSetDelegationCapAllRequiresSuperadmin(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser("admin@example.com", models.RoleAdmin, rbac.Unrestricted(), permissions.UserManagerCreate)
	owner := env.CreateUser("owner@example.com", models.RoleSuperadmin, rbac.Unrestricted())
	target := env.CreateUser("manager@example.com", models.RoleManager, rbac.Houses(1))
	path := "/api/users/" + target.ID + "/delegation-cap"

	w := env.Request(http.MethodPost, path, map[string]any{"permissions": "all"}, env.LoginAs(admin))
	testutil.RequireError(t, w, http.StatusForbidden, "FORBIDDEN_ALL_CAP")

	w = env.Request(http.MethodPost, path, map[string]any{"permissions": "all"}, env.LoginAs(owner))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		DelegationCap struct {
			All bool `json:"all"`
		} `json:"delegation_cap"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &body)
	require.True(t, body.DelegationCap.All)
}

func TestSetDelegationCapCodes(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser("admin@example.com", models.RoleAdmin, rbac.Houses(1, 2), permissions.UserManagerCreate)
	target := env.CreateUser("manager@example.com", models.RoleManager, rbac.Houses(1))
	token := env.LoginAs(admin)
	path := "/api/users/" + target.ID + "/delegation-cap"

	w := env.Request(http.MethodPost, path, map[string]any{"permissions": []string{permissions.UserManagerCreate}}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, path, map[string]any{"permissions": []string{permissions.UserDelete}}, token)
	testutil.RequireError(t, w, http.StatusForbidden, "PERMISSION_FORBIDDEN")

	// A malformed request is never a subset of anything.
	w = env.Request(http.MethodPost, path, map[string]any{"permissions": 42}, token)
	testutil.RequireError(t, w, http.StatusForbidden, "PERMISSION_FORBIDDEN")
}

func TestSetBoostsReplacesSet(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser("admin@example.com", models.RoleAdmin, rbac.Houses(1), permissions.UserRead, permissions.HouseUpdate)
	target := env.CreateUser("manager@example.com", models.RoleManager, rbac.Houses(1))
	token := env.LoginAs(admin)
	path := "/api/users/" + target.ID + "/boosts"

	w := env.Request(http.MethodPost, path, map[string]any{"permissions": []string{permissions.UserRead}}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Permissions []string `json:"permissions"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &body)
	require.Equal(t, []string{permissions.UserRead}, body.Permissions)

	// A fresh login carries the boost.
	claims, err := env.JWT.ValidateAccessToken(env.LoginAs(target))
	require.NoError(t, err)
	require.Contains(t, claims.Perms, permissions.UserRead)

	w = env.Request(http.MethodPost, path, map[string]any{"permissions": "all"}, token)
	testutil.RequireError(t, w, http.StatusForbidden, "PERMISSION_FORBIDDEN")
}

func TestSuperadminIsProtected(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser("admin@example.com", models.RoleAdmin, rbac.Unrestricted())
	owner := env.CreateUser("owner@example.com", models.RoleSuperadmin, rbac.Unrestricted())
	token := env.LoginAs(admin)

	w := env.Request(http.MethodPost, "/api/users/"+owner.ID+"/disable", nil, token)
	testutil.RequireError(t, w, http.StatusForbidden, "FORBIDDEN_SUPERADMIN")

	w = env.Request(http.MethodDelete, "/api/users/"+owner.ID, nil, token)
	testutil.RequireError(t, w, http.StatusForbidden, "FORBIDDEN_SUPERADMIN")

	w = env.Request(http.MethodPost, "/api/users/"+admin.ID+"/roles", map[string]any{
		"role":  models.RoleSuperadmin,
		"scope": map[string]any{"all": true},
	}, token)
	testutil.RequireError(t, w, http.StatusForbidden, "FORBIDDEN_SUPERADMIN_ROLE")
}

func TestDisableAndEnableUser(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser("admin@example.com", models.RoleAdmin, rbac.Houses(1, 2))
	target := env.CreateUser("manager@example.com", models.RoleManager, rbac.Houses(1))
	outside := env.CreateUser("other@example.com", models.RoleManager, rbac.Houses(5))
	token := env.LoginAs(admin)
	targetLogin := env.Login(target.Email, testutil.DefaultPassword)

	w := env.Request(http.MethodPost, "/api/users/"+target.ID+"/disable", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Disabling revokes existing refresh sessions and blocks new logins.
	w = env.Request(http.MethodPost, "/api/auth/refresh", nil, "", targetLogin.RefreshCookie)
	testutil.RequireError(t, w, http.StatusUnauthorized, "INVALID_REFRESH")
	w = env.Request(http.MethodPost, "/api/auth/login", map[string]string{"email": target.Email, "password": testutil.DefaultPassword}, "")
	testutil.RequireError(t, w, http.StatusUnauthorized, "INVALID_CREDENTIALS")

	w = env.Request(http.MethodPost, "/api/users/"+target.ID+"/enable", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotEmpty(t, env.LoginAs(target))

	w = env.Request(http.MethodPost, "/api/users/"+outside.ID+"/disable", nil, token)
	testutil.RequireError(t, w, http.StatusForbidden, "SCOPE_FORBIDDEN")

	w = env.Request(http.MethodPost, "/api/users/missing-user/disable", nil, token)
	testutil.RequireError(t, w, http.StatusNotFound, "USER_NOT_FOUND")
}

func TestDeleteUser(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser("admin@example.com", models.RoleAdmin, rbac.Houses(1))
	target := env.CreateUser("manager@example.com", models.RoleManager, rbac.Houses(1))
	token := env.LoginAs(admin)

	w := env.Request(http.MethodDelete, "/api/users/"+target.ID, nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var count int64
	require.NoError(t, env.DB.Model(&models.UserRole{}).Where("user_id = ?", target.ID).Count(&count).Error)
	require.Zero(t, count)

	w = env.Request(http.MethodDelete, "/api/users/"+target.ID, nil, token)
	testutil.RequireError(t, w, http.StatusNotFound, "USER_NOT_FOUND")
}

func TestUpdateManager(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser("admin@example.com", models.RoleAdmin, rbac.Houses(1, 2))
	target := env.CreateUser("manager@example.com", models.RoleManager, rbac.Houses(1))
	token := env.LoginAs(admin)
	path := "/api/users/managers/" + target.ID

	w := env.Request(http.MethodPatch, path, map[string]any{
		"email": "renamed@example.com",
		"scope": map[string]any{"houses": []uint{1, 2}},
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated userPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &updated)
	require.Equal(t, "renamed@example.com", updated.Email)
	require.Equal(t, []uint{1, 2}, updated.Roles[0].Scope.Houses)

	w = env.Request(http.MethodPatch, path, map[string]any{
		"scope": map[string]any{"houses": []uint{3}},
	}, token)
	testutil.RequireError(t, w, http.StatusForbidden, "SCOPE_FORBIDDEN")

	owner := env.CreateUser("owner-admin@example.com", models.RoleAdmin, rbac.Unrestricted())
	w = env.Request(http.MethodPatch, "/api/users/managers/"+owner.ID, map[string]any{"password": "takeover123"}, token)
	testutil.RequireError(t, w, http.StatusBadRequest, "ROLE_NOT_FOUND")
	require.NotEmpty(t, env.Login("owner-admin@example.com", testutil.DefaultPassword).AccessToken)
}

func TestListUsersVisibleForViewer(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser("admin@example.com", models.RoleAdmin, rbac.Houses(1, 2))
	env.CreateUser("inside@example.com", models.RoleManager, rbac.Houses(2))
	env.CreateUser("outside@example.com", models.RoleManager, rbac.Houses(7))
	token := env.LoginAs(admin)

	w := env.Request(http.MethodGet, "/api/users", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	var users []userPayload
	testutil.DecodeInto(t, resp.Data, &users)

	emails := make([]string, 0, len(users))
	for _, user := range users {
		emails = append(emails, user.Email)
	}
	require.Contains(t, emails, "inside@example.com")
	require.NotContains(t, emails, "outside@example.com")
	require.NotNil(t, resp.Meta)
	require.Equal(t, len(users), resp.Meta.Total)
}

func TestListRolesAndPermissions(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser("admin@example.com", models.RoleAdmin, rbac.Houses(1))
	token := env.LoginAs(admin)

	w := env.Request(http.MethodGet, "/api/roles", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var roles []struct {
		Name        string   `json:"name"`
		Permissions []string `json:"permissions"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &roles)
	require.Len(t, roles, len(permissions.BuiltinRoles))

	w = env.Request(http.MethodGet, "/api/permissions", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var perms []map[string]any
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &perms)
	require.Len(t, perms, len(permissions.Codes()))
}
