package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/domushq/domus/internal/database/testutil"
	"github.com/domushq/domus/internal/delegation"
	"github.com/domushq/domus/internal/models"
	"github.com/domushq/domus/internal/permissions"
	"github.com/domushq/domus/internal/rbac"
	"github.com/domushq/domus/pkg/crypto"
	apperrors "github.com/domushq/domus/pkg/errors"
)

type userFixture struct {
	db     *gorm.DB
	svc    *UserService
	engine *rbac.Engine
}

func setupUserService(t *testing.T) *userFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	ctx := context.Background()

	table, err := rbac.LoadRoleTable(ctx, db)
	require.NoError(t, err)
	engine, err := rbac.NewEngine(db, table)
	require.NoError(t, err)
	validator, err := delegation.NewValidator(db)
	require.NoError(t, err)
	audit, err := NewAuditService(db)
	require.NoError(t, err)

	svc, err := NewUserService(db, engine, validator, audit)
	require.NoError(t, err)

	return &userFixture{db: db, svc: svc, engine: engine}
}

func (f *userFixture) user(t *testing.T, email, role string, scope rbac.Scope, capCodes ...string) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("password123")
	require.NoError(t, err)
	user := &models.User{Email: email, PasswordHash: hashed, IsActive: true}
	require.NoError(t, f.db.Create(user).Error)

	if role != "" {
		require.NoError(t, f.db.Create(&models.UserRole{UserID: user.ID, RoleID: role, Scope: scope.MustJSON()}).Error)
	}
	encoded, err := delegation.CodesCap(capCodes...).MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&models.UserDelegationCap{UserID: user.ID, Permissions: encoded}).Error)
	return user
}

func (f *userFixture) auditResults(t *testing.T, action string) []string {
	t.Helper()

	var results []string
	require.NoError(t, f.db.Model(&models.AuditLog{}).Where("action = ?", action).Order("created_at").Pluck("result", &results).Error)
	return results
}

func TestCreateManagerOutsideScopeIsForbidden(t *testing.T) {
	f := setupUserService(t)
	admin := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1, 2), permissions.UserManagerCreate)

	_, err := f.svc.CreateUserWithRole(context.Background(), admin.ID, CreateUserInput{
		Email:    "manager@example.com",
		Password: "password123",
		Role:     models.RoleManager,
		Scope:    rbac.Houses(1, 3),
	})
	require.ErrorIs(t, err, apperrors.ErrScopeForbidden)

	var count int64
	require.NoError(t, f.db.Model(&models.User{}).Where("email = ?", "manager@example.com").Count(&count).Error)
	require.Zero(t, count)
	require.Equal(t, []string{AuditResultDenied}, f.auditResults(t, "user.create"))
}

func TestCreateManagerWithinScopeGetsEmptyCap(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1, 2), permissions.UserManagerCreate)

	view, err := f.svc.CreateUserWithRole(ctx, admin.ID, CreateUserInput{
		Email:    " Manager@Example.com ",
		Password: "password123",
		Role:     models.RoleManager,
		Scope:    rbac.Houses(1),
	})
	require.NoError(t, err)
	require.Equal(t, "manager@example.com", view.Email)
	require.True(t, view.IsActive)
	require.Len(t, view.Roles, 1)
	require.Equal(t, models.RoleManager, view.Roles[0].Role)
	require.Equal(t, []uint{1}, view.Roles[0].Scope.HouseIDs())

	validator, err := delegation.NewValidator(f.db)
	require.NoError(t, err)
	capValue, err := validator.DelegationCap(ctx, view.ID)
	require.NoError(t, err)
	require.False(t, capValue.IsUnrestricted())
	require.Empty(t, capValue.Codes())

	require.Equal(t, []string{AuditResultSuccess}, f.auditResults(t, "user.create"))
}

func TestCreateUserChecksOrder(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1))

	_, err := f.svc.CreateUserWithRole(ctx, admin.ID, CreateUserInput{Email: "x@example.com", Password: "password123", Role: models.RoleSuperadmin, Scope: rbac.Houses(1)})
	require.ErrorIs(t, err, apperrors.ErrForbiddenSuperadminRole)

	_, err = f.svc.CreateUserWithRole(ctx, admin.ID, CreateUserInput{Email: "x@example.com", Password: "password123", Role: "janitor", Scope: rbac.Houses(1)})
	require.ErrorIs(t, err, apperrors.ErrRoleNotFound)

	_, err = f.svc.CreateUserWithRole(ctx, admin.ID, CreateUserInput{Email: "admin@example.com", Password: "password123", Role: models.RoleManager, Scope: rbac.Houses(1)})
	require.ErrorIs(t, err, apperrors.ErrEmailExists)

	_, err = f.svc.CreateUserWithRole(ctx, admin.ID, CreateUserInput{Email: "", Password: "password123", Role: models.RoleManager})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreateUserUnrestrictedScopeNeedsUnrestrictedGrantor(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()
	limited := f.user(t, "limited@example.com", models.RoleAdmin, rbac.Houses(1, 2, 3))
	owner := f.user(t, "owner@example.com", models.RoleSuperadmin, rbac.Unrestricted())

	input := CreateUserInput{Email: "admin2@example.com", Password: "password123", Role: models.RoleAdmin, Scope: rbac.Unrestricted()}

	_, err := f.svc.CreateUserWithRole(ctx, limited.ID, input)
	require.ErrorIs(t, err, apperrors.ErrScopeForbidden)

	view, err := f.svc.CreateUserWithRole(ctx, owner.ID, input)
	require.NoError(t, err)
	require.True(t, view.Roles[0].Scope.IsAll())
}

func TestSetDelegationCapAllRequiresSuperadmin(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Unrestricted(), permissions.UserManagerCreate)
	owner := f.user(t, "owner@example.com", models.RoleSuperadmin, rbac.Unrestricted())
	target := f.user(t, "manager@example.com", models.RoleManager, rbac.Houses(1))

	_, err := f.svc.SetUserDelegationCap(ctx, admin.ID, target.ID, PermissionsInput{Permissions: delegation.RequestAll()})
	require.ErrorIs(t, err, apperrors.ErrForbiddenAllCap)

	capValue, err := f.svc.SetUserDelegationCap(ctx, owner.ID, target.ID, PermissionsInput{Permissions: delegation.RequestAll()})
	require.NoError(t, err)
	require.True(t, capValue.IsUnrestricted())

	require.Equal(t, []string{AuditResultDenied, AuditResultSuccess}, f.auditResults(t, "user.cap.set"))
}

func TestSetDelegationCapRequiresHeldCodes(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1, 2), permissions.UserManagerCreate)
	target := f.user(t, "manager@example.com", models.RoleManager, rbac.Houses(1))

	capValue, err := f.svc.SetUserDelegationCap(ctx, admin.ID, target.ID, PermissionsInput{
		Permissions: delegation.RequestCodes(permissions.UserManagerCreate),
	})
	require.NoError(t, err)
	require.Equal(t, []string{permissions.UserManagerCreate}, capValue.Codes())

	// Held through the admin role but missing from the grantor's cap.
	_, err = f.svc.SetUserDelegationCap(ctx, admin.ID, target.ID, PermissionsInput{
		Permissions: delegation.RequestCodes(permissions.UserDelete),
	})
	require.ErrorIs(t, err, apperrors.ErrPermissionForbidden)

	// Not held at all.
	_, err = f.svc.SetUserDelegationCap(ctx, admin.ID, target.ID, PermissionsInput{
		Permissions: delegation.RequestCodes(permissions.HouseCreate),
	})
	require.ErrorIs(t, err, apperrors.ErrPermissionForbidden)
}

func TestSetDelegationCapRequiresReach(t *testing.T) {
	f := setupUserService(t)
	admin := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1), permissions.UserManagerCreate)
	target := f.user(t, "manager@example.com", models.RoleManager, rbac.Houses(1, 2))

	_, err := f.svc.SetUserDelegationCap(context.Background(), admin.ID, target.ID, PermissionsInput{
		Permissions: delegation.RequestCodes(permissions.UserManagerCreate),
	})
	require.ErrorIs(t, err, apperrors.ErrScopeForbidden)
}

func TestSuperadminTargetsAreProtected(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", models.RoleSuperadmin, rbac.Unrestricted())
	other := f.user(t, "other@example.com", models.RoleSuperadmin, rbac.Unrestricted())

	require.ErrorIs(t, f.svc.DisableUser(ctx, owner.ID, other.ID), apperrors.ErrForbiddenSuperadmin)
	require.ErrorIs(t, f.svc.EnableUser(ctx, owner.ID, other.ID), apperrors.ErrForbiddenSuperadmin)
	require.ErrorIs(t, f.svc.DeleteUser(ctx, owner.ID, other.ID), apperrors.ErrForbiddenSuperadmin)

	_, err := f.svc.SetUserRole(ctx, owner.ID, other.ID, SetRoleInput{Role: models.RoleAdmin, Scope: rbac.Houses(1)})
	require.ErrorIs(t, err, apperrors.ErrForbiddenSuperadmin)
	_, err = f.svc.SetUserBoosts(ctx, owner.ID, other.ID, PermissionsInput{Permissions: delegation.RequestCodes()})
	require.ErrorIs(t, err, apperrors.ErrForbiddenSuperadmin)
	_, err = f.svc.SetUserDelegationCap(ctx, owner.ID, other.ID, PermissionsInput{Permissions: delegation.RequestCodes()})
	require.ErrorIs(t, err, apperrors.ErrForbiddenSuperadmin)

	password := "new-password"
	_, err = f.svc.UpdateManager(ctx, owner.ID, other.ID, UpdateManagerInput{Password: &password})
	require.ErrorIs(t, err, apperrors.ErrForbiddenSuperadmin)

	var stored models.User
	require.NoError(t, f.db.Take(&stored, "id = ?", other.ID).Error)
	require.True(t, stored.IsActive)
}

func TestSetUserRoleRejectsSuperadminRole(t *testing.T) {
	f := setupUserService(t)
	owner := f.user(t, "owner@example.com", models.RoleSuperadmin, rbac.Unrestricted())
	target := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1))

	_, err := f.svc.SetUserRole(context.Background(), owner.ID, target.ID, SetRoleInput{Role: models.RoleSuperadmin, Scope: rbac.Unrestricted()})
	require.ErrorIs(t, err, apperrors.ErrForbiddenSuperadminRole)
}

func TestSetUserRoleUpsertsScope(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1, 2, 3))
	target := f.user(t, "manager@example.com", models.RoleManager, rbac.Houses(1))

	view, err := f.svc.SetUserRole(ctx, admin.ID, target.ID, SetRoleInput{Role: models.RoleManager, Scope: rbac.Houses(2, 3)})
	require.NoError(t, err)
	require.Len(t, view.Roles, 1)
	require.Equal(t, []uint{2, 3}, view.Roles[0].Scope.HouseIDs())

	scope, err := f.engine.UserScope(ctx, target.ID)
	require.NoError(t, err)
	require.Equal(t, []uint{2, 3}, scope.HouseIDs())
}

func TestSetUserBoostsReplacesSet(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1),
		permissions.UserRead, permissions.HouseUpdate)
	target := f.user(t, "manager@example.com", models.RoleManager, rbac.Houses(1))

	codes, err := f.svc.SetUserBoosts(ctx, admin.ID, target.ID, PermissionsInput{
		Permissions: delegation.RequestCodes(permissions.HouseUpdate, permissions.UserRead),
	})
	require.NoError(t, err)
	require.Equal(t, []string{permissions.HouseUpdate, permissions.UserRead}, codes)

	perms, err := f.engine.EffectivePermissions(ctx, target.ID)
	require.NoError(t, err)
	require.True(t, perms.Has(permissions.UserRead))

	codes, err = f.svc.SetUserBoosts(ctx, admin.ID, target.ID, PermissionsInput{
		Permissions: delegation.RequestCodes(permissions.HouseUpdate),
	})
	require.NoError(t, err)
	require.Equal(t, []string{permissions.HouseUpdate}, codes)

	perms, err = f.engine.EffectivePermissions(ctx, target.ID)
	require.NoError(t, err)
	require.False(t, perms.Has(permissions.UserRead))
}

func TestSetUserBoostsRejectionLeavesSetUntouched(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1), permissions.UserRead)
	target := f.user(t, "manager@example.com", models.RoleManager, rbac.Houses(1))
	require.NoError(t, f.db.Create(&models.UserPermissionBoost{UserID: target.ID, PermissionID: permissions.HouseUpdate}).Error)

	_, err := f.svc.SetUserBoosts(ctx, admin.ID, target.ID, PermissionsInput{
		Permissions: delegation.RequestCodes(permissions.UserRead, permissions.UserDelete),
	})
	require.ErrorIs(t, err, apperrors.ErrPermissionForbidden)

	var boosts []string
	require.NoError(t, f.db.Model(&models.UserPermissionBoost{}).Where("user_id = ?", target.ID).Pluck("permission_id", &boosts).Error)
	require.Equal(t, []string{permissions.HouseUpdate}, boosts)
}

func TestSetUserBoostsRejectsAllMarker(t *testing.T) {
	f := setupUserService(t)
	owner := f.user(t, "owner@example.com", models.RoleSuperadmin, rbac.Unrestricted())
	require.NoError(t, f.db.Model(&models.UserDelegationCap{}).Where("user_id = ?", owner.ID).
		Update("permissions", []byte(`{"all":true}`)).Error)
	target := f.user(t, "manager@example.com", models.RoleManager, rbac.Houses(1))

	_, err := f.svc.SetUserBoosts(context.Background(), owner.ID, target.ID, PermissionsInput{Permissions: delegation.RequestAll()})
	require.ErrorIs(t, err, apperrors.ErrPermissionForbidden)
}

func TestDisableUserRevokesSessions(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1, 2))
	target := f.user(t, "manager@example.com", models.RoleManager, rbac.Houses(2))

	session := &models.Session{UserID: target.ID, ExpiresAt: time.Now().UTC().Add(time.Hour)}
	require.NoError(t, f.db.Create(session).Error)

	require.NoError(t, f.svc.DisableUser(ctx, admin.ID, target.ID))

	var stored models.User
	require.NoError(t, f.db.Take(&stored, "id = ?", target.ID).Error)
	require.False(t, stored.IsActive)

	var reloaded models.Session
	require.NoError(t, f.db.Take(&reloaded, "id = ?", session.ID).Error)
	require.NotNil(t, reloaded.RevokedAt)

	require.NoError(t, f.svc.EnableUser(ctx, admin.ID, target.ID))
	require.NoError(t, f.db.Take(&stored, "id = ?", target.ID).Error)
	require.True(t, stored.IsActive)
}

func TestDisableUserRequiresReach(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1))
	target := f.user(t, "manager@example.com", models.RoleManager, rbac.Houses(1, 2))

	require.ErrorIs(t, f.svc.DisableUser(ctx, admin.ID, target.ID), apperrors.ErrScopeForbidden)
	require.ErrorIs(t, f.svc.DisableUser(ctx, admin.ID, "missing"), apperrors.ErrUserNotFound)
}

func TestMalformedGrantOnlyReachableWhenUnrestricted(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1, 2))
	other := f.user(t, "wide@example.com", models.RoleAdmin, rbac.Unrestricted())
	target := f.user(t, "manager@example.com", "", rbac.Scope{})
	require.NoError(t, f.db.Create(&models.UserRole{UserID: target.ID, RoleID: models.RoleManager, Scope: []byte(`{"houses":"oops"}`)}).Error)

	require.ErrorIs(t, f.svc.DisableUser(ctx, admin.ID, target.ID), apperrors.ErrScopeForbidden)
	require.NoError(t, f.svc.DisableUser(ctx, other.ID, target.ID))
}

func TestDeleteUserRemovesDependents(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1))
	target := f.user(t, "manager@example.com", models.RoleManager, rbac.Houses(1))
	require.NoError(t, f.db.Create(&models.UserPermissionBoost{UserID: target.ID, PermissionID: permissions.HouseUpdate}).Error)
	require.NoError(t, f.db.Create(&models.Session{UserID: target.ID, ExpiresAt: time.Now().UTC().Add(time.Hour)}).Error)

	require.NoError(t, f.svc.DeleteUser(ctx, admin.ID, target.ID))

	for _, model := range []any{&models.UserRole{}, &models.UserPermissionBoost{}, &models.UserDelegationCap{}, &models.Session{}} {
		var count int64
		require.NoError(t, f.db.Model(model).Where("user_id = ?", target.ID).Count(&count).Error)
		require.Zero(t, count)
	}

	_, err := f.svc.GetUser(ctx, target.ID)
	require.ErrorIs(t, err, apperrors.ErrUserNotFound)
	require.Equal(t, []string{AuditResultSuccess}, f.auditResults(t, "user.delete"))
}

func TestUpdateManagerChangesPasswordAndScope(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1, 2))
	target := f.user(t, "manager@example.com", models.RoleManager, rbac.Houses(1))
	session := &models.Session{UserID: target.ID, ExpiresAt: time.Now().UTC().Add(time.Hour)}
	require.NoError(t, f.db.Create(session).Error)

	email := "Renamed@Example.com"
	password := "fresh-password"
	scope := rbac.Houses(2)
	view, err := f.svc.UpdateManager(ctx, admin.ID, target.ID, UpdateManagerInput{Email: &email, Password: &password, Scope: &scope})
	require.NoError(t, err)
	require.Equal(t, "renamed@example.com", view.Email)
	require.Equal(t, []uint{2}, view.Roles[0].Scope.HouseIDs())

	var stored models.User
	require.NoError(t, f.db.Take(&stored, "id = ?", target.ID).Error)
	require.True(t, crypto.VerifyPassword(stored.PasswordHash, password))

	var reloaded models.Session
	require.NoError(t, f.db.Take(&reloaded, "id = ?", session.ID).Error)
	require.NotNil(t, reloaded.RevokedAt)
}

func TestUpdateManagerScopeOutsideGrantor(t *testing.T) {
	f := setupUserService(t)
	admin := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1))
	target := f.user(t, "manager@example.com", models.RoleManager, rbac.Houses(1))

	scope := rbac.Houses(1, 5)
	_, err := f.svc.UpdateManager(context.Background(), admin.ID, target.ID, UpdateManagerInput{Scope: &scope})
	require.ErrorIs(t, err, apperrors.ErrScopeForbidden)
}

func TestUpdateManagerRequiresManagerWithinReach(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()
	admin := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1))
	wideAdmin := f.user(t, "wide@example.com", models.RoleAdmin, rbac.Unrestricted())
	farManager := f.user(t, "far@example.com", models.RoleManager, rbac.Houses(1, 4))

	password := "takeover123"
	_, err := f.svc.UpdateManager(ctx, admin.ID, wideAdmin.ID, UpdateManagerInput{Password: &password})
	require.ErrorIs(t, err, apperrors.ErrRoleNotFound)

	_, err = f.svc.UpdateManager(ctx, admin.ID, farManager.ID, UpdateManagerInput{Password: &password})
	require.ErrorIs(t, err, apperrors.ErrScopeForbidden)

	for _, id := range []string{wideAdmin.ID, farManager.ID} {
		var stored models.User
		require.NoError(t, f.db.Take(&stored, "id = ?", id).Error)
		require.True(t, crypto.VerifyPassword(stored.PasswordHash, "password123"))
	}
	require.Equal(t, []string{AuditResultDenied, AuditResultDenied}, f.auditResults(t, "user.update"))
}

func TestUpdateManagerEmailConflict(t *testing.T) {
	f := setupUserService(t)
	admin := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1))
	target := f.user(t, "manager@example.com", models.RoleManager, rbac.Houses(1))

	email := "admin@example.com"
	_, err := f.svc.UpdateManager(context.Background(), admin.ID, target.ID, UpdateManagerInput{Email: &email})
	require.ErrorIs(t, err, apperrors.ErrEmailExists)
}

func TestListUsersVisibleFor(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com", models.RoleSuperadmin, rbac.Unrestricted())
	viewer := f.user(t, "admin@example.com", models.RoleAdmin, rbac.Houses(1, 2))
	f.user(t, "m1@example.com", models.RoleManager, rbac.Houses(2, 7))
	f.user(t, "m2@example.com", models.RoleManager, rbac.Houses(9))
	f.user(t, "orphan@example.com", "", rbac.Scope{})

	emails := func(views []UserView) []string {
		out := make([]string, 0, len(views))
		for _, v := range views {
			out = append(out, v.Email)
		}
		return out
	}

	visible, err := f.svc.ListUsersVisibleFor(ctx, viewer.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"admin@example.com", "m1@example.com", "owner@example.com"}, emails(visible))

	all, err := f.svc.ListUsersVisibleFor(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, all, 5)
}

func TestListRolesAndPermissions(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()

	roles, err := f.svc.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 3)
	for _, role := range roles {
		require.Equal(t, permissions.ForRole(role.Name), role.Permissions, role.Name)
	}

	perms, err := f.svc.ListPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, perms, len(permissions.Codes()))
}

func TestProvisionSuperadminIsIdempotent(t *testing.T) {
	f := setupUserService(t)
	ctx := context.Background()

	view, created, err := f.svc.ProvisionSuperadmin(ctx, ProvisionInput{Email: "Root@Example.com", Password: "password123", Unrestricted: true})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "root@example.com", view.Email)
	require.True(t, view.Roles[0].Scope.IsAll())

	again, created, err := f.svc.ProvisionSuperadmin(ctx, ProvisionInput{Email: "root@example.com", Password: "another-password", Unrestricted: true})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, view.ID, again.ID)

	var grants int64
	require.NoError(t, f.db.Model(&models.UserRole{}).Where("user_id = ?", view.ID).Count(&grants).Error)
	require.EqualValues(t, 1, grants)

	validator, err := delegation.NewValidator(f.db)
	require.NoError(t, err)
	capValue, err := validator.DelegationCap(ctx, view.ID)
	require.NoError(t, err)
	require.True(t, capValue.IsUnrestricted())
}

func TestProvisionSuperadminValidatesInput(t *testing.T) {
	f := setupUserService(t)

	_, _, err := f.svc.ProvisionSuperadmin(context.Background(), ProvisionInput{Email: "root@example.com", Password: "short"})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestUserServiceDatabaseFailureIsInternal(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	engine, err := rbac.NewEngine(db, rbac.NewStaticRoleTable(map[string][]string{models.RoleAdmin: {permissions.UserDisable}}))
	require.NoError(t, err)
	validator, err := delegation.NewValidator(db)
	require.NoError(t, err)
	svc, err := NewUserService(db, engine, validator, nil)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnError(errors.New("connection reset"))

	err = svc.DisableUser(context.Background(), "grantor", "target")
	require.ErrorIs(t, err, apperrors.ErrInternalServer)
	require.NoError(t, mock.ExpectationsWereMet())
}
