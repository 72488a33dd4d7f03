package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/domushq/domus/internal/auth"
	"github.com/domushq/domus/internal/delegation"
	"github.com/domushq/domus/internal/models"
	"github.com/domushq/domus/internal/rbac"
	"github.com/domushq/domus/pkg/crypto"
	apperrors "github.com/domushq/domus/pkg/errors"
	"github.com/domushq/domus/pkg/logger"
	"github.com/domushq/domus/pkg/metrics"
)

// CreateUserInput describes a new administrative account and its first grant.
type CreateUserInput struct {
	Email    string     `json:"email" validate:"required,email,max=255"`
	Password string     `json:"password" validate:"required,min=8,max=128"`
	Role     string     `json:"role"`
	Scope    rbac.Scope `json:"scope"`
}

// UpdateManagerInput lists optional manager changes. Nil fields are left as is.
type UpdateManagerInput struct {
	Email    *string     `json:"email" validate:"omitempty,email,max=255"`
	Password *string     `json:"password" validate:"omitempty,min=8,max=128"`
	Scope    *rbac.Scope `json:"scope"`
}

// SetRoleInput grants role limited to scope.
type SetRoleInput struct {
	Role  string     `json:"role" validate:"required"`
	Scope rbac.Scope `json:"scope"`
}

// PermissionsInput carries a requested boost set or delegation cap.
type PermissionsInput struct {
	Permissions delegation.CodeRequest `json:"permissions"`
}

// ProvisionInput describes the out-of-band superadmin account.
type ProvisionInput struct {
	Email        string
	Password     string
	Unrestricted bool
}

// RoleGrantView is a role grant as rendered by the API.
type RoleGrantView struct {
	Role  string     `json:"role"`
	Scope rbac.Scope `json:"scope"`
}

// UserView is the API projection of a user.
type UserView struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	IsActive    bool            `json:"is_active"`
	LastLoginAt *time.Time      `json:"last_login_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Roles       []RoleGrantView `json:"roles"`
}

// RoleView describes a role and the permissions it carries.
type RoleView struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// UserService administers accounts under the delegation rules: a grantor can
// only hand out scope and permissions it holds itself.
type UserService struct {
	db         *gorm.DB
	engine     *rbac.Engine
	delegation *delegation.Validator
	audit      *AuditService
	now        func() time.Time
	log        *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, engine *rbac.Engine, validator *delegation.Validator, audit *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	if engine == nil {
		return nil, errors.New("user service: rbac engine is required")
	}
	if validator == nil {
		return nil, errors.New("user service: delegation validator is required")
	}
	return &UserService{
		db:         db,
		engine:     engine,
		delegation: validator,
		audit:      audit,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger.WithModule("users"),
	}, nil
}

// CreateUserWithRole creates an active user holding role within scope. The new
// user starts with an empty delegation cap.
func (s *UserService) CreateUserWithRole(ctx context.Context, grantorID string, input CreateUserInput) (*UserView, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	role := strings.TrimSpace(input.Role)
	switch {
	case email == "":
		return nil, apperrors.NewValidation("email is required")
	case input.Password == "":
		return nil, apperrors.NewValidation("password is required")
	case role == "":
		return nil, apperrors.NewValidation("role is required")
	}

	if role == models.RoleSuperadmin {
		return nil, s.deny(ctx, "user.create", "", apperrors.ErrForbiddenSuperadminRole, nil)
	}

	grantorScope, err := s.engine.UserScope(ctx, grantorID)
	if err != nil {
		return nil, internalError(err)
	}
	if !delegation.IsScopeSubset(grantorScope, input.Scope) {
		return nil, s.deny(ctx, "user.create", "", apperrors.ErrScopeForbidden, map[string]any{
			"email": email,
			"scope": input.Scope.String(),
		})
	}
	if !s.engine.Roles().Exists(role) {
		return nil, apperrors.ErrRoleNotFound
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, internalError(fmt.Errorf("user service: hash password: %w", err))
	}

	user := &models.User{Email: email, PasswordHash: hashed, IsActive: true}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureEmailAvailable(tx, email, ""); err != nil {
			return err
		}
		if err := tx.Create(user).Error; err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.ErrEmailExists
			}
			return fmt.Errorf("user service: create user: %w", err)
		}
		if err := upsertGrant(tx, user.ID, role, input.Scope); err != nil {
			return err
		}
		return upsertCap(tx, user.ID, delegation.CodesCap(), s.now())
	})
	if err != nil {
		return nil, apperrors.FromError(err)
	}

	s.engine.Invalidate(user.ID)
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "user.create",
		Resource: "user:" + user.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"email": email, "role": role, "scope": input.Scope.String()},
	})

	return s.view(ctx, user.ID)
}

// UpdateManager changes a manager's email, password or manager scope. The
// target must hold the manager role and lie within the grantor's reach. A
// password change signs the manager out everywhere.
func (s *UserService) UpdateManager(ctx context.Context, grantorID, managerID string, input UpdateManagerInput) (*UserView, error) {
	ctx = ensureContext(ctx)

	var email string
	if input.Email != nil {
		email = normaliseEmail(*input.Email)
		if email == "" {
			return nil, apperrors.NewValidation("email must not be empty")
		}
	}
	if input.Password != nil && *input.Password == "" {
		return nil, apperrors.NewValidation("password must not be empty")
	}

	target, err := s.findUser(ctx, managerID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNotSuperadmin(ctx, "user.update", target.ID); err != nil {
		return nil, err
	}
	isManager, err := s.engine.HasRole(ctx, target.ID, models.RoleManager)
	if err != nil {
		return nil, internalError(err)
	}
	if !isManager {
		return nil, s.deny(ctx, "user.update", target.ID, apperrors.ErrRoleNotFound.WithMessage("User is not a manager"), nil)
	}
	if err := s.ensureReach(ctx, "user.update", grantorID, target.ID); err != nil {
		return nil, err
	}

	if input.Scope != nil {
		grantorScope, err := s.engine.UserScope(ctx, grantorID)
		if err != nil {
			return nil, internalError(err)
		}
		if !delegation.IsScopeSubset(grantorScope, *input.Scope) {
			return nil, s.deny(ctx, "user.update", target.ID, apperrors.ErrScopeForbidden, map[string]any{
				"scope": input.Scope.String(),
			})
		}
	}

	var hashed string
	if input.Password != nil {
		hashed, err = crypto.HashPassword(*input.Password)
		if err != nil {
			return nil, internalError(fmt.Errorf("user service: hash password: %w", err))
		}
	}

	var revoked int64
	changed := []string{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{}
		if input.Email != nil && email != target.Email {
			if err := ensureEmailAvailable(tx, email, target.ID); err != nil {
				return err
			}
			updates["email"] = email
			changed = append(changed, "email")
		}
		if hashed != "" {
			updates["password_hash"] = hashed
			changed = append(changed, "password")
		}
		if len(updates) > 0 {
			if err := tx.Model(&models.User{}).Where("id = ?", target.ID).Updates(updates).Error; err != nil {
				if isUniqueConstraintError(err) {
					return apperrors.ErrEmailExists
				}
				return fmt.Errorf("user service: update user: %w", err)
			}
		}
		if input.Scope != nil {
			if err := tx.Model(&models.UserRole{}).
				Where("user_id = ? AND role_id = ?", target.ID, models.RoleManager).
				Update("scope", input.Scope.MustJSON()).Error; err != nil {
				return fmt.Errorf("user service: update scope: %w", err)
			}
			changed = append(changed, "scope")
		}
		if hashed != "" {
			n, err := auth.RevokeUserSessionsTx(tx, target.ID, s.now())
			if err != nil {
				return err
			}
			revoked = n
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.FromError(err)
	}

	s.afterSessionsRevoked(revoked)
	s.engine.Invalidate(target.ID)
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "user.update",
		Resource: "user:" + target.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"changed": changed},
	})

	return s.view(ctx, target.ID)
}

// DisableUser deactivates an account and revokes its refresh sessions.
func (s *UserService) DisableUser(ctx context.Context, grantorID, targetID string) error {
	return s.setActive(ctx, grantorID, targetID, false)
}

// EnableUser reactivates a previously disabled account.
func (s *UserService) EnableUser(ctx context.Context, grantorID, targetID string) error {
	return s.setActive(ctx, grantorID, targetID, true)
}

func (s *UserService) setActive(ctx context.Context, grantorID, targetID string, active bool) error {
	ctx = ensureContext(ctx)

	action := "user.disable"
	if active {
		action = "user.enable"
	}

	target, err := s.authorizeTarget(ctx, action, grantorID, targetID)
	if err != nil {
		return err
	}

	var revoked int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", target.ID).Update("is_active", active).Error; err != nil {
			return fmt.Errorf("user service: update status: %w", err)
		}
		if active {
			return nil
		}
		n, err := auth.RevokeUserSessionsTx(tx, target.ID, s.now())
		revoked = n
		return err
	})
	if err != nil {
		return apperrors.FromError(err)
	}

	s.afterSessionsRevoked(revoked)
	s.engine.Invalidate(target.ID)
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   action,
		Resource: "user:" + target.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"email": target.Email, "revoked_sessions": revoked},
	})
	return nil
}

// DeleteUser removes the user together with grants, boosts, cap and sessions.
func (s *UserService) DeleteUser(ctx context.Context, grantorID, targetID string) error {
	ctx = ensureContext(ctx)

	target, err := s.authorizeTarget(ctx, "user.delete", grantorID, targetID)
	if err != nil {
		return err
	}

	var revoked int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := auth.RevokeUserSessionsTx(tx, target.ID, s.now())
		if err != nil {
			return err
		}
		revoked = n

		for _, model := range []any{
			&models.Session{},
			&models.UserRole{},
			&models.UserPermissionBoost{},
			&models.UserDelegationCap{},
		} {
			if err := tx.Where("user_id = ?", target.ID).Delete(model).Error; err != nil {
				return fmt.Errorf("user service: delete %T: %w", model, err)
			}
		}

		result := tx.Where("id = ?", target.ID).Delete(&models.User{})
		if result.Error != nil {
			return fmt.Errorf("user service: delete user: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		return apperrors.FromError(err)
	}

	s.afterSessionsRevoked(revoked)
	s.engine.Invalidate(target.ID)
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "user.delete",
		Resource: "user:" + target.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"email": target.Email},
	})
	return nil
}

// SetUserRole grants or re-scopes a role. Superadmin can never be granted here.
func (s *UserService) SetUserRole(ctx context.Context, grantorID, userID string, input SetRoleInput) (*UserView, error) {
	ctx = ensureContext(ctx)

	role := strings.TrimSpace(input.Role)
	if role == "" {
		return nil, apperrors.NewValidation("role is required")
	}
	if role == models.RoleSuperadmin {
		return nil, s.deny(ctx, "user.role.set", userID, apperrors.ErrForbiddenSuperadminRole, nil)
	}

	target, err := s.authorizeTarget(ctx, "user.role.set", grantorID, userID)
	if err != nil {
		return nil, err
	}

	grantorScope, err := s.engine.UserScope(ctx, grantorID)
	if err != nil {
		return nil, internalError(err)
	}
	if !delegation.IsScopeSubset(grantorScope, input.Scope) {
		return nil, s.deny(ctx, "user.role.set", target.ID, apperrors.ErrScopeForbidden, map[string]any{
			"role":  role,
			"scope": input.Scope.String(),
		})
	}
	if !s.engine.Roles().Exists(role) {
		return nil, apperrors.ErrRoleNotFound
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertGrant(tx, target.ID, role, input.Scope)
	})
	if err != nil {
		return nil, apperrors.FromError(err)
	}

	s.engine.Invalidate(target.ID)
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "user.role.set",
		Resource: "user:" + target.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"role": role, "scope": input.Scope.String()},
	})

	return s.view(ctx, target.ID)
}

// SetUserBoosts replaces the user's personal permissions with the requested set.
func (s *UserService) SetUserBoosts(ctx context.Context, grantorID, userID string, input PermissionsInput) ([]string, error) {
	ctx = ensureContext(ctx)

	target, err := s.authorizeTarget(ctx, "user.boosts.set", grantorID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.checkPermSubset(ctx, "user.boosts.set", grantorID, target.ID, input.Permissions); err != nil {
		return nil, err
	}

	codes := input.Permissions.Codes()
	sort.Strings(codes)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", target.ID).Delete(&models.UserPermissionBoost{}).Error; err != nil {
			return fmt.Errorf("user service: clear boosts: %w", err)
		}
		if len(codes) == 0 {
			return nil
		}
		boosts := make([]models.UserPermissionBoost, 0, len(codes))
		for _, code := range codes {
			boosts = append(boosts, models.UserPermissionBoost{UserID: target.ID, PermissionID: code})
		}
		if err := tx.Create(&boosts).Error; err != nil {
			return fmt.Errorf("user service: insert boosts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.FromError(err)
	}

	s.engine.Invalidate(target.ID)
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "user.boosts.set",
		Resource: "user:" + target.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"permissions": codes},
	})
	return codes, nil
}

// SetUserDelegationCap stores what the user may delegate. Only a superadmin
// may grant the unrestricted cap.
func (s *UserService) SetUserDelegationCap(ctx context.Context, grantorID, userID string, input PermissionsInput) (delegation.Cap, error) {
	ctx = ensureContext(ctx)

	target, err := s.findUser(ctx, userID)
	if err != nil {
		return delegation.Cap{}, err
	}
	if err := s.ensureNotSuperadmin(ctx, "user.cap.set", target.ID); err != nil {
		return delegation.Cap{}, err
	}

	var next delegation.Cap
	if input.Permissions.IsAll() {
		isSuperadmin, err := s.engine.HasRole(ctx, grantorID, models.RoleSuperadmin)
		if err != nil {
			return delegation.Cap{}, internalError(err)
		}
		if !isSuperadmin {
			return delegation.Cap{}, s.deny(ctx, "user.cap.set", target.ID, apperrors.ErrForbiddenAllCap, nil)
		}
		next = delegation.UnrestrictedCap()
	}

	if err := s.ensureReach(ctx, "user.cap.set", grantorID, target.ID); err != nil {
		return delegation.Cap{}, err
	}

	if !input.Permissions.IsAll() {
		if err := s.checkPermSubset(ctx, "user.cap.set", grantorID, target.ID, input.Permissions); err != nil {
			return delegation.Cap{}, err
		}
		next = delegation.CodesCap(input.Permissions.Codes()...)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertCap(tx, target.ID, next, s.now())
	})
	if err != nil {
		return delegation.Cap{}, apperrors.FromError(err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "user.cap.set",
		Resource: "user:" + target.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"unrestricted": next.IsUnrestricted(), "permissions": next.Codes()},
	})
	return next, nil
}

// ListUsersVisibleFor returns users sharing at least one house with the viewer.
// An unrestricted scope on either side is always visible.
func (s *UserService) ListUsersVisibleFor(ctx context.Context, viewerID string) ([]UserView, error) {
	ctx = ensureContext(ctx)

	viewerScope, err := s.engine.UserScope(ctx, viewerID)
	if err != nil {
		return nil, internalError(err)
	}

	var users []models.User
	if err := s.db.WithContext(ctx).
		Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("role_id") }).
		Order("email").
		Find(&users).Error; err != nil {
		return nil, internalError(fmt.Errorf("user service: list users: %w", err))
	}

	views := make([]UserView, 0, len(users))
	for _, user := range users {
		view := s.toView(user)
		if viewerScope.IsAll() || visibleTo(viewerScope, view.Roles) {
			views = append(views, view)
		}
	}
	return views, nil
}

// GetUser returns a single user.
func (s *UserService) GetUser(ctx context.Context, userID string) (*UserView, error) {
	return s.view(ensureContext(ctx), userID)
}

// ListRoles returns every role with its permission codes.
func (s *UserService) ListRoles(ctx context.Context) ([]RoleView, error) {
	ctx = ensureContext(ctx)

	var roles []models.Role
	if err := s.db.WithContext(ctx).Preload("Permissions").Order("name").Find(&roles).Error; err != nil {
		return nil, internalError(fmt.Errorf("user service: list roles: %w", err))
	}

	views := make([]RoleView, 0, len(roles))
	for _, role := range roles {
		codes := make([]string, 0, len(role.Permissions))
		for _, perm := range role.Permissions {
			codes = append(codes, perm.ID)
		}
		sort.Strings(codes)
		views = append(views, RoleView{Name: role.Name, Description: role.Description, Permissions: codes})
	}
	return views, nil
}

// ListPermissions returns the permission catalogue.
func (s *UserService) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	ctx = ensureContext(ctx)

	var perms []models.Permission
	if err := s.db.WithContext(ctx).Order("module, id").Find(&perms).Error; err != nil {
		return nil, internalError(fmt.Errorf("user service: list permissions: %w", err))
	}
	return perms, nil
}

// ProvisionSuperadmin creates or resets the superadmin account. It is only
// reachable from the provisioning command and skips delegation checks.
func (s *UserService) ProvisionSuperadmin(ctx context.Context, input ProvisionInput) (*UserView, bool, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, false, apperrors.NewValidation("email is required")
	}
	if len(input.Password) < 8 {
		return nil, false, apperrors.NewValidation("password must be at least 8 characters")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, false, internalError(fmt.Errorf("user service: hash password: %w", err))
	}

	scope := rbac.Houses()
	if input.Unrestricted {
		scope = rbac.Unrestricted()
	}

	var (
		user    models.User
		created bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("email = ?", email).Take(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = models.User{Email: email, PasswordHash: hashed, IsActive: true}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("user service: create superadmin: %w", err)
			}
			created = true
		case err != nil:
			return fmt.Errorf("user service: find superadmin: %w", err)
		default:
			if err := tx.Model(&user).Updates(map[string]any{
				"password_hash": hashed,
				"is_active":     true,
			}).Error; err != nil {
				return fmt.Errorf("user service: update superadmin: %w", err)
			}
		}

		if err := upsertGrant(tx, user.ID, models.RoleSuperadmin, scope); err != nil {
			return err
		}
		return upsertCap(tx, user.ID, delegation.UnrestrictedCap(), s.now())
	})
	if err != nil {
		return nil, false, apperrors.FromError(err)
	}

	s.engine.Invalidate(user.ID)
	recordAudit(s.audit, ctx, AuditEntry{
		ActorEmail: "system",
		Action:     "user.provision_superadmin",
		Resource:   "user:" + user.ID,
		Result:     AuditResultSuccess,
		Metadata:   map[string]any{"email": email, "created": created, "unrestricted": input.Unrestricted},
	})

	view, err := s.view(ctx, user.ID)
	return view, created, err
}

// authorizeTarget loads the target and applies the checks shared by every
// mutation of an existing account: superadmins are untouchable and the grantor
// must reach every house the target holds.
func (s *UserService) authorizeTarget(ctx context.Context, action, grantorID, targetID string) (*models.User, error) {
	target, err := s.findUser(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNotSuperadmin(ctx, action, target.ID); err != nil {
		return nil, err
	}
	if err := s.ensureReach(ctx, action, grantorID, target.ID); err != nil {
		return nil, err
	}
	return target, nil
}

func (s *UserService) ensureNotSuperadmin(ctx context.Context, action, targetID string) error {
	protected, err := s.engine.HasRole(ctx, targetID, models.RoleSuperadmin)
	if err != nil {
		return internalError(err)
	}
	if protected {
		return s.deny(ctx, action, targetID, apperrors.ErrForbiddenSuperadmin, nil)
	}
	return nil
}

// ensureReach requires every grant of the target to lie within the grantor's
// scope. A grant with an unreadable scope is only reachable by an unrestricted
// grantor.
func (s *UserService) ensureReach(ctx context.Context, action, grantorID, targetID string) error {
	grantorScope, err := s.engine.UserScope(ctx, grantorID)
	if err != nil {
		return internalError(err)
	}
	grants, err := s.engine.Grants(ctx, targetID)
	if err != nil {
		return internalError(err)
	}
	for _, grant := range grants {
		covered := grantorScope.IsAll()
		if !grant.Malformed {
			covered = delegation.IsScopeSubset(grantorScope, grant.Scope)
		}
		if !covered {
			return s.deny(ctx, action, targetID, apperrors.ErrScopeForbidden, map[string]any{"role": grant.Role})
		}
	}
	return nil
}

func (s *UserService) checkPermSubset(ctx context.Context, action, grantorID, targetID string, requested delegation.CodeRequest) error {
	effective, err := s.engine.EffectivePermissions(ctx, grantorID)
	if err != nil {
		return internalError(err)
	}
	grantorCap, err := s.delegation.DelegationCap(ctx, grantorID)
	if err != nil {
		return internalError(err)
	}
	if !delegation.IsPermSubset(effective, grantorCap, requested) {
		return s.deny(ctx, action, targetID, apperrors.ErrPermissionForbidden, map[string]any{
			"permissions": requested.Codes(),
		})
	}
	return nil
}

// deny records a rejected delegation attempt and returns err unchanged.
func (s *UserService) deny(ctx context.Context, action, targetID string, err *apperrors.AppError, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["code"] = err.Code

	resource := ""
	if targetID != "" {
		resource = "user:" + targetID
	}
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   action,
		Resource: resource,
		Result:   AuditResultDenied,
		Metadata: metadata,
	})
	return err
}

func (s *UserService) findUser(ctx context.Context, userID string) (*models.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.ErrUserNotFound
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, internalError(fmt.Errorf("user service: find user: %w", err))
	}
	return &user, nil
}

func (s *UserService) view(ctx context.Context, userID string) (*UserView, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("role_id") }).
		Where("id = ?", userID).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, internalError(fmt.Errorf("user service: load user: %w", err))
	}
	view := s.toView(user)
	return &view, nil
}

func (s *UserService) toView(user models.User) UserView {
	view := UserView{
		ID:          user.ID,
		Email:       user.Email,
		IsActive:    user.IsActive,
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
		Roles:       make([]RoleGrantView, 0, len(user.Roles)),
	}
	for _, grant := range user.Roles {
		scope, err := rbac.ParseScope(grant.Scope)
		if err != nil {
			s.log.Warn("skipping grant with malformed scope",
				zap.String("user_id", user.ID),
				zap.String("role", grant.RoleID),
				zap.Error(err),
			)
			continue
		}
		view.Roles = append(view.Roles, RoleGrantView{Role: grant.RoleID, Scope: scope})
	}
	return view
}

func (s *UserService) afterSessionsRevoked(n int64) {
	if n > 0 {
		metrics.ActiveSessions.Sub(float64(n))
	}
}

func visibleTo(viewer rbac.Scope, grants []RoleGrantView) bool {
	for _, grant := range grants {
		if grant.Scope.Intersects(viewer) {
			return true
		}
	}
	return false
}

func ensureEmailAvailable(tx *gorm.DB, email, exceptID string) error {
	query := tx.Model(&models.User{}).Where("email = ?", email)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("user service: check email: %w", err)
	}
	if count > 0 {
		return apperrors.ErrEmailExists
	}
	return nil
}

func upsertGrant(tx *gorm.DB, userID, role string, scope rbac.Scope) error {
	grant := models.UserRole{UserID: userID, RoleID: role, Scope: scope.MustJSON()}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "role_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"scope", "updated_at"}),
	}).Create(&grant).Error
	if err != nil {
		return fmt.Errorf("user service: upsert grant: %w", err)
	}
	return nil
}

func upsertCap(tx *gorm.DB, userID string, value delegation.Cap, now time.Time) error {
	encoded, err := value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("user service: encode cap: %w", err)
	}
	record := models.UserDelegationCap{UserID: userID, Permissions: encoded, UpdatedAt: now}
	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"permissions", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("user service: upsert cap: %w", err)
	}
	return nil
}

func internalError(err error) error {
	return apperrors.ErrInternalServer.WithInternal(err)
}
