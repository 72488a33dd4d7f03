package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/domushq/domus/internal/models"
	"github.com/domushq/domus/pkg/logger"
)

// Grant is a single role assignment of a user.
type Grant struct {
	Role  string
	Scope Scope
	// Malformed marks a stored scope that could not be decoded. Such grants
	// contribute nothing to the user's scope.
	Malformed bool
}

// Engine derives effective permissions and scope from persisted grants.
type Engine struct {
	db    *gorm.DB
	roles *RoleTable
	cache *PermissionCache
	group singleflight.Group
	log   *zap.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithCache replaces the default permission cache.
func WithCache(cache *PermissionCache) Option {
	return func(e *Engine) {
		if cache != nil {
			e.cache = cache
		}
	}
}

// NewEngine constructs an RBAC engine.
func NewEngine(db *gorm.DB, roles *RoleTable, opts ...Option) (*Engine, error) {
	if db == nil {
		return nil, errors.New("rbac: db is required")
	}
	if roles == nil {
		return nil, errors.New("rbac: role table is required")
	}

	engine := &Engine{
		db:    db,
		roles: roles,
		log:   logger.WithModule("rbac"),
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.cache == nil {
		cache, err := NewPermissionCache(DefaultCacheSize, MaxCacheTTL, nil)
		if err != nil {
			return nil, err
		}
		engine.cache = cache
	}
	return engine, nil
}

// Roles exposes the role table.
func (e *Engine) Roles() *RoleTable {
	return e.roles
}

// EffectivePermissions returns the union of role permissions and personal
// boosts. An unknown user yields an empty set.
func (e *Engine) EffectivePermissions(ctx context.Context, userID string) (PermissionSet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return PermissionSet{}, nil
	}

	if perms, ok := e.cache.Get(userID); ok {
		return perms, nil
	}

	gen := e.cache.Generation()
	result, err, _ := e.group.Do(userID, func() (any, error) {
		perms, err := e.computePermissions(ctx, userID)
		if err != nil {
			return nil, err
		}
		e.cache.Store(userID, perms, gen)
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(PermissionSet).Clone(), nil
}

func (e *Engine) computePermissions(ctx context.Context, userID string) (PermissionSet, error) {
	grants, err := e.Grants(ctx, userID)
	if err != nil {
		return nil, err
	}

	perms := make(PermissionSet)
	for _, grant := range grants {
		if grant.Malformed {
			continue
		}
		set, ok := e.roles.Permissions(grant.Role)
		if !ok {
			e.log.Warn("grant references unknown role", zap.String("user_id", userID), zap.String("role", grant.Role))
			continue
		}
		perms.Merge(set)
	}

	var boosts []string
	if err := e.db.WithContext(ctx).
		Model(&models.UserPermissionBoost{}).
		Where("user_id = ?", userID).
		Pluck("permission_id", &boosts).Error; err != nil {
		return nil, fmt.Errorf("rbac: load boosts: %w", err)
	}
	perms.Add(boosts...)
	return perms, nil
}

// UserScope unions the scopes of every role grant. Any unrestricted grant
// makes the result unrestricted; no grants yields an empty house set.
func (e *Engine) UserScope(ctx context.Context, userID string) (Scope, error) {
	grants, err := e.Grants(ctx, userID)
	if err != nil {
		return Scope{}, err
	}

	scope := Houses()
	for _, grant := range grants {
		if grant.Malformed {
			continue
		}
		scope = scope.Union(grant.Scope)
		if scope.IsAll() {
			break
		}
	}
	return scope, nil
}

// Grants lists the user's role assignments with decoded scopes.
func (e *Engine) Grants(ctx context.Context, userID string) ([]Grant, error) {
	var rows []models.UserRole
	if err := e.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("role_id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("rbac: load grants: %w", err)
	}

	grants := make([]Grant, 0, len(rows))
	for _, row := range rows {
		scope, err := ParseScope(row.Scope)
		if err != nil {
			e.log.Warn("ignoring grant with malformed scope",
				zap.String("user_id", userID),
				zap.String("role", row.RoleID),
				zap.Error(err),
			)
			grants = append(grants, Grant{Role: row.RoleID, Malformed: true})
			continue
		}
		grants = append(grants, Grant{Role: row.RoleID, Scope: scope})
	}
	return grants, nil
}

// HasRole reports whether the user holds the role in any scope.
func (e *Engine) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var count int64
	if err := e.db.WithContext(ctx).
		Model(&models.UserRole{}).
		Where("user_id = ? AND role_id = ?", userID, role).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("rbac: check role: %w", err)
	}
	return count > 0, nil
}

// Invalidate drops any cached permissions for the user.
func (e *Engine) Invalidate(userID string) {
	e.cache.Invalidate(userID)
	e.group.Forget(userID)
}

// ReloadRoles refreshes the role table and drops every cached set.
func (e *Engine) ReloadRoles(ctx context.Context) error {
	if err := e.roles.Reload(ctx); err != nil {
		return err
	}
	e.cache.Purge()
	return nil
}
