package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"

	"github.com/domushq/domus/internal/models"
)

// RoleTable keeps the role to permission mapping in memory. Roles are
// reference data, so the table is loaded once and reloaded on demand.
type RoleTable struct {
	db *gorm.DB

	mu    sync.RWMutex
	roles map[string]PermissionSet
}

// LoadRoleTable reads every role and its permissions.
func LoadRoleTable(ctx context.Context, db *gorm.DB) (*RoleTable, error) {
	if db == nil {
		return nil, errors.New("rbac: db is required")
	}
	table := &RoleTable{db: db}
	if err := table.Reload(ctx); err != nil {
		return nil, err
	}
	return table, nil
}

// NewStaticRoleTable builds a table from a fixed mapping.
func NewStaticRoleTable(mapping map[string][]string) *RoleTable {
	roles := make(map[string]PermissionSet, len(mapping))
	for role, codes := range mapping {
		roles[role] = NewPermissionSet(codes...)
	}
	return &RoleTable{roles: roles}
}

// Reload refreshes the table from the database.
func (t *RoleTable) Reload(ctx context.Context) error {
	if t.db == nil {
		return nil
	}

	var roles []models.Role
	if err := t.db.WithContext(ctx).Preload("Permissions").Find(&roles).Error; err != nil {
		return fmt.Errorf("rbac: load roles: %w", err)
	}

	next := make(map[string]PermissionSet, len(roles))
	for _, role := range roles {
		set := make(PermissionSet, len(role.Permissions))
		for _, perm := range role.Permissions {
			set.Add(perm.ID)
		}
		next[role.ID] = set
	}

	t.mu.Lock()
	t.roles = next
	t.mu.Unlock()
	return nil
}

// Permissions returns the permission set of the role.
func (t *RoleTable) Permissions(role string) (PermissionSet, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set, ok := t.roles[role]
	return set, ok
}

// Exists reports whether the role is known.
func (t *RoleTable) Exists(role string) bool {
	_, ok := t.Permissions(role)
	return ok
}

// Names lists the known roles in lexical order.
func (t *RoleTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.roles))
	for name := range t.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
