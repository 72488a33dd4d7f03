package models

import (
	"time"

	"gorm.io/datatypes"
)

// Role identifiers double as role names in tokens and API payloads.
const (
	RoleSuperadmin = "superadmin"
	RoleAdmin      = "admin"
	RoleManager    = "manager"
)

type Role struct {
	BaseModel

	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description"`

	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`
}

// UserRole grants a role to a user limited to a scope of houses.
// Scope is stored as {"all":true} or {"houses":[...]}.
type UserRole struct {
	UserID    string         `gorm:"primaryKey;type:uuid" json:"user_id"`
	RoleID    string         `gorm:"primaryKey" json:"role_id"`
	Role      *Role          `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	Scope     datatypes.JSON `gorm:"not null" json:"scope"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
