package models

import (
	"time"

	"gorm.io/datatypes"
)

// Permission is immutable reference data; its ID is the permission code.
type Permission struct {
	BaseModel

	Module      string `gorm:"not null;index" json:"module"`
	Description string `json:"description"`

	Roles []Role `gorm:"many2many:role_permissions;" json:"roles,omitempty"`
}

// UserPermissionBoost grants a single permission to a user outside of roles.
type UserPermissionBoost struct {
	UserID       string    `gorm:"primaryKey;type:uuid" json:"user_id"`
	PermissionID string    `gorm:"primaryKey" json:"permission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserDelegationCap limits what a user may hand out to others.
// Permissions holds {"all":true} or a JSON array of codes.
type UserDelegationCap struct {
	UserID      string         `gorm:"primaryKey;type:uuid" json:"user_id"`
	Permissions datatypes.JSON `gorm:"not null" json:"permissions"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
