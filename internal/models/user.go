package models

import "time"

// User is an administrative account able to sign in to the management API.
type User struct {
	BaseModel

	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"column:password_hash;not null" json:"-"`
	IsActive     bool   `gorm:"not null" json:"is_active"`

	LastLoginAt *time.Time `json:"last_login_at"`

	Roles    []UserRole `gorm:"foreignKey:UserID" json:"roles,omitempty"`
	Sessions []Session  `gorm:"foreignKey:UserID" json:"-"`
}
