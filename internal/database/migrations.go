package database

import (
	"context"

	"gorm.io/gorm"

	"github.com/domushq/domus/internal/models"
	"github.com/domushq/domus/internal/permissions"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Permission{},
		&models.UserRole{},
		&models.UserPermissionBoost{},
		&models.UserDelegationCap{},
		&models.Session{},
		&models.AuditLog{},
		&models.CacheEntry{},
		&models.House{},
		&models.Entrance{},
		&models.Apartment{},
		&models.Parking{},
		&models.StorageUnit{},
		&models.Resident{},
		&models.ResidentPrivacy{},
		&models.ResidentApartment{},
		&models.ResidentParking{},
		&models.ResidentStorage{},
	)
}

// SeedData populates the built-in roles, permission codes and their default links.
func SeedData(db *gorm.DB) error {
	return permissions.Sync(context.Background(), db)
}
