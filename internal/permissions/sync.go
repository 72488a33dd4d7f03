package permissions

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/domushq/domus/internal/models"
)

// Sync persists registered permissions, the built-in roles and their default
// permission sets. Existing role grants added by operators are left in place.
func Sync(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("permission: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, description := range BuiltinRoles {
			role := models.Role{
				BaseModel:   models.BaseModel{ID: id},
				Name:        id,
				Description: description,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"description"}),
			}).Create(&role).Error; err != nil {
				return fmt.Errorf("permission: sync role %s: %w", id, err)
			}
		}

		for _, perm := range GetAll() {
			record := models.Permission{
				BaseModel:   models.BaseModel{ID: perm.ID},
				Module:      perm.Module,
				Description: perm.Description,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"module", "description"}),
			}).Create(&record).Error; err != nil {
				return fmt.Errorf("permission: sync %s: %w", perm.ID, err)
			}

			for _, roleID := range perm.DefaultRoles {
				link := map[string]any{"role_id": roleID, "permission_id": perm.ID}
				if err := tx.Table("role_permissions").
					Clauses(clause.OnConflict{DoNothing: true}).
					Create(link).Error; err != nil {
					return fmt.Errorf("permission: link %s to %s: %w", perm.ID, roleID, err)
				}
			}
		}
		return nil
	})
}
