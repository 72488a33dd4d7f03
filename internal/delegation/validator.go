package delegation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/domushq/domus/internal/models"
	"github.com/domushq/domus/internal/rbac"
	"github.com/domushq/domus/pkg/logger"
	"github.com/domushq/domus/pkg/metrics"
)

// IsPermSubset reports whether every requested code is held by the grantor
// and, for a finite cap, listed in it. The "all" marker and malformed
// requests never pass.
func IsPermSubset(effective rbac.PermissionSet, grantorCap Cap, requested CodeRequest) bool {
	ok := isPermSubset(effective, grantorCap, requested)
	record("permission", ok)
	return ok
}

func isPermSubset(effective rbac.PermissionSet, grantorCap Cap, requested CodeRequest) bool {
	if !requested.IsList() {
		return false
	}
	for _, code := range requested.codes {
		if !effective.Has(code) {
			return false
		}
		if !grantorCap.Allows(code) {
			return false
		}
	}
	return true
}

// IsScopeSubset reports whether the target scope lies within the grantor's.
// An unrestricted target is only reachable from an unrestricted grantor.
func IsScopeSubset(grantor, target rbac.Scope) bool {
	ok := grantor.Covers(target)
	record("scope", ok)
	return ok
}

func record(check string, ok bool) {
	result := "deny"
	if ok {
		result = "allow"
	}
	metrics.DelegationDecisions.WithLabelValues(check, result).Inc()
}

// Validator reads delegation caps from storage.
type Validator struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewValidator constructs a Validator.
func NewValidator(db *gorm.DB) (*Validator, error) {
	if db == nil {
		return nil, errors.New("delegation: db is required")
	}
	return &Validator{db: db, log: logger.WithModule("delegation")}, nil
}

// DelegationCap loads the cap of a user. A missing record is an empty list.
// A malformed record is treated as empty as well.
func (v *Validator) DelegationCap(ctx context.Context, userID string) (Cap, error) {
	var record models.UserDelegationCap
	err := v.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&record).Error
	if err != nil {
		return Cap{}, fmt.Errorf("delegation: load cap: %w", err)
	}
	if record.UserID == "" {
		return CodesCap(), nil
	}

	parsed, err := ParseCap(record.Permissions)
	if err != nil {
		v.log.Warn("ignoring malformed delegation cap", zap.String("user_id", userID), zap.Error(err))
		return CodesCap(), nil
	}
	return parsed, nil
}
