package checks

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/domushq/domus/internal/models"
	"github.com/domushq/domus/internal/monitoring"
	"github.com/domushq/domus/internal/permissions"
)

const defaultDatabaseTimeout = 2 * time.Second

// Database returns a readiness probe that pings the configured database handle.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultDatabaseTimeout))
		defer cancel()

		return monitoring.ResultFromError("database", sqlDB.PingContext(probeCtx), time.Since(start))
	})
}

// Roles verifies that every builtin role is present. Authorization cannot work
// until the seed has run.
func Roles(db *gorm.DB, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("roles", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultDatabaseTimeout))
		defer cancel()

		names := make([]string, 0, len(permissions.BuiltinRoles))
		for name := range permissions.BuiltinRoles {
			names = append(names, name)
		}

		var count int64
		if err := db.WithContext(probeCtx).Model(&models.Role{}).Where("id IN ?", names).Count(&count).Error; err != nil {
			return monitoring.ResultFromError("roles", err, time.Since(start))
		}
		if int(count) != len(names) {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDown,
				Details:  fmt.Sprintf("%d of %d builtin roles seeded", count, len(names)),
				Duration: time.Since(start),
			}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Duration: time.Since(start)}
	})
}

func chooseTimeout(provided, fallback time.Duration) time.Duration {
	if provided <= 0 {
		return fallback
	}
	return provided
}
