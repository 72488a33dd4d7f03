// Command seed-superadmin creates or resets the superadmin account from
// SUPERADMIN_EMAIL and SUPERADMIN_PASSWORD. Set SUPERADMIN_SCOPE_ALL=true to
// grant the unrestricted house scope.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/domushq/domus/internal/app"
	"github.com/domushq/domus/internal/database"
	"github.com/domushq/domus/internal/delegation"
	"github.com/domushq/domus/internal/rbac"
	"github.com/domushq/domus/internal/services"
	"github.com/domushq/domus/pkg/logger"
)

const (
	envEmail    = "SUPERADMIN_EMAIL"
	envPassword = "SUPERADMIN_PASSWORD"
	envScopeAll = "SUPERADMIN_SCOPE_ALL"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Getenv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string) error {
	fs := flag.NewFlagSet("seed-superadmin", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Directory containing config.yaml")

	if err := fs.Parse(args); err != nil {
		return err
	}

	input, err := provisionInputFromEnv(getenv)
	if err != nil {
		return err
	}

	var paths []string
	if strings.TrimSpace(configPath) != "" {
		paths = append(paths, configPath)
	}
	cfg, err := app.LoadConfig(paths...)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort
	log := logger.WithModule("seed")

	db, err := database.Open(cfg.Database.ConnectionConfig())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return fmt.Errorf("auto-migrate database: %w", err)
	}

	user, created, err := provision(ctx, db, input)
	if err != nil {
		return err
	}

	log.Info("superadmin provisioned",
		zap.String("user_id", user.ID),
		zap.String("email", user.Email),
		zap.Bool("created", created),
		zap.Bool("unrestricted", input.Unrestricted),
	)
	return nil
}

func provisionInputFromEnv(getenv func(string) string) (services.ProvisionInput, error) {
	input := services.ProvisionInput{
		Email:    strings.TrimSpace(getenv(envEmail)),
		Password: getenv(envPassword),
	}
	if input.Email == "" || input.Password == "" {
		return input, fmt.Errorf("%s and %s must be set", envEmail, envPassword)
	}

	if raw := strings.TrimSpace(getenv(envScopeAll)); raw != "" {
		all, err := strconv.ParseBool(raw)
		if err != nil {
			return input, fmt.Errorf("%s: %w", envScopeAll, err)
		}
		input.Unrestricted = all
	}
	return input, nil
}

func provision(ctx context.Context, db *gorm.DB, input services.ProvisionInput) (*services.UserView, bool, error) {
	roles, err := rbac.LoadRoleTable(ctx, db)
	if err != nil {
		return nil, false, fmt.Errorf("load role table: %w", err)
	}
	engine, err := rbac.NewEngine(db, roles)
	if err != nil {
		return nil, false, err
	}
	validator, err := delegation.NewValidator(db)
	if err != nil {
		return nil, false, err
	}
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, false, err
	}
	users, err := services.NewUserService(db, engine, validator, audit)
	if err != nil {
		return nil, false, err
	}
	return users.ProvisionSuperadmin(ctx, input)
}
