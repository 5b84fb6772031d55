package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/consensus/internal/auth"
	"github.com/BradenHooton/consensus/internal/config"
	"github.com/BradenHooton/consensus/internal/database"
	"github.com/BradenHooton/consensus/internal/models"
	"github.com/BradenHooton/consensus/internal/repositories"
	"github.com/BradenHooton/consensus/internal/services"
	pkgauth "github.com/BradenHooton/consensus/pkg/auth"
	"github.com/spf13/cobra"
)

type bootstrapOptions struct {
	username  string
	password  string
	email     string
	firstName string
	group     string
}

func newBootstrapAdminCmd() *cobra.Command {
	var opts bootstrapOptions

	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the first administrator and its group if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			return bootstrapAdmin(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.username, "username", "admin", "administrator username")
	cmd.Flags().StringVar(&opts.password, "password", "", "administrator password")
	cmd.Flags().StringVar(&opts.email, "email", "", "administrator email")
	cmd.Flags().StringVar(&opts.firstName, "first-name", "Admin", "administrator first name")
	cmd.Flags().StringVar(&opts.group, "group", "Administrators", "user group the administrator belongs to")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func bootstrapAdmin(ctx context.Context, cfg *config.Config, opts bootstrapOptions) error {
	logger := newLogger(cfg.Server)

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	userRepo := repositories.NewUserRepository(db.Pool)
	groupRepo := repositories.NewUserGroupRepository(db.Pool)

	if _, err := userRepo.GetByUsername(ctx, opts.username); err == nil {
		logger.Info("admin user already exists", slog.String("username", opts.username))
		return nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	group, err := groupRepo.GetByName(ctx, opts.group)
	if errors.Is(err, models.ErrNotFound) {
		group = &models.UserGroup{Name: opts.group, Description: "System administrators", IsActive: models.FlagOn}
		if err := groupRepo.Create(ctx, group); err != nil {
			return fmt.Errorf("failed to create admin group: %w", err)
		}
		logger.Info("admin group created", slog.Int64("group_id", group.ID))
	} else if err != nil {
		return fmt.Errorf("failed to load admin group: %w", err)
	}

	accounts := services.NewAccountService(services.AccountDeps{
		Users:  userRepo,
		Hasher: pkgauth.NewHasher(cfg.Auth.BcryptCost),
		Guard:  auth.NewGuard(groupRepo),
		Logger: logger,
	})

	user, err := accounts.CreateUser(ctx, nil, services.CreateUserInput{
		UserGroupID: group.ID,
		Username:    opts.username,
		Password:    opts.password,
		FirstName:   opts.firstName,
		Email:       opts.email,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully", slog.Int64("user_id", user.ID))
	return nil
}
