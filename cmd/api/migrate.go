package main

import (
	"log"

	"timetracker/internal/config"
	"timetracker/internal/database"
	"timetracker/internal/repository"
	"timetracker/internal/security"
	"timetracker/internal/service"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		db, err := database.NewConnection(cfg.Database.DSN(), !cfg.Release())
		if err != nil {
			return errors.Wrap(err, "database connection failed")
		}
		if err := database.Migrate(db); err != nil {
			return errors.Wrap(err, "migration failed")
		}
		log.Println("Schema is up to date.")
		return nil
	},
}

var adminEmail, adminName, adminPassword string

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create the first admin account on an empty database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		db, err := database.NewConnection(cfg.Database.DSN(), false)
		if err != nil {
			return errors.Wrap(err, "database connection failed")
		}
		logger := newLogger(false)
		users := service.NewUserService(
			repository.NewUserRepository(db),
			service.TokenConfig{Secret: cfg.JWTSecret, TTL: cfg.TokenTTL},
			security.NewEventLog(0, logger),
			nil,
			logger,
		)
		admin, err := users.BootstrapAdmin(cmd.Context(), service.CreateUserRequest{
			Email:    adminEmail,
			FullName: adminName,
			Password: adminPassword,
		})
		if err != nil {
			return err
		}
		log.Printf("Created admin %s (%s)", admin.Email, admin.ID)
		return nil
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "Admin email")
	createAdminCmd.Flags().StringVar(&adminName, "name", "Administrator", "Admin full name")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "Admin password (8 to 72 bytes)")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")
}
