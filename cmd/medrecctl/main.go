package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/medrecord-api/config"
	"github.com/jwalitptl/medrecord-api/internal/app"
	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/internal/repository/postgres"
	"github.com/jwalitptl/medrecord-api/internal/service/audit"
	"github.com/jwalitptl/medrecord-api/internal/service/auth"
	"github.com/jwalitptl/medrecord-api/internal/worker"
	"github.com/jwalitptl/medrecord-api/pkg/logger"
	"github.com/jwalitptl/medrecord-api/pkg/security"
	pkgvalidator "github.com/jwalitptl/medrecord-api/pkg/validator"
)

var configPath string

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "medrecctl",
		Short: "Medical records service administration",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.Setup(&logger.Config{Level: "info", Format: "console", Output: os.Stderr})
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(revocationsCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("migrate needs database.driver postgres, got %q", cfg.Database.Driver)
			}

			db, err := postgres.NewDB(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			log.Info().Str("database", cfg.Database.Name).Msg("schema applied")
			return nil
		},
	}
}

func revocationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revocations",
		Short: "Manage revoked tokens",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete revocations whose token has expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repos, err := app.OpenRepositories(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer repos.Close()

			worker.NewRunner(cfg.Worker.Interval, nil, worker.RevocationPurge(repos.Revocations)).RunOnce(cmd.Context())
			return nil
		},
	})

	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage staff accounts",
	}

	var req model.RegisterRequest
	var role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a doctor or nurse account",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Role = model.Role(role)
			if req.Password == "" {
				generated, err := security.GeneratePassword(16)
				if err != nil {
					return err
				}
				req.Password = generated
				fmt.Fprintf(cmd.OutOrStdout(), "generated password: %s\n", generated)
			}
			if err := validateRequest(&req); err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repos, err := app.OpenRepositories(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer repos.Close()

			auditor := audit.NewAuditLogger(audit.NewService(repos.Audit))
			defer auditor.Wait()

			svc := auth.NewService(auth.Options{
				Users:   repos.Users,
				Hasher:  security.NewBcryptHasher(0),
				Auditor: auditor,
				Domains: cfg.HospitalDomains(),
			})
			user, err := svc.Register(cmd.Context(), &req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", user.Role, user.Email, user.ID)
			return nil
		},
	}
	create.Flags().StringVar(&req.Email, "email", "", "login email")
	create.Flags().StringVar(&req.Name, "name", "", "display name")
	create.Flags().StringVar(&role, "role", string(model.RoleDoctor), "doctor or nurse")
	create.Flags().StringVar(&req.Hospital, "hospital", "", "hospital name")
	create.Flags().StringVar(&req.Department, "department", "", "department")
	create.Flags().StringVar(&req.Password, "password", "", "password; generated when empty")
	for _, name := range []string{"email", "name", "hospital", "department"} {
		_ = create.MarkFlagRequired(name)
	}

	cmd.AddCommand(create)
	return cmd
}

// validateRequest applies the same binding rules the HTTP API uses.
func validateRequest(req *model.RegisterRequest) error {
	v := validator.New()
	v.SetTagName("binding")
	if err := pkgvalidator.RegisterOn(v); err != nil {
		return err
	}
	return pkgvalidator.Describe(v.Struct(req))
}
