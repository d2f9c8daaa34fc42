package main

import (
	"context"
	"os"

	"github.com/go-extras/cobraflags"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"storefront/internal/auth"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/logger"
	"storefront/internal/repository"
	"storefront/internal/service"
)

const (
	emailFlag    = "email"
	passwordFlag = "password"
	sourceFlag   = "source"
)

var adminFlags = map[string]cobraflags.Flag{
	emailFlag: &cobraflags.StringFlag{
		Name:  emailFlag,
		Value: "",
		Usage: "Email of the admin account (defaults to ADMIN_EMAIL)",
	},
	passwordFlag: &cobraflags.StringFlag{
		Name:  passwordFlag,
		Value: "",
		Usage: "Password of the admin account (defaults to ADMIN_PASSWORD)",
	},
}

var productFlags = map[string]cobraflags.Flag{
	sourceFlag: &cobraflags.StringFlag{
		Name:  sourceFlag,
		Value: "",
		Usage: "Path or http(s) URL of a JSON array of products (required)",
	},
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	root := &cobra.Command{
		Use:           "seed",
		Short:         "Seed the storefront database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newAdminCommand(cfg, log), newProductsCommand(cfg, log))

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("seed failed")
		os.Exit(1)
	}
}

func newAdminCommand(cfg *config.Config, log zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Create an admin account, or promote an existing one and reset its password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			email := adminFlags[emailFlag].GetString()
			if email == "" {
				email = cfg.AdminEmail
			}
			password := adminFlags[passwordFlag].GetString()
			if password == "" {
				password = cfg.AdminPassword
			}

			gormDB, err := connect(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(gormDB) }()

			jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
			authService := service.NewAuthService(repository.NewUserRepository(gormDB), jwtService, nil, cfg.BcryptCost)

			user, created, err := authService.EnsureAdmin(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			log.Info().Uint("id", user.ID).Str("email", user.Email).Bool("created", created).Msg("admin ready")
			return nil
		},
	}
	cobraflags.RegisterMap(cmd, adminFlags)
	return cmd
}

func newProductsCommand(cfg *config.Config, log zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Load catalog products from a JSON file or URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			source := productFlags[sourceFlag].GetString()
			if source == "" {
				return errMissingSource
			}

			log.Info().Str("source", source).Msg("fetching products")
			items, err := loadProductSeeds(cmd.Context(), source)
			if err != nil {
				return err
			}
			log.Info().Int("count", len(items)).Msg("fetched products")

			gormDB, err := connect(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(gormDB) }()

			productService := service.NewProductService(repository.NewProductRepository(gormDB), log)
			created, skipped, err := seedProducts(cmd.Context(), productService, items, log)
			if err != nil {
				return err
			}
			log.Info().Int("created", created).Int("skipped", skipped).Msg("seed completed")
			return nil
		},
	}
	cobraflags.RegisterMap(cmd, productFlags)
	return cmd
}

// connect opens the configured database and brings its schema up to date.
func connect(cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	gormDB, err := db.Open(cfg.DB, log)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gormDB); err != nil {
		_ = db.Close(gormDB)
		return nil, err
	}
	if err := db.Ping(context.Background(), gormDB); err != nil {
		_ = db.Close(gormDB)
		return nil, err
	}
	return gormDB, nil
}
