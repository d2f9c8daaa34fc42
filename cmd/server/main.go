package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"storefront/docs"
	"storefront/internal/auth"
	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/handler"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/repository"
	"storefront/internal/router"
	"storefront/internal/service"
)

const shutdownTimeout = 10 * time.Second

// @title Storefront API
// @version 1.0
// @description Product catalog, contact leads and JWT authentication.
// @host localhost:5000
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.UsesDefaultSecret() {
		log.Warn().Msg("JWT_SECRET is not set; tokens are signed with a development key")
	}

	gormDB, err := db.Open(cfg.DB, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(gormDB) }()

	if cfg.DB.Reset {
		log.Warn().Msg("DB_RESET=true detected, dropping all tables")
		if err := db.Reset(gormDB); err != nil {
			return err
		}
	}
	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	cacheClient := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer func() { _ = cacheClient.Close() }()
	if cacheClient.Enabled() {
		if err := cacheClient.Ping(context.Background()); err != nil {
			log.Warn().Err(err).Msg("redis unreachable; logout revocation is best effort")
		}
	} else {
		log.Info().Msg("REDIS_ADDR not set; logout does not revoke tokens")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(gormDB)
	productRepo := repository.NewProductRepository(gormDB)
	leadRepo := repository.NewLeadRepository(gormDB)

	// Initialize auth components
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	var denyList auth.TokenDenyList
	if cacheClient.Enabled() {
		denyList = auth.NewTokenStore(cacheClient)
	}

	// Initialize services
	authService := service.NewAuthService(userRepo, jwtService, denyList, cfg.BcryptCost)
	productService := service.NewProductService(productRepo, log)
	leadService := service.NewLeadService(leadRepo)

	if cfg.AdminEmail != "" {
		user, created, err := authService.EnsureAdmin(context.Background(), cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			return err
		}
		log.Info().Str("email", user.Email).Bool("created", created).Msg("admin account ensured")
	}

	m := metrics.New("storefront")

	e := echo.New()
	e.HidePort = true
	e.Server.ReadTimeout = 15 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	router.Register(e, router.Deps{
		Config:         cfg,
		DB:             gormDB,
		Cache:          cacheClient,
		Logger:         log,
		Metrics:        m,
		Guard:          auth.NewGuard(jwtService, denyList),
		AuthHandler:    handler.NewAuthHandler(authService, jwtService.TTL(), m),
		ProductHandler: handler.NewProductHandler(productService),
		LeadHandler:    handler.NewLeadHandler(leadService, m),
	})

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = strings.TrimPrefix(strings.TrimPrefix(cfg.SwaggerHost, "https://"), "http://")
	}
	log.Info().Msgf("Swagger documentation available at: http://%s/swagger/index.html", docs.SwaggerInfo.Host)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.ServerPort
		log.Info().Str("addr", addr).Str("db_driver", cfg.DB.Driver).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
