package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"license-server/config"
	"license-server/internal/api"
	"license-server/internal/auth"
	"license-server/internal/cache"
	"license-server/internal/database"
	"license-server/internal/license"
	"license-server/internal/logging"
	"license-server/internal/vault"
)

func main() {
	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log := logging.Component("main")
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.Setup(cfg.LoggingConfig)
	logger.Info().Msg("structured logging initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(cfg.VaultConfig)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create vault client")
		}
		secrets, err := vaultClient.LoadSecrets(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load secrets from vault")
		}
		if secrets.JWTSecret != "" {
			cfg.AuthConfig.JWTSecret = secrets.JWTSecret
		}
		if secrets.DatabasePassword != "" {
			cfg.DatabaseConfig.Password = secrets.DatabasePassword
		}
		logger.Info().Msg("secrets loaded from vault")
	}

	if cfg.AuthConfig.JWTSecret == "" {
		logger.Fatal().Msg("no JWT secret configured")
	}

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	repo := database.NewRepository(db)

	var sessions cache.SessionStore
	if cfg.RedisConfig.Enabled {
		sessions, err = cache.NewRedisSessionStore(cfg.RedisConfig)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
	} else {
		sessions = cache.NewMemorySessionStore()
		logger.Info().Msg("redis disabled, using in-memory session store")
	}
	defer sessions.Close()

	if cfg.AuthConfig.AdminPassword != "" {
		if err := auth.SeedAdminUser(ctx, repo, cfg.AuthConfig.AdminUsername, cfg.AuthConfig.AdminPassword); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed admin user")
		}
	}

	authService := auth.NewService(repo, sessions, auth.Config{
		JWTSecret:            cfg.AuthConfig.JWTSecret,
		AccessTokenDuration:  cfg.AuthConfig.AccessTokenDuration,
		RefreshTokenDuration: cfg.AuthConfig.RefreshTokenDuration,
		BcryptCost:           cfg.AuthConfig.BcryptCost,
	})

	licenseService := license.NewService(repo)

	server := api.NewServer(cfg, repo, licenseService, authService)
	if err := server.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}

	logger.Info().Msg("shutdown complete")
	_ = os.Stdout.Sync()
}
