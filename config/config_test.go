package config

import (
	"testing"
	"time"
)

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "missing.json")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_NAME", "licenses_test")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ServerConfig.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.ServerConfig.Port)
	}
	if cfg.DatabaseConfig.Database != "licenses_test" {
		t.Errorf("Database = %q, want licenses_test", cfg.DatabaseConfig.Database)
	}
	if cfg.LoggingConfig.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.LoggingConfig.Level)
	}

	// Untouched settings keep their defaults.
	if cfg.ServerConfig.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want 0.0.0.0", cfg.ServerConfig.Host)
	}
	if cfg.LicenseConfig.MaxBulkBatchSize != 500 {
		t.Errorf("MaxBulkBatchSize = %d, want 500", cfg.LicenseConfig.MaxBulkBatchSize)
	}
	if cfg.AuthConfig.AccessTokenDuration != 15*time.Minute {
		t.Errorf("AccessTokenDuration = %v, want 15m", cfg.AuthConfig.AccessTokenDuration)
	}
}

func TestLoadRequiresJWTSecretWithoutVault(t *testing.T) {
	t.Setenv("CONFIG_FILE", "missing.json")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("VAULT_ENABLED", "false")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when JWT secret is absent and Vault is disabled")
	}
}

func TestLoadAllowsVaultManagedSecret(t *testing.T) {
	t.Setenv("CONFIG_FILE", "missing.json")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("VAULT_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.VaultConfig.Enabled {
		t.Error("VaultConfig.Enabled = false")
	}
}
