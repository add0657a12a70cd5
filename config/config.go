package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the top-level service configuration, loaded from an optional
// JSON file and overridden by environment variables.
type Config struct {
	ServerConfig   ServerConfig   `json:"server"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
	VaultConfig    VaultConfig    `json:"vault"`
	AuthConfig     AuthConfig     `json:"auth"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	LicenseConfig  LicenseConfig  `json:"license"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ProductionMode bool   `json:"production_mode"`
	AllowedOrigins string `json:"allowed_origins"` // comma-separated, "*" in development
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis settings for the session store
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault settings for secret retrieval
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTSecret             string        `json:"jwt_secret"`
	AccessTokenDuration   time.Duration `json:"-"`
	RefreshTokenDuration  time.Duration `json:"-"`
	AccessTokenMinutes    int           `json:"access_token_minutes"`
	RefreshTokenHours     int           `json:"refresh_token_hours"`
	BcryptCost            int           `json:"bcrypt_cost"`
	AdminUsername         string        `json:"admin_username"`
	AdminPassword         string        `json:"admin_password"`
}

// LoggingConfig holds structured logging settings
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // console writer when false
}

// LicenseConfig holds license engine settings
type LicenseConfig struct {
	ActivationRatePerMinute int `json:"activation_rate_per_minute"` // per-IP limit on the public activation endpoint
	ActivationBurst         int `json:"activation_burst"`
	MaxBulkBatchSize        int `json:"max_bulk_batch_size"`
	DefaultPageSize         int `json:"default_page_size"`
	MaxPageSize             int `json:"max_page_size"`
}

// Load reads the configuration file (CONFIG_FILE or config.json) if present,
// applies defaults, then applies environment variable overrides.
func Load() (*Config, error) {
	cfg := defaultConfig()

	path := getEnv("CONFIG_FILE", "config.json")
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	cfg.AuthConfig.AccessTokenDuration = time.Duration(cfg.AuthConfig.AccessTokenMinutes) * time.Minute
	cfg.AuthConfig.RefreshTokenDuration = time.Duration(cfg.AuthConfig.RefreshTokenHours) * time.Hour

	if cfg.AuthConfig.JWTSecret == "" && !cfg.VaultConfig.Enabled {
		return nil, fmt.Errorf("JWT_SECRET must be set when Vault is disabled")
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		ServerConfig: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: "*",
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "licenses",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		VaultConfig: VaultConfig{
			SecretPath: "secret/data/license-server",
		},
		AuthConfig: AuthConfig{
			AccessTokenMinutes: 15,
			RefreshTokenHours:  24 * 7,
			BcryptCost:         12,
			AdminUsername:      "admin",
		},
		LoggingConfig: LoggingConfig{
			Level:      "info",
			JSONFormat: true,
		},
		LicenseConfig: LicenseConfig{
			ActivationRatePerMinute: 30,
			ActivationBurst:         10,
			MaxBulkBatchSize:        500,
			DefaultPageSize:         20,
			MaxPageSize:             100,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.ServerConfig.Host = getEnv("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvInt("SERVER_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.ProductionMode = getEnvBool("PRODUCTION_MODE", cfg.ServerConfig.ProductionMode)
	cfg.ServerConfig.AllowedOrigins = getEnv("ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	cfg.DatabaseConfig.Host = getEnv("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvInt("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnv("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnv("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnv("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnv("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	cfg.RedisConfig.Enabled = getEnvBool("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnv("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnv("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvInt("REDIS_DB", cfg.RedisConfig.DB)

	cfg.VaultConfig.Enabled = getEnvBool("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnv("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnv("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.SecretPath = getEnv("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	cfg.AuthConfig.JWTSecret = getEnv("JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AdminUsername = getEnv("ADMIN_USERNAME", cfg.AuthConfig.AdminUsername)
	cfg.AuthConfig.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.AuthConfig.AdminPassword)

	cfg.LoggingConfig.Level = getEnv("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.JSONFormat = getEnvBool("LOG_JSON", cfg.LoggingConfig.JSONFormat)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
