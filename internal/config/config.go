// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL of the admin console, used for CORS.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// SentryDSN enables error reporting when non-empty.
	SentryDSN string

	// MigrationsPath is the directory holding SQL migration files.
	MigrationsPath string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Auth holds authentication-related settings.
	Auth AuthConfig
}

// DatabaseConfig holds MariaDB connection parameters. If DATABASE_URL is
// set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	User     string
	Password string
	Name     string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built with the driver's
// Config.FormatDSN() to safely handle special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// AuthConfig holds authentication settings. The security policy values
// (MaxRetry, LockTime, SessionTimeout, TwoFactorEnabled) are only defaults:
// the live values are read per operation from site_settings so admins can
// change them without a restart.
type AuthConfig struct {
	// SecretKey is the HMAC key used to sign bearer tokens (32+ bytes).
	SecretKey string

	// Issuer is written into the iss claim and the TOTP provisioning URI.
	Issuer string

	// MaxRetry is the default number of failed logins before a lock.
	MaxRetry int

	// LockTime is the default lock duration.
	LockTime time.Duration

	// SessionTimeout is the default bearer token lifetime for console logins.
	SessionTimeout time.Duration

	// TwoFactorEnabled is the default global second-factor switch.
	TwoFactorEnabled bool

	// AppAccessTTL and AppRefreshTTL bound the app-facing token pair.
	AppAccessTTL  time.Duration
	AppRefreshTTL time.Duration

	// LoginRateLimit is the number of login attempts allowed per IP per minute.
	LoginRateLimit int
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	// Missing .env is normal in containers; real env vars always win.
	_ = godotenv.Load()

	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnvInt("PORT", 8080),
		BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:       getEnv("LOG_LEVEL", "debug"),
		SentryDSN:      getEnv("SENTRY_DSN", ""),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "db/migrations"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "wayfarer"),
			Password:        getEnv("DB_PASSWORD", "wayfarer"),
			Name:            getEnv("DB_NAME", "wayfarer"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Auth: AuthConfig{
			SecretKey:        getEnv("SECRET_KEY", ""),
			Issuer:           getEnv("AUTH_ISSUER", "Wayfarer"),
			MaxRetry:         getEnvInt("LOGIN_MAX_RETRY", 5),
			LockTime:         getEnvDuration("LOGIN_LOCK_TIME", 10*time.Minute),
			SessionTimeout:   getEnvDuration("SESSION_TIMEOUT", 30*time.Minute),
			TwoFactorEnabled: getEnvBool("TWO_FACTOR_ENABLED", false),
			AppAccessTTL:     getEnvDuration("APP_ACCESS_TTL", 7*24*time.Hour),
			AppRefreshTTL:    getEnvDuration("APP_REFRESH_TTL", 30*24*time.Hour),
			LoginRateLimit:   getEnvInt("LOGIN_RATE_LIMIT", 20),
		},
	}

	// Validate required fields in production. Case-insensitive check catches
	// common variants like "Production", "prod", etc.
	envLower := strings.ToLower(cfg.Env)
	if envLower == "production" || envLower == "prod" {
		if cfg.Auth.SecretKey == "" {
			return nil, fmt.Errorf("SECRET_KEY is required in production")
		}
		if len(cfg.Auth.SecretKey) < 32 {
			return nil, fmt.Errorf("SECRET_KEY must be at least 32 characters in production")
		}
	}

	// Provide a dev-only default secret so local dev works without .env.
	if cfg.Auth.SecretKey == "" {
		cfg.Auth.SecretKey = "dev-secret-key-do-not-use-in-production!!"
	}

	if cfg.Auth.MaxRetry < 1 {
		return nil, fmt.Errorf("LOGIN_MAX_RETRY must be at least 1")
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool reads a boolean env var ("true", "1", ...) or returns the default.
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "30m") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
