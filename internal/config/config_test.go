package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("SECRET_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.MaxRetry != 5 {
		t.Errorf("expected default max retry 5, got %d", cfg.Auth.MaxRetry)
	}
	if cfg.Auth.LockTime != 10*time.Minute {
		t.Errorf("expected default lock time 10m, got %s", cfg.Auth.LockTime)
	}
	if cfg.Auth.AppAccessTTL != 7*24*time.Hour {
		t.Errorf("expected 7d access ttl, got %s", cfg.Auth.AppAccessTTL)
	}
	if cfg.Auth.AppRefreshTTL != 30*24*time.Hour {
		t.Errorf("expected 30d refresh ttl, got %s", cfg.Auth.AppRefreshTTL)
	}
	if cfg.Auth.SecretKey == "" {
		t.Error("expected dev secret to be filled in")
	}
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENV", "Production")
	t.Setenv("SECRET_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing SECRET_KEY in production")
	}

	t.Setenv("SECRET_KEY", "too-short")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for short SECRET_KEY in production")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("LOGIN_MAX_RETRY", "3")
	t.Setenv("LOGIN_LOCK_TIME", "15m")
	t.Setenv("TWO_FACTOR_ENABLED", "true")
	t.Setenv("SESSION_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.MaxRetry != 3 {
		t.Errorf("expected max retry 3, got %d", cfg.Auth.MaxRetry)
	}
	if cfg.Auth.LockTime != 15*time.Minute {
		t.Errorf("expected lock time 15m, got %s", cfg.Auth.LockTime)
	}
	if !cfg.Auth.TwoFactorEnabled {
		t.Error("expected two factor enabled")
	}
	if cfg.Auth.SessionTimeout != 30*time.Minute {
		t.Errorf("expected unparseable duration to fall back to 30m, got %s", cfg.Auth.SessionTimeout)
	}
}

func TestLoad_RejectsZeroRetry(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("LOGIN_MAX_RETRY", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for LOGIN_MAX_RETRY=0")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", User: "u", Password: "pass", Name: "wayfarer"}
	dsn := d.DSN()
	if dsn != "u:pass@tcp(db:3306)/wayfarer?parseTime=true" {
		t.Errorf("unexpected DSN: %s", dsn)
	}

	d.dsnOverride = "override"
	if d.DSN() != "override" {
		t.Errorf("expected override DSN, got %s", d.DSN())
	}
}
