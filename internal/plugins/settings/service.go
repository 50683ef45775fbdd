package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
)

// SettingsService exposes the live security policy.
type SettingsService interface {
	// SecuritySettings returns the current policy. It never fails: if the
	// settings table cannot be read the configured defaults are returned and
	// the fault is logged.
	SecuritySettings(ctx context.Context) SecuritySettings

	// UpdateSecuritySettings validates and persists a new policy.
	UpdateSecuritySettings(ctx context.Context, req UpdateSecurityRequest) (*SecuritySettings, error)
}

// settingsService implements SettingsService.
type settingsService struct {
	repo     SettingsRepository
	defaults SecuritySettings
}

// NewSettingsService creates a new settings service. defaults fill in any
// key that is missing or unparseable in the table.
func NewSettingsService(repo SettingsRepository, defaults SecuritySettings) SettingsService {
	return &settingsService{repo: repo, defaults: defaults}
}

// SecuritySettings reads the settings table and parses the security keys.
func (s *settingsService) SecuritySettings(ctx context.Context) SecuritySettings {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		slog.Warn("reading security settings failed, using defaults",
			slog.Any("error", err),
		)
		return s.defaults
	}

	return SecuritySettings{
		MaxRetry:              parsePositiveInt(all[KeyMaxRetry], s.defaults.MaxRetry),
		LockMinutes:           parsePositiveInt(all[KeyLockMinutes], s.defaults.LockMinutes),
		SessionTimeoutMinutes: parsePositiveInt(all[KeySessionTimeoutMinutes], s.defaults.SessionTimeoutMinutes),
		TwoFactorEnabled:      parseBool(all[KeyTwoFactorEnabled], s.defaults.TwoFactorEnabled),
	}
}

// UpdateSecuritySettings validates the request and persists each value as
// its own row so a partially applied update still leaves parseable values.
func (s *settingsService) UpdateSecuritySettings(ctx context.Context, req UpdateSecurityRequest) (*SecuritySettings, error) {
	if req.MaxRetry < 1 || req.MaxRetry > 100 {
		return nil, apperror.NewValidation("max retry must be between 1 and 100")
	}
	if req.LockMinutes < 1 || req.LockMinutes > 24*60 {
		return nil, apperror.NewValidation("lock minutes must be between 1 and 1440")
	}
	if req.SessionTimeoutMinutes < 1 || req.SessionTimeoutMinutes > 7*24*60 {
		return nil, apperror.NewValidation("session timeout must be between 1 and 10080 minutes")
	}

	values := map[string]string{
		KeyMaxRetry:              strconv.Itoa(req.MaxRetry),
		KeyLockMinutes:           strconv.Itoa(req.LockMinutes),
		KeySessionTimeoutMinutes: strconv.Itoa(req.SessionTimeoutMinutes),
		KeyTwoFactorEnabled:      strconv.FormatBool(req.TwoFactorEnabled),
	}
	for key, value := range values {
		if err := s.repo.Set(ctx, key, value); err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("persisting %s: %w", key, err))
		}
	}

	slog.Info("security settings updated",
		slog.Int("max_retry", req.MaxRetry),
		slog.Int("lock_minutes", req.LockMinutes),
		slog.Int("session_timeout_minutes", req.SessionTimeoutMinutes),
		slog.Bool("two_factor_enabled", req.TwoFactorEnabled),
	)

	return &SecuritySettings{
		MaxRetry:              req.MaxRetry,
		LockMinutes:           req.LockMinutes,
		SessionTimeoutMinutes: req.SessionTimeoutMinutes,
		TwoFactorEnabled:      req.TwoFactorEnabled,
	}, nil
}

// parsePositiveInt parses s, falling back when it is empty, malformed or < 1.
func parsePositiveInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func parseBool(s string, fallback bool) bool {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return v
}
