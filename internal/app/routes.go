package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/wayfarer/internal/middleware"
	"github.com/keyxmakerx/wayfarer/internal/plugins/auth"
	"github.com/keyxmakerx/wayfarer/internal/plugins/blacklist"
	"github.com/keyxmakerx/wayfarer/internal/plugins/lockout"
	"github.com/keyxmakerx/wayfarer/internal/plugins/online"
	"github.com/keyxmakerx/wayfarer/internal/plugins/secevents"
	"github.com/keyxmakerx/wayfarer/internal/plugins/settings"
	"github.com/keyxmakerx/wayfarer/internal/plugins/tokens"
	"github.com/keyxmakerx/wayfarer/internal/plugins/twofactor"
)

// healthTimeout bounds each dependency ping in /healthz.
const healthTimeout = 2 * time.Second

// RegisterRoutes wires the plugins and sets up all application routes.
//
// This is the single place where all routes are aggregated. When a new
// plugin is added, its routes are registered here.
func (a *App) RegisterRoutes() {
	e := a.Echo
	authCfg := a.Config.Auth

	// --- Public Routes (no auth required) ---

	// Health check endpoint for container health monitoring.
	e.GET("/healthz", a.healthz)

	// --- Plugin Wiring ---

	settingsService := settings.NewSettingsService(
		settings.NewSettingsRepository(a.DB),
		settings.SecuritySettings{
			MaxRetry:              authCfg.MaxRetry,
			LockMinutes:           int(authCfg.LockTime / time.Minute),
			SessionTimeoutMinutes: int(authCfg.SessionTimeout / time.Minute),
			TwoFactorEnabled:      authCfg.TwoFactorEnabled,
		},
	)

	tokenService := tokens.NewTokenService(tokens.Config{
		Secret:     []byte(authCfg.SecretKey),
		Issuer:     authCfg.Issuer,
		AccessTTL:  authCfg.AppAccessTTL,
		RefreshTTL: authCfg.AppRefreshTTL,
	})
	revocations := blacklist.NewRegistry(a.Redis, tokenService)
	lockoutService := lockout.NewLockoutService(a.Redis, settingsService)
	twoFactorService := twofactor.NewTwoFactorService(a.Redis, twofactor.NewSecretRepository(a.DB), authCfg.Issuer)
	onlineRegistry := online.NewOnlineRegistry(a.Redis, revocations)
	eventService := secevents.NewSecurityEventService(secevents.NewEventRepository(a.DB))

	authService := auth.NewAuthService(auth.Deps{
		Users:     auth.NewUserRepository(a.DB),
		Tokens:    tokenService,
		Blacklist: revocations,
		Lockout:   lockoutService,
		TwoFactor: twoFactorService,
		Online:    onlineRegistry,
		Settings:  settingsService,
		Events:    eventService,
	})
	gate := auth.NewGate(tokenService, revocations, settingsService)

	// --- Plugin Routes ---

	// Authenticated route group -- all routes below pass the session gate.
	authed := e.Group("", auth.RequireAuth(gate, onlineRegistry))

	loginLimit := middleware.RateLimit(a.Redis, "login", authCfg.LoginRateLimit, time.Minute)
	auth.RegisterRoutes(e, authed, auth.NewHandler(authService), loginLimit)
	twofactor.RegisterRoutes(authed, twofactor.NewHandler(twoFactorService, auth.GetIdentity))
	lockout.RegisterRoutes(authed, lockout.NewHandler(lockoutService))
	online.RegisterRoutes(authed, online.NewHandler(onlineRegistry))
	settings.RegisterRoutes(authed, settings.NewHandler(settingsService))
	secevents.RegisterRoutes(authed, secevents.NewHandler(eventService))
}

// healthz pings MariaDB and Redis. Returns 503 if either is unreachable.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	status := map[string]string{"database": "ok", "redis": "ok"}
	healthy := true

	if err := a.DB.PingContext(ctx); err != nil {
		status["database"] = "unreachable"
		healthy = false
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		status["redis"] = "unreachable"
		healthy = false
	}

	if !healthy {
		status["status"] = "degraded"
		return c.JSON(http.StatusServiceUnavailable, status)
	}
	status["status"] = "ok"
	return c.JSON(http.StatusOK, status)
}
