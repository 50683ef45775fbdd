// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// Echo instance) and wires together the session security plugins.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
	"github.com/keyxmakerx/wayfarer/internal/config"
	"github.com/keyxmakerx/wayfarer/internal/middleware"
	"github.com/keyxmakerx/wayfarer/internal/plugins/auth"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool shared by all plugins.
	DB *sql.DB

	// Redis is the shared state store: lockout counters, challenges,
	// revocations, online sessions and rate limits.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// Configure trusted reverse proxy IPs so c.RealIP() returns the actual
	// client IP instead of the proxy's IP. The login rate limiter and the
	// online session list depend on it.
	middleware.TrustedProxies(e, []string{
		"127.0.0.0/8",    // Localhost
		"10.0.0.0/8",     // Docker default bridge
		"172.16.0.0/12",  // Docker bridge (alternate range)
		"192.168.0.0/16", // Common LAN
		"fd00::/8",       // IPv6 private
	})

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Echo:   e,
	}

	// Register global middleware in order of execution.
	app.setupMiddleware()

	// Register the custom error handler that maps AppErrors to HTTP responses.
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	// Request logging -- method, path, status, latency, plus the signed-in
	// user and whether the token was renewed.
	a.Echo.Use(middleware.RequestLogger(middleware.LoggerConfig{
		UserID:        auth.GetUserID,
		RenewedHeader: auth.RenewedTokenHeader,
	}))

	// Security headers -- CSP, X-Frame-Options, no-store, etc.
	a.Echo.Use(middleware.SecurityHeaders())

	// CORS -- the admin console calls the API from its own origin and must
	// be able to read renewed tokens.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: []string{a.Config.BaseURL},
		ExposeHeaders:  []string{auth.RenewedTokenHeader},
	}))
}

// errorHandler is the custom Echo error handler. Every error becomes JSON:
// {"error": <type>, "message": <msg>, ...details}. Unexpected 5xx errors are
// logged and reported to Sentry.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	errType := "internal_error"
	message := defaultErrorMessage(code)
	var details map[string]any

	// Check if it's our domain error type.
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		errType = appErr.Type
		message = appErr.Message
		details = appErr.Details

		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	} else {
		// Check for Echo's built-in HTTP errors (e.g., 404 from router).
		var echoErr *echo.HTTPError
		if errors.As(err, &echoErr) {
			code = echoErr.Code
			errType = errorTypeForStatus(code)
			if msg, ok := echoErr.Message.(string); ok {
				message = msg
			} else {
				message = defaultErrorMessage(code)
			}
		} else {
			// Truly unexpected error -- log it.
			slog.Error("unhandled error",
				slog.Any("error", err),
				slog.String("path", c.Request().URL.Path),
			)
		}
	}

	if code >= http.StatusInternalServerError {
		reportError(c, err)
	}

	body := make(map[string]any, len(details)+2)
	for k, v := range details {
		body[k] = v
	}
	body["error"] = errType
	body["message"] = message

	if err := c.JSON(code, body); err != nil {
		slog.Warn("writing error response failed", slog.Any("error", err))
	}
}

// reportError sends a server error to Sentry. A no-op when Sentry is not
// initialised.
func reportError(c echo.Context, err error) {
	hub := sentry.CurrentHub()
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("method", c.Request().Method)
		scope.SetTag("path", c.Path())
		if userID := auth.GetUserID(c); userID != "" {
			scope.SetUser(sentry.User{ID: userID})
		}
		hub.CaptureException(err)
	})
}

// errorTypeForStatus gives router-level errors a machine type.
func errorTypeForStatus(code int) string {
	switch code {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusUnauthorized:
		return apperror.TypeUnauthorized
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	default:
		if code >= http.StatusInternalServerError {
			return "internal_error"
		}
		return "error"
	}
}

// defaultErrorMessage returns a user-friendly message for common HTTP status codes
// when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusUnauthorized:
		return "Authentication is required."
	case http.StatusForbidden:
		return "You don't have permission to access this resource."
	case http.StatusNotFound:
		return "The requested resource does not exist."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusTooManyRequests:
		return "You're making too many requests. Please slow down."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Wayfarer server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
