// Package apperror provides domain-specific error types for Wayfarer.
// These errors carry an HTTP status code, a stable machine-readable type and
// a user-safe message. The Echo error handler maps them to JSON responses.
//
// NEVER return raw database or Redis errors to the client. Always wrap them
// in an apperror type or return a generic internal error.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error types returned to clients. Mobile and admin clients switch on
// these strings, so they must not change once released.
const (
	TypeInvalidCredentials = "invalid_credentials"
	TypeAccountLocked      = "account_locked"
	TypeChallengeInvalid   = "challenge_expired_or_invalid"
	TypeCodeInvalid        = "code_invalid"
	TypeTokenInvalid       = "token_invalid"
	TypeTokenExpired       = "token_expired"
	TypeUnauthorized       = "unauthorized"
)

// AppError is the base error type for all domain errors. It carries an
// HTTP status code, a machine-readable error type, and a human-readable
// message safe to show to the client.
type AppError struct {
	// Code is the HTTP status code (e.g., 404, 400, 500).
	Code int `json:"-"`

	// Type is a machine-readable error classifier (e.g., "account_locked").
	Type string `json:"type"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// Details carries actionable extra fields such as remaining lockout
	// seconds or remaining attempts. Merged into the JSON response body.
	Details map[string]any `json:"details,omitempty"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// WithDetail attaches a client-visible detail field and returns the error.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithInternal attaches an underlying cause for logging and returns the error.
func (e *AppError) WithInternal(err error) *AppError {
	e.Internal = err
	return e
}

// IsType reports whether err is an AppError of the given type.
func IsType(err error, errType string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// --- Constructors for common error types ---

// NewNotFound creates a 404 Not Found error.
func NewNotFound(message string) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Type:    "not_found",
		Message: message,
	}
}

// NewBadRequest creates a 400 Bad Request error.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Type:    "bad_request",
		Message: message,
	}
}

// NewUnauthorized creates a 401 error for requests without a usable session.
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeUnauthorized,
		Message: message,
	}
}

// NewForbidden creates a 403 Forbidden error.
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    "forbidden",
		Message: message,
	}
}

// NewConflict creates a 409 Conflict error.
func NewConflict(message string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    "conflict",
		Message: message,
	}
}

// NewTooManyRequests creates a 429 error for rate-limited clients.
func NewTooManyRequests(message string) *AppError {
	return &AppError{
		Code:    http.StatusTooManyRequests,
		Type:    "rate_limited",
		Message: message,
	}
}

// --- Session security errors ---

// NewInvalidCredentials is returned for any bad username/password pair. The
// message is identical whether or not the username exists.
func NewInvalidCredentials() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeInvalidCredentials,
		Message: "invalid username or password",
	}
}

// NewAccountLocked reports a temporarily locked account together with the
// number of seconds until the lock lapses.
func NewAccountLocked(remainingSeconds int) *AppError {
	minutes := (remainingSeconds + 59) / 60
	e := &AppError{
		Code:    http.StatusLocked,
		Type:    TypeAccountLocked,
		Message: fmt.Sprintf("account is locked, try again in %d minute(s)", minutes),
	}
	return e.WithDetail("remainingSeconds", remainingSeconds)
}

// NewChallengeInvalid is returned when a two-factor temp token is unknown,
// expired, or already consumed.
func NewChallengeInvalid() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeChallengeInvalid,
		Message: "verification session expired, please log in again",
	}
}

// NewCodeInvalid is returned when a one-time code does not match.
func NewCodeInvalid() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeCodeInvalid,
		Message: "invalid verification code",
	}
}

// NewTokenInvalid is returned for malformed, tampered or wrongly typed tokens.
func NewTokenInvalid() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeTokenInvalid,
		Message: "token is invalid",
	}
}

// NewTokenExpired is returned for correctly signed tokens past their expiry.
func NewTokenExpired() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeTokenExpired,
		Message: "token has expired",
	}
}

// errMissingContext is the shared internal error for nil precondition checks.
var errMissingContext = errors.New("missing required context")

// NewMissingContext creates a 500 error for handler nil-context guards
// (e.g. claims not set because the auth middleware was not applied).
func NewMissingContext() *AppError {
	return NewInternal(errMissingContext)
}

// NewInternal creates a 500 Internal Server Error. The real error is stored
// in Internal for logging but the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     "internal_error",
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// SafeMessage returns the client-safe error message from an error. If the
// error is an AppError, returns its Message field (which is safe to expose).
// For any other error type, returns a generic message.
func SafeMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the HTTP status code from an AppError, or 500 for
// any other error type.
func SafeCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// NewValidation creates a 422 Unprocessable Entity error for validation failures.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Type:    "validation_error",
		Message: message,
	}
}
