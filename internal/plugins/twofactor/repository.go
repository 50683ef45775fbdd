package twofactor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
)

// SecretRepository reads and writes a user's TOTP secret.
type SecretRepository interface {
	// FindSecret returns the stored secret and whether 2FA is enabled.
	// Returns apperror.NotFound if the user does not exist.
	FindSecret(ctx context.Context, userID string) (secret string, enabled bool, err error)

	EnableSecret(ctx context.Context, userID, secret string) error
	Disable(ctx context.Context, userID string) error
}

// secretRepository implements SecretRepository on the users table.
type secretRepository struct {
	db *sql.DB
}

// NewSecretRepository creates a secret repository backed by MariaDB.
func NewSecretRepository(db *sql.DB) SecretRepository {
	return &secretRepository{db: db}
}

// FindSecret reads totp_secret and totp_enabled for a user.
func (r *secretRepository) FindSecret(ctx context.Context, userID string) (string, bool, error) {
	query := `SELECT totp_secret, totp_enabled FROM users WHERE id = ?`

	var secret sql.NullString
	var enabled bool
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&secret, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return "", false, fmt.Errorf("querying totp secret: %w", err)
	}
	return secret.String, enabled && secret.Valid, nil
}

// EnableSecret stores a confirmed secret and turns 2FA on.
func (r *secretRepository) EnableSecret(ctx context.Context, userID, secret string) error {
	query := `UPDATE users SET totp_secret = ?, totp_enabled = 1 WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, secret, userID); err != nil {
		return fmt.Errorf("enabling totp: %w", err)
	}
	return nil
}

// Disable clears the secret and turns 2FA off.
func (r *secretRepository) Disable(ctx context.Context, userID string) error {
	query := `UPDATE users SET totp_secret = NULL, totp_enabled = 0 WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("disabling totp: %w", err)
	}
	return nil
}
