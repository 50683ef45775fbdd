package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
)

// UserRepository defines the data access contract for credential lookups.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	UpdateLastLogin(ctx context.Context, id string) error
}

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, username, display_name, password_hash,
	                 totp_enabled, is_disabled, created_at, last_login_at`

// FindByUsername retrieves a user by username. The column collation makes
// the match case-insensitive.
// Returns apperror.NotFound if no user exists with this username.
func (r *userRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, fmt.Errorf("querying user by username: %w", err)
	}
	return user, nil
}

// FindByID retrieves a user by their UUID.
// Returns apperror.NotFound if no user exists with this ID.
func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return user, nil
}

// UpdateLastLogin stamps last_login_at with the current time.
func (r *userRepository) UpdateLastLogin(ctx context.Context, id string) error {
	query := `UPDATE users SET last_login_at = UTC_TIMESTAMP() WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.PasswordHash,
		&user.TOTPEnabled,
		&user.IsDisabled,
		&user.CreatedAt,
		&user.LastLoginAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
