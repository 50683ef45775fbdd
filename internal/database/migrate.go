package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"

	// File source driver for reading migration files from disk.
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// ErrDirtySchema means a previous migration failed halfway. The lockout,
// settings and event tables cannot be trusted until an operator fixes it.
var ErrDirtySchema = errors.New("database schema is dirty")

// RunMigrations applies all pending migrations from migrationsPath and
// refuses to continue on a dirty schema.
func RunMigrations(db *sql.DB, migrationsPath string) error {
	if _, err := os.Stat(migrationsPath); err != nil {
		return fmt.Errorf("migrations directory %q: %w", migrationsPath, err)
	}

	driver, err := mysql.WithInstance(db, &mysql.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "mysql", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("%w at version %d", ErrDirtySchema, version)
	}

	slog.Info("schema up to date", slog.Uint64("version", uint64(version)))
	return nil
}
