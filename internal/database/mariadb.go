// Package database provides connection setup for MariaDB and Redis.
// Both connections are created once at startup and shared across the
// application via dependency injection. MariaDB holds users, security
// settings and the security event log; Redis holds every piece of
// short-lived session state.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// MariaDB driver -- imported for side effect of registering the driver.
	_ "github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/wayfarer/internal/config"
)

// retryPolicy bounds how long startup waits for a dependency.
type retryPolicy struct {
	attempts int
	initial  time.Duration
	max      time.Duration
}

// startupRetry covers container cold starts where MariaDB or Redis come up
// after the app.
var startupRetry = retryPolicy{attempts: 10, initial: time.Second, max: 30 * time.Second}

// pingTimeout bounds a single startup ping.
const pingTimeout = 5 * time.Second

// NewMariaDB opens the connection pool and waits until the server answers.
// Cancelling ctx aborts the wait.
func NewMariaDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mariadb connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := pingWithRetry(ctx, "mariadb", startupRetry, db.PingContext); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// pingWithRetry calls ping until it succeeds, backing off exponentially.
func pingWithRetry(ctx context.Context, name string, p retryPolicy, ping func(context.Context) error) error {
	backoff := p.initial
	var err error

	for attempt := 1; attempt <= p.attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == p.attempts {
			break
		}

		slog.Warn(name+" not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", p.attempts),
			slog.Duration("backoff", backoff),
			slog.Any("error", err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("waiting for %s: %w", name, ctx.Err())
		case <-timer.C:
		}
		backoff = min(backoff*2, p.max)
	}

	return fmt.Errorf("pinging %s after %d attempts: %w", name, p.attempts, err)
}
