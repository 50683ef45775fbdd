// Package blacklist records bearer tokens that must no longer be honored.
// Entries live in Redis so a logout on one instance is visible to every
// instance on its next request, and each entry expires once the token could
// no longer be renewed, so the set never grows beyond the live tokens.
package blacklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix is the Redis key prefix for revoked tokens.
const keyPrefix = "jwt:blacklist:"

// RenewalGrace is how long past exp a correctly signed token can still be
// exchanged for a new one. Revocation entries outlive exp by the same amount.
const RenewalGrace = 60 * time.Second

// entryMargin keeps an entry alive past the grace deadline, where the gate's
// inclusive boundary still renews.
const entryMargin = time.Second

// minEntryTTL floors the entry lifetime so a token revoked moments before its
// expiry stays blocked even if the verifying instance's clock lags.
const minEntryTTL = 60 * time.Second

// ErrUnreadableToken is returned when the token's exp claim cannot be decoded.
var ErrUnreadableToken = errors.New("token expiry unreadable")

// ExpiryReader decodes a token's exp claim without verifying it.
type ExpiryReader interface {
	ExpiresAt(token string) (time.Time, error)
}

// Registry defines the revocation contract.
type Registry interface {
	// Revoke blocks token until its renewal grace has lapsed. Revoking a
	// token past exp+RenewalGrace is a no-op.
	Revoke(ctx context.Context, token string) error

	// IsRevoked reports whether token has been revoked. A store error is
	// returned as-is so the caller can fail closed.
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// registry implements Registry on Redis.
type registry struct {
	redis  *redis.Client
	expiry ExpiryReader
	now    func() time.Time
}

// Option configures a registry.
type Option func(*registry)

// WithClock overrides the time source. It should match the clock tokens are
// issued and verified with.
func WithClock(now func() time.Time) Option {
	return func(r *registry) { r.now = now }
}

// NewRegistry creates a revocation registry.
func NewRegistry(rdb *redis.Client, expiry ExpiryReader, opts ...Option) Registry {
	r := &registry{
		redis:  rdb,
		expiry: expiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Revoke stores a sentinel for token until exp+RenewalGrace.
func (r *registry) Revoke(ctx context.Context, token string) error {
	exp, err := r.expiry.ExpiresAt(token)
	if err != nil {
		return ErrUnreadableToken
	}

	deadline := exp.Add(RenewalGrace)
	now := r.now()
	if now.After(deadline) {
		return nil
	}

	remaining := deadline.Sub(now) + entryMargin
	if remaining < minEntryTTL {
		remaining = minEntryTTL
	}

	if err := r.redis.Set(ctx, keyPrefix+token, "1", remaining).Err(); err != nil {
		return fmt.Errorf("writing revocation entry: %w", err)
	}

	slog.Debug("token revoked", slog.Duration("ttl", remaining))
	return nil
}

// IsRevoked checks for the sentinel.
func (r *registry) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.redis.Exists(ctx, keyPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("checking revocation entry: %w", err)
	}
	return n > 0, nil
}
