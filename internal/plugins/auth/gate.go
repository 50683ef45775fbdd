package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
	"github.com/keyxmakerx/wayfarer/internal/plugins/blacklist"
	"github.com/keyxmakerx/wayfarer/internal/plugins/settings"
	"github.com/keyxmakerx/wayfarer/internal/plugins/tokens"
)

// graceWindow is how long after exp a correctly signed token is still
// accepted and replaced. Revocation entries last exactly as long.
const graceWindow = blacklist.RenewalGrace

// slidingFraction: a token with less than timeout/slidingFraction remaining
// is renewed on use.
const slidingFraction = 6

// Outcome is the gate's verdict for one request.
type Outcome int

const (
	Rejected Outcome = iota
	Accepted
	RenewedViaGrace
	RenewedViaSliding
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case RenewedViaGrace:
		return "renewed_via_grace"
	case RenewedViaSliding:
		return "renewed_via_sliding"
	default:
		return "rejected"
	}
}

// Decision is the result of Gate.Check. At most one renewed token is carried.
type Decision struct {
	Outcome Outcome

	// Claims of the presented token. Nil when rejected.
	Claims *tokens.Claims

	// RenewedToken is set for RenewedViaGrace and RenewedViaSliding.
	RenewedToken  string
	RenewedClaims *tokens.Claims

	// Err is the client-facing error when rejected.
	Err error
}

// Renewed reports whether the decision carries a replacement token.
func (d Decision) Renewed() bool {
	return d.RenewedToken != ""
}

func reject(err error) Decision {
	return Decision{Outcome: Rejected, Err: err}
}

// PolicySource supplies the live session timeout.
type PolicySource interface {
	SecuritySettings(ctx context.Context) settings.SecuritySettings
}

// Gate is the per-request authorization checkpoint.
type Gate struct {
	tokens    tokens.TokenService
	blacklist blacklist.Registry
	policy    PolicySource
	now       func() time.Time
}

// NewGate creates a session gate.
func NewGate(ts tokens.TokenService, bl blacklist.Registry, policy PolicySource) *Gate {
	return &Gate{
		tokens:    ts,
		blacklist: bl,
		policy:    policy,
		now:       time.Now,
	}
}

// Check decides whether token authenticates the request.
func (g *Gate) Check(ctx context.Context, token string) Decision {
	if token == "" {
		return reject(apperror.NewUnauthorized("authentication required"))
	}

	// A store outage must not let a possibly revoked token through.
	revoked, err := g.blacklist.IsRevoked(ctx, token)
	if err != nil {
		slog.Error("revocation check failed, rejecting request",
			slog.String("security", "revocation"),
			slog.Any("error", err),
		)
		return reject(apperror.NewUnauthorized("session could not be verified").WithInternal(err))
	}
	if revoked {
		return reject(apperror.NewUnauthorized("session has been revoked"))
	}

	claims, err := g.tokens.Verify(token, tokens.VerifyOptions{})
	inGrace := false
	switch {
	case err == nil:
	case errors.Is(err, tokens.ErrExpired):
		if g.now().Sub(claims.ExpiresAtTime()) > graceWindow {
			return reject(apperror.NewTokenExpired())
		}
		// Re-check the signature with expiry ignored before trusting it.
		claims, err = g.tokens.Verify(token, tokens.VerifyOptions{IgnoreExpiration: true})
		if err != nil {
			return reject(apperror.NewTokenInvalid())
		}
		inGrace = true
	default:
		return reject(apperror.NewTokenInvalid())
	}

	// Refresh tokens only work at the refresh endpoint.
	if claims.Type != tokens.TypeAccess {
		return reject(apperror.NewTokenInvalid())
	}

	timeout := g.policy.SecuritySettings(ctx).SessionTimeout()
	sub := tokens.Subject{UserID: claims.UserID(), Username: claims.Username}

	if inGrace {
		renewed, renewedClaims, err := g.tokens.Issue(sub, tokens.TypeAccess, timeout)
		if err != nil {
			return reject(apperror.NewInternal(err))
		}
		return Decision{
			Outcome:       RenewedViaGrace,
			Claims:        claims,
			RenewedToken:  renewed,
			RenewedClaims: renewedClaims,
		}
	}

	remaining := claims.ExpiresAtTime().Sub(g.now())
	if remaining >= timeout/slidingFraction {
		return Decision{Outcome: Accepted, Claims: claims}
	}

	renewed, renewedClaims, err := g.tokens.Issue(sub, tokens.TypeAccess, timeout)
	if err != nil {
		// The presented token is still valid; renewal can wait for the next request.
		slog.Warn("sliding renewal failed",
			slog.String("user_id", sub.UserID),
			slog.Any("error", err),
		)
		return Decision{Outcome: Accepted, Claims: claims}
	}
	return Decision{
		Outcome:       RenewedViaSliding,
		Claims:        claims,
		RenewedToken:  renewed,
		RenewedClaims: renewedClaims,
	}
}
