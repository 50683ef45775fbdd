package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
	"github.com/keyxmakerx/wayfarer/internal/plugins/blacklist"
	"github.com/keyxmakerx/wayfarer/internal/plugins/lockout"
	"github.com/keyxmakerx/wayfarer/internal/plugins/online"
	"github.com/keyxmakerx/wayfarer/internal/plugins/secevents"
	"github.com/keyxmakerx/wayfarer/internal/plugins/settings"
	"github.com/keyxmakerx/wayfarer/internal/plugins/tokens"
	"github.com/keyxmakerx/wayfarer/internal/plugins/twofactor"
)

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the repository directly.
type AuthService interface {
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)
	VerifyTwoFactor(ctx context.Context, challenge, code string, client ClientInfo) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
	RefreshApp(ctx context.Context, refreshToken string) (*tokens.TokenPair, error)
	GetUser(ctx context.Context, id string) (*User, error)
}

// Deps groups the collaborators of the auth service.
type Deps struct {
	Users     UserRepository
	Tokens    tokens.TokenService
	Blacklist blacklist.Registry
	Lockout   lockout.LockoutService
	TwoFactor twofactor.TwoFactorService
	Online    online.OnlineRegistry
	Settings  PolicySource

	// Events receives login outcomes. Optional.
	Events secevents.Recorder
}

// authService implements AuthService.
type authService struct {
	repo      UserRepository
	tokens    tokens.TokenService
	blacklist blacklist.Registry
	lockout   lockout.LockoutService
	twofactor twofactor.TwoFactorService
	online    online.OnlineRegistry
	settings  PolicySource
	events    secevents.Recorder
	now       func() time.Time
}

// NewAuthService creates a new auth service with the given dependencies.
func NewAuthService(d Deps) AuthService {
	events := d.Events
	if events == nil {
		events = secevents.Nop{}
	}
	return &authService{
		repo:      d.Users,
		tokens:    d.Tokens,
		blacklist: d.Blacklist,
		lockout:   d.Lockout,
		twofactor: d.TwoFactor,
		online:    d.Online,
		settings:  d.Settings,
		events:    events,
		now:       time.Now,
	}
}

// Login authenticates a username and password. It returns either a final
// token or a second-factor challenge.
func (s *authService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	// Lockout keys are case-folded to match the case-insensitive username
	// column, so "Alice" and "alice" share one counter.
	username := strings.ToLower(strings.TrimSpace(input.Username))
	policy := s.settings.SecuritySettings(ctx)

	if err := s.checkLocked(ctx, username, policy); err != nil {
		s.record(ctx, secevents.EventLoginFailed, "", username, input.Client, map[string]any{"reason": "locked"})
		return nil, err
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if !isNotFound(err) {
			return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
		}
		verifyPassword(input.Password, dummyHash())
		return nil, s.recordFailure(ctx, "", username, "credentials", policy, input.Client)
	}

	if !verifyPassword(input.Password, user.PasswordHash) {
		return nil, s.recordFailure(ctx, user.ID, username, "credentials", policy, input.Client)
	}

	if user.IsDisabled {
		slog.Warn("login attempt on disabled account",
			slog.String("security", "auth"),
			slog.String("user_id", user.ID),
		)
		// Counted like a wrong password so the response and the remaining
		// attempts cannot tell the two apart.
		return nil, s.recordFailure(ctx, user.ID, username, "disabled", policy, input.Client)
	}

	// Only the counter is cleared. A lock that is already in place runs its
	// full course even after a correct password.
	if err := s.lockout.ClearFailure(ctx, username); err != nil {
		slog.Warn("clearing failure counter failed",
			slog.String("security", "lockout"),
			slog.String("username", username),
			slog.Any("error", err),
		)
	}

	if policy.TwoFactorEnabled && user.TOTPEnabled {
		challenge, err := s.twofactor.IssueChallenge(ctx, user.ID, user.Username)
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("issuing 2fa challenge: %w", err))
		}
		slog.Info("login awaiting second factor", slog.String("user_id", user.ID))
		s.record(ctx, secevents.EventChallengeIssued, user.ID, user.Username, input.Client, nil)
		return &LoginResult{RequireTwoFactor: true, TempToken: challenge}, nil
	}

	return s.finalize(ctx, tokens.Subject{UserID: user.ID, Username: user.Username}, policy, input.Client)
}

// VerifyTwoFactor consumes a challenge and, if the code is valid, finishes
// the login.
func (s *authService) VerifyTwoFactor(ctx context.Context, challenge, code string, client ClientInfo) (*LoginResult, error) {
	ident, err := s.twofactor.Verify(ctx, challenge, code)
	if err != nil {
		if apperror.IsType(err, apperror.TypeCodeInvalid) {
			s.record(ctx, secevents.EventTwoFactorFailed, "", "", client, nil)
		}
		return nil, err
	}

	policy := s.settings.SecuritySettings(ctx)

	// The account may have been locked while the challenge was pending.
	if err := s.checkLocked(ctx, strings.ToLower(ident.Username), policy); err != nil {
		return nil, err
	}

	return s.finalize(ctx, tokens.Subject{UserID: ident.UserID, Username: ident.Username}, policy, client)
}

// Logout revokes token and drops it from the online registry.
func (s *authService) Logout(ctx context.Context, token string) error {
	if err := s.blacklist.Revoke(ctx, token); err != nil {
		if errors.Is(err, blacklist.ErrUnreadableToken) {
			return apperror.NewTokenInvalid()
		}
		return apperror.NewInternal(fmt.Errorf("revoking token: %w", err))
	}

	if err := s.online.Remove(ctx, token); err != nil {
		slog.Warn("removing online entry failed", slog.Any("error", err))
	}
	return nil
}

// RefreshApp exchanges a refresh token for a new access/refresh pair. The
// presented refresh token is revoked so it cannot be exchanged twice.
func (s *authService) RefreshApp(ctx context.Context, refreshToken string) (*tokens.TokenPair, error) {
	if refreshToken == "" {
		return nil, apperror.NewUnauthorized("refresh token required")
	}

	revoked, err := s.blacklist.IsRevoked(ctx, refreshToken)
	if err != nil {
		slog.Error("revocation check failed, rejecting refresh",
			slog.String("security", "revocation"),
			slog.Any("error", err),
		)
		return nil, apperror.NewUnauthorized("session could not be verified").WithInternal(err)
	}
	if revoked {
		return nil, apperror.NewUnauthorized("session has been revoked")
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if errors.Is(err, tokens.ErrExpired) {
		return nil, apperror.NewTokenExpired()
	}
	if err != nil {
		return nil, apperror.NewTokenInvalid()
	}

	user, err := s.repo.FindByID(ctx, claims.UserID())
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NewTokenInvalid()
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	if user.IsDisabled {
		return nil, apperror.NewTokenInvalid()
	}

	if err := s.blacklist.Revoke(ctx, refreshToken); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("revoking used refresh token: %w", err))
	}

	pair, err := s.tokens.IssuePair(tokens.Subject{UserID: user.ID, Username: user.Username})
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return pair, nil
}

// GetUser returns the user record for the signed-in subject.
func (s *authService) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NewNotFound("user not found")
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	return user, nil
}

// checkLocked returns AccountLocked if a lock record exists. A store error
// lets the login proceed without lockout enforcement.
func (s *authService) checkLocked(ctx context.Context, username string, policy settings.SecuritySettings) error {
	locked, err := s.lockout.IsLocked(ctx, username)
	if err != nil {
		slog.Warn("lockout store unavailable, lock not enforced",
			slog.String("security", "lockout"),
			slog.String("username", username),
			slog.Any("error", err),
		)
		return nil
	}
	if !locked {
		return nil
	}

	remaining, err := s.lockout.LockRemainingSeconds(ctx, username)
	if err != nil || remaining == 0 {
		remaining = policy.LockMinutes * 60
	}
	return apperror.NewAccountLocked(remaining)
}

// recordFailure counts a failed attempt and builds the client error.
func (s *authService) recordFailure(ctx context.Context, userID, username, reason string, policy settings.SecuritySettings, client ClientInfo) error {
	s.record(ctx, secevents.EventLoginFailed, userID, username, client, map[string]any{"reason": reason})

	res, err := s.lockout.RecordFailure(ctx, username)
	if err != nil {
		slog.Warn("recording login failure failed, lock not enforced",
			slog.String("security", "lockout"),
			slog.String("username", username),
			slog.Any("error", err),
		)
		return apperror.NewInvalidCredentials()
	}

	if res.Locked {
		s.record(ctx, secevents.EventAccountLocked, userID, username, client, map[string]any{"failCount": res.FailCount})
		remaining, err := s.lockout.LockRemainingSeconds(ctx, username)
		if err != nil || remaining == 0 {
			remaining = policy.LockMinutes * 60
		}
		return apperror.NewAccountLocked(remaining)
	}
	return apperror.NewInvalidCredentials().WithDetail("remainingAttempts", res.RemainingAttempts)
}

// finalize mints the console token and records the session.
func (s *authService) finalize(ctx context.Context, sub tokens.Subject, policy settings.SecuritySettings, client ClientInfo) (*LoginResult, error) {
	timeout := policy.SessionTimeout()

	token, claims, err := s.tokens.Issue(sub, tokens.TypeAccess, timeout)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("issuing token: %w", err))
	}

	entry := online.NewEntry(sub.UserID, sub.Username, client.IP, client.UserAgent, s.now())
	if err := s.online.Add(ctx, token, entry, timeout); err != nil {
		slog.Warn("recording online session failed",
			slog.String("user_id", sub.UserID),
			slog.Any("error", err),
		)
	}

	if err := s.repo.UpdateLastLogin(ctx, sub.UserID); err != nil {
		slog.Warn("failed to update last login",
			slog.String("user_id", sub.UserID),
			slog.Any("error", err),
		)
	}

	slog.Info("user logged in",
		slog.String("user_id", sub.UserID),
		slog.String("username", sub.Username),
		slog.String("ip", client.IP),
	)
	s.record(ctx, secevents.EventLoginSuccess, sub.UserID, sub.Username, client, nil)

	exp := claims.ExpiresAtTime()
	return &LoginResult{Token: token, ExpiresAt: &exp}, nil
}

// record forwards an event to the security log.
func (s *authService) record(ctx context.Context, eventType, userID, username string, client ClientInfo, details map[string]any) {
	s.events.Record(ctx, secevents.Event{
		EventType: eventType,
		UserID:    userID,
		Username:  username,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
		Details:   details,
	})
}

// isNotFound reports whether err is an apperror with a 404 code.
func isNotFound(err error) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr) && appErr.Code == http.StatusNotFound
}
