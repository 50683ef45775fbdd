package twofactor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
)

// Redis key prefixes and lifetimes.
const (
	challengeKeyPrefix = "2fa:temp:"
	setupKeyPrefix     = "2fa:setup:"

	challengeTTL = 5 * time.Minute
	setupTTL     = 10 * time.Minute
)

// qrSize is the edge length in pixels of the setup QR code.
const qrSize = 200

// validateOpts accepts the current 30s step and one step either side.
var validateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TwoFactorService defines the second-factor contract.
type TwoFactorService interface {
	// IssueChallenge stores a pending login and returns its opaque token.
	IssueChallenge(ctx context.Context, userID, username string) (string, error)

	// Verify consumes the challenge and checks code against the user's
	// secret. The challenge is deleted before the code is checked, so it
	// can never be used twice whatever the outcome.
	Verify(ctx context.Context, challenge, code string) (*Identity, error)

	// BeginSetup generates an unconfirmed secret for the user.
	BeginSetup(ctx context.Context, userID, username string) (*SetupResult, error)

	// Enable persists the pending secret once code proves possession.
	Enable(ctx context.Context, userID, code string) error

	// Disable clears the secret after a valid code.
	Disable(ctx context.Context, userID, code string) error
}

// twoFactorService implements TwoFactorService.
type twoFactorService struct {
	redis  *redis.Client
	repo   SecretRepository
	issuer string
	now    func() time.Time
}

// NewTwoFactorService creates a two-factor service. issuer is the label shown
// in authenticator apps.
func NewTwoFactorService(rdb *redis.Client, repo SecretRepository, issuer string) TwoFactorService {
	return &twoFactorService{
		redis:  rdb,
		repo:   repo,
		issuer: issuer,
		now:    time.Now,
	}
}

// IssueChallenge writes the pending identity under a random token.
func (s *twoFactorService) IssueChallenge(ctx context.Context, userID, username string) (string, error) {
	data, err := json.Marshal(Identity{UserID: userID, Username: username})
	if err != nil {
		return "", fmt.Errorf("marshaling challenge: %w", err)
	}

	challenge := uuid.NewString()
	if err := s.redis.Set(ctx, challengeKeyPrefix+challenge, data, challengeTTL).Err(); err != nil {
		return "", fmt.Errorf("storing challenge: %w", err)
	}
	return challenge, nil
}

// Verify reads-and-deletes the challenge in one GETDEL, then validates code.
func (s *twoFactorService) Verify(ctx context.Context, challenge, code string) (*Identity, error) {
	if challenge == "" {
		return nil, apperror.NewChallengeInvalid()
	}

	data, err := s.redis.GetDel(ctx, challengeKeyPrefix+challenge).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.NewChallengeInvalid()
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("consuming challenge: %w", err))
	}

	var ident Identity
	if err := json.Unmarshal(data, &ident); err != nil {
		return nil, apperror.NewChallengeInvalid().WithInternal(err)
	}

	secret, enabled, err := s.repo.FindSecret(ctx, ident.UserID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("loading totp secret: %w", err))
	}
	if !enabled || !s.validate(code, secret) {
		slog.Warn("two-factor code rejected",
			slog.String("security", "2fa"),
			slog.String("username", ident.Username),
		)
		return nil, apperror.NewCodeInvalid()
	}

	return &ident, nil
}

// BeginSetup generates a key, parks its secret in Redis and renders the QR.
func (s *twoFactorService) BeginSetup(ctx context.Context, userID, username string) (*SetupResult, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: username,
		Period:      validateOpts.Period,
		Digits:      validateOpts.Digits,
		Algorithm:   validateOpts.Algorithm,
	})
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("generating totp key: %w", err))
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("rendering qr code: %w", err))
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("encoding qr code: %w", err))
	}

	// Viewing the QR code must not enable anything; the secret only reaches
	// the users table through Enable.
	if err := s.redis.Set(ctx, setupKeyPrefix+userID, key.Secret(), setupTTL).Err(); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("storing pending secret: %w", err))
	}

	return &SetupResult{
		Secret: key.Secret(),
		URL:    key.URL(),
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// Enable confirms the pending secret.
func (s *twoFactorService) Enable(ctx context.Context, userID, code string) error {
	secret, err := s.redis.Get(ctx, setupKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return apperror.NewBadRequest("no pending two-factor setup, start again")
	}
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("reading pending secret: %w", err))
	}

	if !s.validate(code, secret) {
		return apperror.NewCodeInvalid()
	}

	if err := s.repo.EnableSecret(ctx, userID, secret); err != nil {
		return apperror.NewInternal(fmt.Errorf("persisting totp secret: %w", err))
	}
	if err := s.redis.Del(ctx, setupKeyPrefix+userID).Err(); err != nil {
		slog.Warn("failed to clear pending secret",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	slog.Info("two-factor enabled", slog.String("security", "2fa"), slog.String("user_id", userID))
	return nil
}

// Disable turns 2FA off after checking a current code.
func (s *twoFactorService) Disable(ctx context.Context, userID, code string) error {
	secret, enabled, err := s.repo.FindSecret(ctx, userID)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("loading totp secret: %w", err))
	}
	if !enabled {
		return apperror.NewBadRequest("two-factor authentication is not enabled")
	}
	if !s.validate(code, secret) {
		return apperror.NewCodeInvalid()
	}

	if err := s.repo.Disable(ctx, userID); err != nil {
		return apperror.NewInternal(fmt.Errorf("clearing totp secret: %w", err))
	}

	slog.Info("two-factor disabled", slog.String("security", "2fa"), slog.String("user_id", userID))
	return nil
}

// validate checks code against secret at the current time.
func (s *twoFactorService) validate(code, secret string) bool {
	if code == "" || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, s.now(), validateOpts)
	return err == nil && ok
}
