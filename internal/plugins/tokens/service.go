package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// VerifyOptions tunes a single verification.
type VerifyOptions struct {
	// IgnoreExpiration checks only the signature and issuer. Used by the
	// session gate's grace window and by revocation bookkeeping.
	IgnoreExpiration bool
}

// TokenService defines the contract for minting and verifying bearer tokens.
type TokenService interface {
	// Issue mints a token of the given type valid for ttl.
	Issue(sub Subject, tokenType string, ttl time.Duration) (string, *Claims, error)

	// IssuePair mints the app-facing access and refresh tokens in one call.
	IssuePair(sub Subject) (*TokenPair, error)

	// Verify checks signature and, unless told otherwise, expiry. Returns
	// ErrExpired (with the decoded claims) or ErrInvalid on failure.
	Verify(token string, opts VerifyOptions) (*Claims, error)

	// VerifyRefresh verifies a token and requires its type to be exactly
	// "refresh", so an access token can never mint fresh credentials.
	VerifyRefresh(token string) (*Claims, error)

	// ExpiresAt decodes exp without checking the signature.
	ExpiresAt(token string) (time.Time, error)
}

// Config holds the signing key and app token lifetimes.
type Config struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Clock overrides time.Now. Nil means the system clock.
	Clock func() time.Time
}

// tokenService implements TokenService with HS256 JWTs.
type tokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService creates a token service from the given config.
func NewTokenService(cfg Config) TokenService {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &tokenService{
		secret:     cfg.Secret,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        now,
	}
}

// Issue signs a new token for sub.
func (s *tokenService) Issue(sub Subject, tokenType string, ttl time.Duration) (string, *Claims, error) {
	if sub.UserID == "" {
		return "", nil, fmt.Errorf("issuing token: empty subject")
	}
	if ttl <= 0 {
		return "", nil, fmt.Errorf("issuing token: non-positive ttl %s", ttl)
	}

	now := s.now()
	claims := &Claims{
		Username: sub.Username,
		Type:     tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   sub.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}
	return signed, claims, nil
}

// IssuePair mints an access token and a refresh token for sub.
func (s *tokenService) IssuePair(sub Subject) (*TokenPair, error) {
	access, accessClaims, err := s.Issue(sub, TypeAccess, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}
	refresh, refreshClaims, err := s.Issue(sub, TypeRefresh, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		AccessExpiresAt:  accessClaims.ExpiresAtTime(),
		RefreshExpiresAt: refreshClaims.ExpiresAtTime(),
	}, nil
}

// Verify parses and validates token.
func (s *tokenService) Verify(token string, opts VerifyOptions) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if opts.IgnoreExpiration {
		parserOpts = append(parserOpts, jwt.WithoutClaimsValidation())
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, s.keyFunc, parserOpts...)
	if err != nil {
		// The signature is checked before claims, so an expiry error means
		// the token is authentic but stale.
		if errors.Is(err, jwt.ErrTokenExpired) {
			if claims.Issuer != s.issuer {
				return nil, ErrInvalid
			}
			return claims, ErrExpired
		}
		return nil, ErrInvalid
	}

	if claims.Issuer != s.issuer || claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalid
	}
	return claims, nil
}

// VerifyRefresh verifies token and checks the refresh type discriminator.
func (s *tokenService) VerifyRefresh(token string) (*Claims, error) {
	claims, err := s.Verify(token, VerifyOptions{})
	if err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh {
		return nil, ErrInvalid
	}
	return claims, nil
}

// ExpiresAt reads the exp claim without verifying the signature. Revocation
// must work for any token a client presents, including ones signed with a
// rotated key.
func (s *tokenService) ExpiresAt(token string) (time.Time, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, ErrInvalid
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrInvalid
	}
	return claims.ExpiresAt.Time, nil
}

// keyFunc returns the HMAC secret after the method allowlist has passed.
func (s *tokenService) keyFunc(_ *jwt.Token) (any, error) {
	return s.secret, nil
}
