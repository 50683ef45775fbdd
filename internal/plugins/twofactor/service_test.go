package twofactor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
)

// --- Mock Repository ---

// mockSecretRepo implements SecretRepository for testing.
type mockSecretRepo struct {
	findSecretFn func(ctx context.Context, userID string) (string, bool, error)
	enabled      map[string]string
}

func (m *mockSecretRepo) FindSecret(ctx context.Context, userID string) (string, bool, error) {
	if m.findSecretFn != nil {
		return m.findSecretFn(ctx, userID)
	}
	secret, ok := m.enabled[userID]
	return secret, ok, nil
}

func (m *mockSecretRepo) EnableSecret(ctx context.Context, userID, secret string) error {
	if m.enabled == nil {
		m.enabled = make(map[string]string)
	}
	m.enabled[userID] = secret
	return nil
}

func (m *mockSecretRepo) Disable(ctx context.Context, userID string) error {
	delete(m.enabled, userID)
	return nil
}

// testSecret is a fixed base32 secret.
const testSecret = "JBSWY3DPEHPK3PXP"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestTwoFactor(t *testing.T, repo *mockSecretRepo) (*twoFactorService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return &twoFactorService{
		redis:  rdb,
		repo:   repo,
		issuer: "Wayfarer",
		now:    func() time.Time { return fixedNow },
	}, mr
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, validateOpts)
	if err != nil {
		t.Fatalf("generating code: %v", err)
	}
	return code
}

func TestIssueChallenge_StoresWithTTL(t *testing.T) {
	svc, mr := newTestTwoFactor(t, &mockSecretRepo{})

	challenge, err := svc.IssueChallenge(context.Background(), "u-1", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if challenge == "" {
		t.Fatal("expected a challenge token")
	}
	if ttl := mr.TTL(challengeKeyPrefix + challenge); ttl != challengeTTL {
		t.Errorf("expected %s ttl, got %s", challengeTTL, ttl)
	}
}

func TestVerify_SucceedsOnceOnly(t *testing.T) {
	repo := &mockSecretRepo{enabled: map[string]string{"u-1": testSecret}}
	svc, mr := newTestTwoFactor(t, repo)
	ctx := context.Background()

	challenge, _ := svc.IssueChallenge(ctx, "u-1", "alice")
	code := codeAt(t, testSecret, fixedNow)

	ident, err := svc.Verify(ctx, challenge, code)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ident.UserID != "u-1" || ident.Username != "alice" {
		t.Errorf("unexpected identity %+v", ident)
	}
	if mr.Exists(challengeKeyPrefix + challenge) {
		t.Error("expected challenge consumed")
	}

	_, err = svc.Verify(ctx, challenge, code)
	if !apperror.IsType(err, apperror.TypeChallengeInvalid) {
		t.Errorf("expected challenge_expired_or_invalid on reuse, got %v", err)
	}
}

func TestVerify_WrongCodeStillConsumesChallenge(t *testing.T) {
	repo := &mockSecretRepo{enabled: map[string]string{"u-1": testSecret}}
	svc, _ := newTestTwoFactor(t, repo)
	ctx := context.Background()

	challenge, _ := svc.IssueChallenge(ctx, "u-1", "alice")

	_, err := svc.Verify(ctx, challenge, "000000")
	if !apperror.IsType(err, apperror.TypeCodeInvalid) {
		t.Fatalf("expected code_invalid, got %v", err)
	}

	_, err = svc.Verify(ctx, challenge, codeAt(t, testSecret, fixedNow))
	if !apperror.IsType(err, apperror.TypeChallengeInvalid) {
		t.Errorf("expected a consumed challenge to fail even with a good code, got %v", err)
	}
}

func TestVerify_ToleratesOneStepDrift(t *testing.T) {
	repo := &mockSecretRepo{enabled: map[string]string{"u-1": testSecret}}
	svc, _ := newTestTwoFactor(t, repo)
	ctx := context.Background()

	challenge, _ := svc.IssueChallenge(ctx, "u-1", "alice")
	if _, err := svc.Verify(ctx, challenge, codeAt(t, testSecret, fixedNow.Add(-30*time.Second))); err != nil {
		t.Errorf("expected previous step accepted, got %v", err)
	}

	challenge, _ = svc.IssueChallenge(ctx, "u-1", "alice")
	_, err := svc.Verify(ctx, challenge, codeAt(t, testSecret, fixedNow.Add(-2*time.Minute)))
	if !apperror.IsType(err, apperror.TypeCodeInvalid) {
		t.Errorf("expected stale code rejected, got %v", err)
	}
}

func TestVerify_ExpiredChallenge(t *testing.T) {
	repo := &mockSecretRepo{enabled: map[string]string{"u-1": testSecret}}
	svc, mr := newTestTwoFactor(t, repo)
	ctx := context.Background()

	challenge, _ := svc.IssueChallenge(ctx, "u-1", "alice")
	mr.FastForward(challengeTTL + time.Second)

	_, err := svc.Verify(ctx, challenge, codeAt(t, testSecret, fixedNow))
	if !apperror.IsType(err, apperror.TypeChallengeInvalid) {
		t.Errorf("expected challenge_expired_or_invalid, got %v", err)
	}
}

func TestVerify_UnknownAndEmptyChallenge(t *testing.T) {
	svc, _ := newTestTwoFactor(t, &mockSecretRepo{})

	for _, challenge := range []string{"", "does-not-exist"} {
		_, err := svc.Verify(context.Background(), challenge, "123456")
		if !apperror.IsType(err, apperror.TypeChallengeInvalid) {
			t.Errorf("challenge %q: expected challenge_expired_or_invalid, got %v", challenge, err)
		}
	}
}

func TestSetupEnableDisable(t *testing.T) {
	repo := &mockSecretRepo{}
	svc, mr := newTestTwoFactor(t, repo)
	ctx := context.Background()

	setup, err := svc.BeginSetup(ctx, "u-1", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(setup.URL, "otpauth://totp/") {
		t.Errorf("unexpected otpauth url %q", setup.URL)
	}
	if !strings.HasPrefix(setup.QRCode, "data:image/png;base64,") {
		t.Errorf("expected png data url, got %.30q", setup.QRCode)
	}
	if ttl := mr.TTL(setupKeyPrefix + "u-1"); ttl != setupTTL {
		t.Errorf("expected %s ttl on pending secret, got %s", setupTTL, ttl)
	}
	if _, ok := repo.enabled["u-1"]; ok {
		t.Fatal("viewing the setup must not enable 2FA")
	}

	if err := svc.Enable(ctx, "u-1", "000000"); !apperror.IsType(err, apperror.TypeCodeInvalid) {
		t.Fatalf("expected code_invalid for a wrong code, got %v", err)
	}
	if err := svc.Enable(ctx, "u-1", codeAt(t, setup.Secret, fixedNow)); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if repo.enabled["u-1"] != setup.Secret {
		t.Error("expected confirmed secret persisted")
	}
	if mr.Exists(setupKeyPrefix + "u-1") {
		t.Error("expected pending secret cleared")
	}

	if err := svc.Disable(ctx, "u-1", codeAt(t, setup.Secret, fixedNow)); err != nil {
		t.Fatalf("disable failed: %v", err)
	}
	if _, ok := repo.enabled["u-1"]; ok {
		t.Error("expected secret removed")
	}
}

func TestEnable_WithoutSetup(t *testing.T) {
	svc, _ := newTestTwoFactor(t, &mockSecretRepo{})

	err := svc.Enable(context.Background(), "u-1", "123456")
	if err == nil {
		t.Fatal("expected error without a pending setup")
	}
	if apperror.SafeCode(err) != 400 {
		t.Errorf("expected 400, got %d", apperror.SafeCode(err))
	}
}

func TestDisable_NotEnabled(t *testing.T) {
	svc, _ := newTestTwoFactor(t, &mockSecretRepo{})

	if err := svc.Disable(context.Background(), "u-1", "123456"); apperror.SafeCode(err) != 400 {
		t.Errorf("expected 400, got %v", err)
	}
}
