package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
	"github.com/keyxmakerx/wayfarer/internal/plugins/blacklist"
	"github.com/keyxmakerx/wayfarer/internal/plugins/lockout"
	"github.com/keyxmakerx/wayfarer/internal/plugins/online"
	"github.com/keyxmakerx/wayfarer/internal/plugins/secevents"
	"github.com/keyxmakerx/wayfarer/internal/plugins/settings"
	"github.com/keyxmakerx/wayfarer/internal/plugins/tokens"
	"github.com/keyxmakerx/wayfarer/internal/plugins/twofactor"
)

// --- Mocks ---

// mockUserRepo implements UserRepository for testing.
type mockUserRepo struct {
	users             map[string]*User
	findByUsernameFn  func(ctx context.Context, username string) (*User, error)
	updateLastLoginFn func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*User, error) {
	if m.findByUsernameFn != nil {
		return m.findByUsernameFn(ctx, username)
	}
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id string) error {
	if m.updateLastLoginFn != nil {
		return m.updateLastLoginFn(ctx, id)
	}
	return nil
}

// mockSecretRepo implements twofactor.SecretRepository for testing.
type mockSecretRepo struct {
	secrets map[string]string
}

func (m *mockSecretRepo) FindSecret(ctx context.Context, userID string) (string, bool, error) {
	s, ok := m.secrets[userID]
	return s, ok, nil
}

func (m *mockSecretRepo) EnableSecret(ctx context.Context, userID, secret string) error {
	m.secrets[userID] = secret
	return nil
}

func (m *mockSecretRepo) Disable(ctx context.Context, userID string) error {
	delete(m.secrets, userID)
	return nil
}

// policyStub implements PolicySource and lockout.PolicySource.
type policyStub struct {
	s settings.SecuritySettings
}

func (p *policyStub) SecuritySettings(ctx context.Context) settings.SecuritySettings {
	return p.s
}

// eventLog implements secevents.Recorder by keeping events in memory.
type eventLog struct {
	events []secevents.Event
}

func (l *eventLog) Record(ctx context.Context, event secevents.Event) {
	l.events = append(l.events, event)
}

func (l *eventLog) types() []string {
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.EventType
	}
	return out
}

// --- Test environment ---

const (
	alicePassword = "correct-horse-battery"
	aliceSecret   = "JBSWY3DPEHPK3PXP"
)

// testEnv wires the real store-backed components to an in-process Redis.
type testEnv struct {
	svc     *authService
	gate    *Gate
	tokens  tokens.TokenService
	online  online.OnlineRegistry
	mr      *miniredis.Miniredis
	users   *mockUserRepo
	secrets *mockSecretRepo
	policy  *policyStub
	events  *eventLog
	clock   *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	// JWT times have second precision.
	clock := time.Now().Truncate(time.Second)
	now := func() time.Time { return clock }

	hash, err := bcrypt.GenerateFromPassword([]byte(alicePassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	users := &mockUserRepo{users: map[string]*User{
		"u-alice": {ID: "u-alice", Username: "alice", DisplayName: "Alice", PasswordHash: string(hash)},
	}}
	secrets := &mockSecretRepo{secrets: map[string]string{}}
	policy := &policyStub{s: settings.SecuritySettings{
		MaxRetry:              5,
		LockMinutes:           10,
		SessionTimeoutMinutes: 30,
	}}

	ts := tokens.NewTokenService(tokens.Config{
		Secret:     []byte("test-secret-key-with-enough-bytes!!"),
		Issuer:     "Wayfarer",
		AccessTTL:  7 * 24 * time.Hour,
		RefreshTTL: 30 * 24 * time.Hour,
		Clock:      now,
	})
	bl := blacklist.NewRegistry(rdb, ts, blacklist.WithClock(now))
	reg := online.NewOnlineRegistry(rdb, bl)
	events := &eventLog{}

	svc := NewAuthService(Deps{
		Users:     users,
		Tokens:    ts,
		Blacklist: bl,
		Lockout:   lockout.NewLockoutService(rdb, policy),
		TwoFactor: twofactor.NewTwoFactorService(rdb, secrets, "Wayfarer"),
		Online:    reg,
		Settings:  policy,
		Events:    events,
	}).(*authService)
	svc.now = now

	gate := NewGate(ts, bl, policy)
	gate.now = now

	return &testEnv{
		svc:     svc,
		gate:    gate,
		tokens:  ts,
		online:  reg,
		mr:      mr,
		users:   users,
		secrets: secrets,
		policy:  policy,
		events:  events,
		clock:   &clock,
	}
}

func (e *testEnv) login(username, password string) (*LoginResult, error) {
	return e.svc.Login(context.Background(), LoginInput{
		Username: username,
		Password: password,
		Client:   ClientInfo{IP: "10.0.0.1"},
	})
}

// requireAppError asserts err is an AppError of the given type.
func requireAppError(t *testing.T, err error, errType string) *apperror.AppError {
	t.Helper()
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError %q, got %v", errType, err)
	}
	if appErr.Type != errType {
		t.Fatalf("expected error type %q, got %q (%v)", errType, appErr.Type, err)
	}
	return appErr
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.login("alice", alicePassword)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Token == "" || res.RequireTwoFactor {
		t.Fatalf("expected a final token, got %+v", res)
	}
	if !res.ExpiresAt.Equal(env.clock.Add(30 * time.Minute)) {
		t.Errorf("expected session-timeout expiry, got %s", res.ExpiresAt)
	}

	entry, err := env.online.Get(context.Background(), res.Token)
	if err != nil || entry == nil {
		t.Fatalf("expected online entry, got %v / %v", entry, err)
	}
	if entry.Username != "alice" || entry.IP != "10.0.0.1" {
		t.Errorf("unexpected online entry %+v", entry)
	}
	if ttl := env.mr.TTL("online:user:" + res.Token); ttl != 30*time.Minute {
		t.Errorf("expected online ttl equal to session timeout, got %s", ttl)
	}
}

func TestLogin_WrongPasswordReportsRemainingAttempts(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.login("alice", "wrong")
	appErr := requireAppError(t, err, apperror.TypeInvalidCredentials)
	if appErr.Details["remainingAttempts"] != 4 {
		t.Errorf("expected 4 remaining attempts, got %v", appErr.Details["remainingAttempts"])
	}
}

func TestLogin_UnknownUserLooksLikeWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	_, errUnknown := env.login("nobody", "whatever")
	_, errWrong := env.login("alice", "wrong")

	unknown := requireAppError(t, errUnknown, apperror.TypeInvalidCredentials)
	wrong := requireAppError(t, errWrong, apperror.TypeInvalidCredentials)
	if unknown.Message != wrong.Message || unknown.Code != wrong.Code {
		t.Errorf("expected identical responses, got %q/%d vs %q/%d",
			unknown.Message, unknown.Code, wrong.Message, wrong.Code)
	}
}

func TestLogin_LockoutScenario(t *testing.T) {
	env := newTestEnv(t)

	for i := 1; i <= 4; i++ {
		_, err := env.login("alice", "wrong")
		requireAppError(t, err, apperror.TypeInvalidCredentials)
	}

	_, err := env.login("alice", "wrong")
	locked := requireAppError(t, err, apperror.TypeAccountLocked)
	if locked.Details["remainingSeconds"] != 600 {
		t.Errorf("expected 600s remaining, got %v", locked.Details["remainingSeconds"])
	}

	// The correct password does not lift the lock early.
	_, err = env.login("alice", alicePassword)
	requireAppError(t, err, apperror.TypeAccountLocked)
	if !env.mr.Exists("login:lock:alice") {
		t.Fatal("expected lock record to survive a correct password")
	}

	env.mr.FastForward(600 * time.Second)

	res, err := env.login("alice", alicePassword)
	if err != nil {
		t.Fatalf("expected login after lock lapsed, got %v", err)
	}
	if res.Token == "" {
		t.Error("expected a token")
	}
}

func TestLogin_RecordsSecurityEvents(t *testing.T) {
	env := newTestEnv(t)
	env.policy.s.MaxRetry = 2

	env.login("nobody", "whatever")
	env.login("alice", "wrong")
	env.login("alice", "wrong")
	env.login("alice", alicePassword)

	want := []string{
		secevents.EventLoginFailed,
		secevents.EventLoginFailed,
		secevents.EventLoginFailed,
		secevents.EventAccountLocked,
		secevents.EventLoginFailed,
	}
	got := env.events.types()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	if env.events.events[0].UserID != "" || env.events.events[0].Username != "nobody" {
		t.Errorf("expected unknown user recorded by name only, got %+v", env.events.events[0])
	}
	if env.events.events[1].UserID != "u-alice" || env.events.events[1].IPAddress != "10.0.0.1" {
		t.Errorf("unexpected failure event %+v", env.events.events[1])
	}
	if env.events.events[4].Details["reason"] != "locked" {
		t.Errorf("expected locked reason, got %v", env.events.events[4].Details)
	}

	env.mr.FastForward(10 * time.Minute)
	env.login("alice", alicePassword)
	if last := env.events.events[len(env.events.events)-1]; last.EventType != secevents.EventLoginSuccess {
		t.Errorf("expected login.success last, got %s", last.EventType)
	}
}

func TestLogin_SuccessClearsCounter(t *testing.T) {
	env := newTestEnv(t)

	env.login("alice", "wrong")
	env.login("alice", "wrong")
	if _, err := env.login("alice", alicePassword); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.mr.Exists("login:fail:alice") {
		t.Error("expected failure counter cleared")
	}
}

func TestLogin_UsernameCaseSharesCounter(t *testing.T) {
	env := newTestEnv(t)

	for _, name := range []string{"Alice", "ALICE", "alice", " aLiCe ", "alice"} {
		env.login(name, "wrong")
	}
	_, err := env.login("alice", alicePassword)
	requireAppError(t, err, apperror.TypeAccountLocked)
}

func TestLogin_DisabledAccount(t *testing.T) {
	env := newTestEnv(t)
	env.users.users["u-alice"].IsDisabled = true

	_, errWrong := env.login("alice", "wrong")
	_, errRight := env.login("alice", alicePassword)

	wrong := requireAppError(t, errWrong, apperror.TypeInvalidCredentials)
	right := requireAppError(t, errRight, apperror.TypeInvalidCredentials)
	if wrong.Code != right.Code || wrong.Message != right.Message {
		t.Errorf("expected identical responses, got %q/%d vs %q/%d",
			wrong.Message, wrong.Code, right.Message, right.Code)
	}
	if wrong.Details["remainingAttempts"] != 4 || right.Details["remainingAttempts"] != 3 {
		t.Errorf("expected the correct password to count like a wrong one, got %v then %v",
			wrong.Details, right.Details)
	}
	if got := env.events.events[len(env.events.events)-1].Details["reason"]; got != "disabled" {
		t.Errorf("expected disabled reason in the event log, got %v", got)
	}
}

func TestLogin_StoreDownFailsOpen(t *testing.T) {
	env := newTestEnv(t)
	env.mr.Close()

	res, err := env.login("alice", alicePassword)
	if err != nil {
		t.Fatalf("expected login to proceed without lockout, got %v", err)
	}
	if res.Token == "" {
		t.Error("expected a token")
	}

	_, err = env.login("alice", "wrong")
	requireAppError(t, err, apperror.TypeInvalidCredentials)
}

func TestLogin_RepositoryError(t *testing.T) {
	env := newTestEnv(t)
	env.users.findByUsernameFn = func(ctx context.Context, username string) (*User, error) {
		return nil, errors.New("connection refused")
	}

	_, err := env.login("alice", alicePassword)
	if apperror.SafeCode(err) != 500 {
		t.Errorf("expected 500, got %v", err)
	}
}

// --- Two-factor ---

func enableTwoFactor(env *testEnv) {
	env.policy.s.TwoFactorEnabled = true
	env.users.users["u-alice"].TOTPEnabled = true
	env.secrets.secrets["u-alice"] = aliceSecret
}

func TestLogin_TwoFactorScenario(t *testing.T) {
	env := newTestEnv(t)
	enableTwoFactor(env)
	ctx := context.Background()

	res, err := env.login("alice", alicePassword)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.RequireTwoFactor || res.TempToken == "" || res.Token != "" {
		t.Fatalf("expected a challenge, got %+v", res)
	}

	code, err := totp.GenerateCode(aliceSecret, time.Now())
	if err != nil {
		t.Fatalf("generating code: %v", err)
	}

	final, err := env.svc.VerifyTwoFactor(ctx, res.TempToken, code, ClientInfo{IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if final.Token == "" {
		t.Fatal("expected a final token")
	}
	if d := env.gate.Check(ctx, final.Token); d.Outcome != Accepted || d.Claims.UserID() != "u-alice" {
		t.Errorf("expected the final token to pass the gate, got %s", d.Outcome)
	}

	_, err = env.svc.VerifyTwoFactor(ctx, res.TempToken, code, ClientInfo{})
	requireAppError(t, err, apperror.TypeChallengeInvalid)
}

func TestLogin_TwoFactorGloballyOff(t *testing.T) {
	env := newTestEnv(t)
	enableTwoFactor(env)
	env.policy.s.TwoFactorEnabled = false

	res, err := env.login("alice", alicePassword)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RequireTwoFactor || res.Token == "" {
		t.Errorf("expected a direct token with 2FA switched off, got %+v", res)
	}
}

func TestVerifyTwoFactor_WrongCode(t *testing.T) {
	env := newTestEnv(t)
	enableTwoFactor(env)

	res, _ := env.login("alice", alicePassword)
	_, err := env.svc.VerifyTwoFactor(context.Background(), res.TempToken, "000000", ClientInfo{})
	requireAppError(t, err, apperror.TypeCodeInvalid)
}

func TestVerifyTwoFactor_LockedWhilePending(t *testing.T) {
	env := newTestEnv(t)
	enableTwoFactor(env)
	ctx := context.Background()

	res, _ := env.login("alice", alicePassword)
	for i := 0; i < 5; i++ {
		env.login("alice", "wrong")
	}

	code, _ := totp.GenerateCode(aliceSecret, time.Now())
	_, err := env.svc.VerifyTwoFactor(ctx, res.TempToken, code, ClientInfo{})
	requireAppError(t, err, apperror.TypeAccountLocked)
}

// --- Logout ---

func TestLogout_RevokesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, _ := env.login("alice", alicePassword)
	if d := env.gate.Check(ctx, res.Token); d.Outcome != Accepted {
		t.Fatalf("expected token accepted before logout, got %s", d.Outcome)
	}

	if err := env.svc.Logout(ctx, res.Token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := env.gate.Check(ctx, res.Token)
	if d.Outcome != Rejected {
		t.Fatalf("expected revoked token rejected, got %s", d.Outcome)
	}
	requireAppError(t, d.Err, apperror.TypeUnauthorized)

	if entry, _ := env.online.Get(ctx, res.Token); entry != nil {
		t.Error("expected online entry removed")
	}
}

func TestLogout_Garbage(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.Logout(context.Background(), "not-a-token")
	requireAppError(t, err, apperror.TypeTokenInvalid)
}

// --- App refresh ---

func TestRefreshApp_RotatesPair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pair, err := env.tokens.IssuePair(tokens.Subject{UserID: "u-alice", Username: "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	next, err := env.svc.RefreshApp(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if next.AccessToken == "" || next.RefreshToken == pair.RefreshToken {
		t.Errorf("expected a fresh pair, got %+v", next)
	}

	_, err = env.svc.RefreshApp(ctx, pair.RefreshToken)
	requireAppError(t, err, apperror.TypeUnauthorized)
}

func TestRefreshApp_RejectsAccessToken(t *testing.T) {
	env := newTestEnv(t)

	pair, _ := env.tokens.IssuePair(tokens.Subject{UserID: "u-alice", Username: "alice"})
	_, err := env.svc.RefreshApp(context.Background(), pair.AccessToken)
	requireAppError(t, err, apperror.TypeTokenInvalid)
}

func TestRefreshApp_Expired(t *testing.T) {
	env := newTestEnv(t)

	pair, _ := env.tokens.IssuePair(tokens.Subject{UserID: "u-alice", Username: "alice"})
	*env.clock = env.clock.Add(31 * 24 * time.Hour)

	_, err := env.svc.RefreshApp(context.Background(), pair.RefreshToken)
	requireAppError(t, err, apperror.TypeTokenExpired)
}

func TestRefreshApp_DisabledUser(t *testing.T) {
	env := newTestEnv(t)
	env.users.users["u-alice"].IsDisabled = true

	pair, _ := env.tokens.IssuePair(tokens.Subject{UserID: "u-alice", Username: "alice"})
	_, err := env.svc.RefreshApp(context.Background(), pair.RefreshToken)
	requireAppError(t, err, apperror.TypeTokenInvalid)
}

// --- Password hashing ---

func TestVerifyPassword(t *testing.T) {
	argon, err := hashPassword("s3cret")
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	bc, _ := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)

	tests := []struct {
		name     string
		password string
		hash     string
		want     bool
	}{
		{"argon2id match", "s3cret", argon, true},
		{"argon2id mismatch", "nope", argon, false},
		{"bcrypt match", "s3cret", string(bc), true},
		{"bcrypt mismatch", "nope", string(bc), false},
		{"unknown scheme", "s3cret", "plain:s3cret", false},
		{"truncated argon2id", "s3cret", "$argon2id$v=19$m=65536", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := verifyPassword(tt.password, tt.hash); got != tt.want {
				t.Errorf("verifyPassword = %v, want %v", got, tt.want)
			}
		})
	}
}
