package blacklist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// stubExpiry implements ExpiryReader with a fixed lookup table.
type stubExpiry map[string]time.Time

func (s stubExpiry) ExpiresAt(token string) (time.Time, error) {
	exp, ok := s[token]
	if !ok {
		return time.Time{}, errors.New("malformed")
	}
	return exp, nil
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestRegistry wires a registry to an in-process Redis.
func newTestRegistry(t *testing.T, exp stubExpiry) (*registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return &registry{
		redis:  rdb,
		expiry: exp,
		now:    func() time.Time { return baseTime },
	}, mr
}

func TestRevoke_TTLCoversLifetimeAndGrace(t *testing.T) {
	reg, mr := newTestRegistry(t, stubExpiry{"tok": baseTime.Add(10 * time.Minute)})

	if err := reg.Revoke(context.Background(), "tok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ttl := mr.TTL(keyPrefix + "tok"); ttl != 10*time.Minute+RenewalGrace+entryMargin {
		t.Errorf("expected 11m ttl, got %s", ttl)
	}

	revoked, err := reg.IsRevoked(context.Background(), "tok")
	if err != nil || !revoked {
		t.Fatalf("expected token revoked, got %v / %v", revoked, err)
	}
}

func TestRevoke_FloorsShortTTL(t *testing.T) {
	reg, mr := newTestRegistry(t, stubExpiry{"tok": baseTime.Add(-50 * time.Second)})

	if err := reg.Revoke(context.Background(), "tok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttl := mr.TTL(keyPrefix + "tok"); ttl != minEntryTTL {
		t.Errorf("expected ttl floored to %s, got %s", minEntryTTL, ttl)
	}
}

func TestRevoke_WithinGraceIsWritten(t *testing.T) {
	for _, since := range []time.Duration{time.Second, 30 * time.Second, RenewalGrace} {
		reg, mr := newTestRegistry(t, stubExpiry{"tok": baseTime.Add(-since)})

		if err := reg.Revoke(context.Background(), "tok"); err != nil {
			t.Fatalf("%s past exp: unexpected error: %v", since, err)
		}
		if !mr.Exists(keyPrefix + "tok") {
			t.Errorf("%s past exp: expected an entry while the token is still renewable", since)
		}
	}
}

func TestRevoke_PastGraceIsNoop(t *testing.T) {
	reg, mr := newTestRegistry(t, stubExpiry{"old": baseTime.Add(-RenewalGrace - time.Second)})

	if err := reg.Revoke(context.Background(), "old"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mr.Exists(keyPrefix + "old") {
		t.Error("expected no entry for a token past its renewal grace")
	}
}

func TestRevoke_UnreadableToken(t *testing.T) {
	reg, _ := newTestRegistry(t, stubExpiry{})

	if err := reg.Revoke(context.Background(), "garbage"); !errors.Is(err, ErrUnreadableToken) {
		t.Errorf("expected ErrUnreadableToken, got %v", err)
	}
}

func TestIsRevoked_EntryOutlivesExpByGrace(t *testing.T) {
	reg, mr := newTestRegistry(t, stubExpiry{"tok": baseTime.Add(2 * time.Minute)})

	if err := reg.Revoke(context.Background(), "tok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Past exp but inside the renewal grace the token must stay blocked.
	mr.FastForward(2*time.Minute + 30*time.Second)
	revoked, err := reg.IsRevoked(context.Background(), "tok")
	if err != nil || !revoked {
		t.Fatalf("expected token still revoked during grace, got %v / %v", revoked, err)
	}

	mr.FastForward(31 * time.Second)
	revoked, err = reg.IsRevoked(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if revoked {
		t.Error("expected entry to lapse once the grace is over")
	}
}

func TestIsRevoked_UnknownToken(t *testing.T) {
	reg, _ := newTestRegistry(t, stubExpiry{})

	revoked, err := reg.IsRevoked(context.Background(), "never-seen")
	if err != nil || revoked {
		t.Errorf("expected not revoked, got %v / %v", revoked, err)
	}
}

func TestIsRevoked_StoreDownReturnsError(t *testing.T) {
	reg, mr := newTestRegistry(t, stubExpiry{})
	mr.Close()

	if _, err := reg.IsRevoked(context.Background(), "tok"); err == nil {
		t.Fatal("expected store error so the caller can fail closed")
	}
}
