package lockout

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/wayfarer/internal/plugins/settings"
)

// Redis key prefixes.
const (
	failKeyPrefix = "login:fail:"
	lockKeyPrefix = "login:lock:"
)

// incrWithTTL increments a counter and sets its TTL only when the key was
// created by this call. Doing both in one script means a crash between the
// two commands can never leave a counter without a TTL.
var incrWithTTL = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// PolicySource supplies the live lockout policy.
type PolicySource interface {
	SecuritySettings(ctx context.Context) settings.SecuritySettings
}

// LockoutService defines the failed-login accounting contract.
type LockoutService interface {
	// RecordFailure counts a failed login and locks the account when the
	// post-increment count reaches the configured maximum.
	RecordFailure(ctx context.Context, username string) (*FailureResult, error)

	// IsLocked reports whether a lock record exists for username.
	IsLocked(ctx context.Context, username string) (bool, error)

	// LockRemainingSeconds returns the seconds until the lock lapses, or 0.
	LockRemainingSeconds(ctx context.Context, username string) (int, error)

	// ClearFailure deletes the failure counter after a successful login.
	// An existing lock is left to run its full course.
	ClearFailure(ctx context.Context, username string) error

	// Unlock deletes both the lock record and the failure counter.
	Unlock(ctx context.Context, username string) error

	// ListLocked returns every currently locked account.
	ListLocked(ctx context.Context) ([]LockedAccount, error)
}

// lockoutService implements LockoutService on Redis.
type lockoutService struct {
	redis  *redis.Client
	policy PolicySource
	now    func() time.Time
}

// NewLockoutService creates a lockout service.
func NewLockoutService(rdb *redis.Client, policy PolicySource) LockoutService {
	return &lockoutService{
		redis:  rdb,
		policy: policy,
		now:    time.Now,
	}
}

// RecordFailure increments the failure counter and may create a lock.
func (s *lockoutService) RecordFailure(ctx context.Context, username string) (*FailureResult, error) {
	policy := s.policy.SecuritySettings(ctx)
	lockTTL := policy.LockDuration()

	// The lock decision uses the value INCR returned, never a re-read, so two
	// concurrent failures at max-1 cannot both miss the threshold.
	count, err := incrWithTTL.Run(ctx, s.redis, []string{failKeyPrefix + username}, lockTTL.Milliseconds()).Int()
	if err != nil {
		return nil, fmt.Errorf("incrementing failure counter: %w", err)
	}

	result := &FailureResult{
		FailCount:         count,
		RemainingAttempts: max(policy.MaxRetry-count, 0),
		LockMinutes:       policy.LockMinutes,
	}
	if count < policy.MaxRetry {
		return result, nil
	}

	result.Locked = true
	until := s.now().Add(lockTTL)

	// SETNX keeps an existing lock's deadline: late racing failures must not
	// extend it.
	created, err := s.redis.SetNX(ctx, lockKeyPrefix+username, until.Unix(), lockTTL).Result()
	if err != nil {
		return result, fmt.Errorf("writing lock record: %w", err)
	}
	if !created {
		return result, nil
	}

	// Align the counter with the lock so both lapse together.
	if err := s.redis.PExpire(ctx, failKeyPrefix+username, lockTTL).Err(); err != nil {
		slog.Warn("aligning failure counter ttl failed",
			slog.String("username", username),
			slog.Any("error", err),
		)
	}

	slog.Warn("account locked",
		slog.String("security", "lockout"),
		slog.String("username", username),
		slog.Int("fail_count", count),
		slog.Time("locked_until", until),
	)
	return result, nil
}

// IsLocked checks for the lock record.
func (s *lockoutService) IsLocked(ctx context.Context, username string) (bool, error) {
	n, err := s.redis.Exists(ctx, lockKeyPrefix+username).Result()
	if err != nil {
		return false, fmt.Errorf("checking lock record: %w", err)
	}
	return n > 0, nil
}

// LockRemainingSeconds reads the lock record's TTL, rounded up.
func (s *lockoutService) LockRemainingSeconds(ctx context.Context, username string) (int, error) {
	ttl, err := s.redis.TTL(ctx, lockKeyPrefix+username).Result()
	if err != nil {
		return 0, fmt.Errorf("reading lock ttl: %w", err)
	}
	return ceilSeconds(ttl), nil
}

// ClearFailure deletes the failure counter only.
func (s *lockoutService) ClearFailure(ctx context.Context, username string) error {
	if err := s.redis.Del(ctx, failKeyPrefix+username).Err(); err != nil {
		return fmt.Errorf("clearing failure counter: %w", err)
	}
	return nil
}

// Unlock removes the lock and the counter in a single DEL so a leftover
// counter cannot silently re-lock the account on the next failure.
func (s *lockoutService) Unlock(ctx context.Context, username string) error {
	if err := s.redis.Del(ctx, lockKeyPrefix+username, failKeyPrefix+username).Err(); err != nil {
		return fmt.Errorf("unlocking account: %w", err)
	}

	slog.Info("account unlocked",
		slog.String("security", "lockout"),
		slog.String("username", username),
	)
	return nil
}

// ListLocked scans for lock records and reads their details.
func (s *lockoutService) ListLocked(ctx context.Context) ([]LockedAccount, error) {
	var keys []string
	iter := s.redis.Scan(ctx, 0, lockKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning lock records: %w", err)
	}

	accounts := make([]LockedAccount, 0, len(keys))
	if len(keys) == 0 {
		return accounts, nil
	}

	// One round trip for every record.
	type lockCmds struct {
		until *redis.StringCmd
		ttl   *redis.DurationCmd
		fails *redis.StringCmd
	}
	cmds := make([]lockCmds, len(keys))
	pipe := s.redis.Pipeline()
	for i, key := range keys {
		username := strings.TrimPrefix(key, lockKeyPrefix)
		cmds[i] = lockCmds{
			until: pipe.Get(ctx, key),
			ttl:   pipe.TTL(ctx, key),
			fails: pipe.Get(ctx, failKeyPrefix+username),
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("reading lock records: %w", err)
	}

	for i, key := range keys {
		c := cmds[i]

		// The lock lapsed between SCAN and GET.
		if c.until.Err() == redis.Nil {
			continue
		}

		account := LockedAccount{
			Username:         strings.TrimPrefix(key, lockKeyPrefix),
			RemainingSeconds: ceilSeconds(c.ttl.Val()),
		}
		if unix, err := strconv.ParseInt(c.until.Val(), 10, 64); err == nil {
			account.LockedUntil = time.Unix(unix, 0).UTC()
		}
		if n, err := strconv.Atoi(c.fails.Val()); err == nil {
			account.FailCount = n
		}
		accounts = append(accounts, account)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Username < accounts[j].Username
	})
	return accounts, nil
}

// ceilSeconds converts a Redis TTL to whole seconds, rounding up. Negative
// sentinel values (no key, no TTL) become 0.
func ceilSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	return int((ttl + time.Second - 1) / time.Second)
}
