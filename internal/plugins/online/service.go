package online

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keys.
const (
	entryKeyPrefix = "online:user:"
	indexKey       = "online:users"
)

// Revoker blocks a token. The blacklist registry satisfies it.
type Revoker interface {
	Revoke(ctx context.Context, token string) error
}

// OnlineRegistry defines the live-session directory.
type OnlineRegistry interface {
	// Add records a session for ttl, which must be the session timeout that
	// applied when the token was minted.
	Add(ctx context.Context, token string, entry Entry, ttl time.Duration) error

	Remove(ctx context.Context, token string) error

	// Get returns the entry for token, or nil if none exists.
	Get(ctx context.Context, token string) (*Entry, error)

	// Renew copies the entry of oldToken to newToken. The old entry is left
	// to lapse on its own TTL since the old token stays valid until then.
	Renew(ctx context.Context, oldToken, newToken string, ttl time.Duration) error

	// List returns live sessions, newest login first. Index members whose
	// entry already expired are dropped from the index.
	List(ctx context.Context) ([]Entry, error)

	// ForceLogout revokes token and removes its entry.
	ForceLogout(ctx context.Context, token string) error
}

// onlineRegistry implements OnlineRegistry on Redis.
type onlineRegistry struct {
	redis   *redis.Client
	revoker Revoker
}

// NewOnlineRegistry creates an online registry.
func NewOnlineRegistry(rdb *redis.Client, revoker Revoker) OnlineRegistry {
	return &onlineRegistry{redis: rdb, revoker: revoker}
}

// Add writes the entry and indexes its token.
func (r *onlineRegistry) Add(ctx context.Context, token string, entry Entry, ttl time.Duration) error {
	entry.Token = ""
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling online entry: %w", err)
	}

	_, err = r.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entryKeyPrefix+token, data, ttl)
		pipe.SAdd(ctx, indexKey, token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording online entry: %w", err)
	}
	return nil
}

// Remove deletes the entry and its index reference.
func (r *onlineRegistry) Remove(ctx context.Context, token string) error {
	_, err := r.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, entryKeyPrefix+token)
		pipe.SRem(ctx, indexKey, token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("removing online entry: %w", err)
	}
	return nil
}

// Get reads a single entry.
func (r *onlineRegistry) Get(ctx context.Context, token string) (*Entry, error) {
	data, err := r.redis.Get(ctx, entryKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading online entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshaling online entry: %w", err)
	}
	entry.Token = token
	return &entry, nil
}

// Renew carries the login metadata over to a renewed token.
func (r *onlineRegistry) Renew(ctx context.Context, oldToken, newToken string, ttl time.Duration) error {
	entry, err := r.Get(ctx, oldToken)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	return r.Add(ctx, newToken, *entry, ttl)
}

// List reads the index and every entry in one MGET.
func (r *onlineRegistry) List(ctx context.Context) ([]Entry, error) {
	tokens, err := r.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("reading online index: %w", err)
	}
	if len(tokens) == 0 {
		return []Entry{}, nil
	}

	keys := make([]string, len(tokens))
	for i, tok := range tokens {
		keys[i] = entryKeyPrefix + tok
	}
	values, err := r.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading online entries: %w", err)
	}

	entries := make([]Entry, 0, len(tokens))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, tokens[i])
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			stale = append(stale, tokens[i])
			continue
		}
		entry.Token = tokens[i]
		entries = append(entries, entry)
	}

	if len(stale) > 0 {
		if err := r.redis.SRem(ctx, indexKey, stale...).Err(); err != nil {
			slog.Warn("pruning online index failed", slog.Int("stale", len(stale)), slog.Any("error", err))
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LoginTime.After(entries[j].LoginTime)
	})
	return entries, nil
}

// ForceLogout revokes first so the token is dead even if removal fails.
func (r *onlineRegistry) ForceLogout(ctx context.Context, token string) error {
	if err := r.revoker.Revoke(ctx, token); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	if err := r.Remove(ctx, token); err != nil {
		return err
	}

	slog.Info("session force-logged out", slog.String("security", "session"))
	return nil
}
