package guardrails

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// CooldownStore tracks per-symbol trade cooldowns.
type CooldownStore interface {
	// Acquire starts a cooldown for symbol unless one is already running.
	// It reports whether this call started it.
	Acquire(ctx context.Context, symbol string, ttl time.Duration) (bool, error)
	// Active reports whether symbol is in cooldown.
	Active(ctx context.Context, symbol string) (bool, error)
	// Release ends a cooldown early.
	Release(ctx context.Context, symbol string) error
}

// CooldownKey is the key holding a symbol's cooldown.
func CooldownKey(symbol string) string {
	return "cooldown:" + strings.ToUpper(symbol)
}

// RedisCooldownStore keeps cooldowns in Redis. Acquire is a single SETNX
// with expiry, so two concurrent approvals for one symbol cannot both pass.
type RedisCooldownStore struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisCooldownStore wraps a Redis client.
func NewRedisCooldownStore(client redis.Cmdable) *RedisCooldownStore {
	return &RedisCooldownStore{client: client, now: time.Now}
}

// WithClock overrides the clock used for the stored timestamp.
func (s *RedisCooldownStore) WithClock(now func() time.Time) *RedisCooldownStore {
	s.now = now
	return s
}

// Acquire sets cooldown:SYMBOL to the current time if absent.
func (s *RedisCooldownStore) Acquire(ctx context.Context, symbol string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, CooldownKey(symbol), s.now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown acquire: %w", err)
	}
	return ok, nil
}

// Active reports whether cooldown:SYMBOL exists.
func (s *RedisCooldownStore) Active(ctx context.Context, symbol string) (bool, error) {
	n, err := s.client.Exists(ctx, CooldownKey(symbol)).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown lookup: %w", err)
	}
	return n > 0, nil
}

// Release deletes cooldown:SYMBOL.
func (s *RedisCooldownStore) Release(ctx context.Context, symbol string) error {
	if err := s.client.Del(ctx, CooldownKey(symbol)).Err(); err != nil {
		return fmt.Errorf("cooldown release: %w", err)
	}
	return nil
}

// MemoryCooldownStore keeps cooldowns in process memory. Used in paper mode
// when no Redis address is configured.
type MemoryCooldownStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryCooldownStore creates an empty store. A nil clock selects
// time.Now.
func NewMemoryCooldownStore(now func() time.Time) *MemoryCooldownStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryCooldownStore{expires: make(map[string]time.Time), now: now}
}

// Acquire starts a cooldown unless an unexpired one exists.
func (s *MemoryCooldownStore) Acquire(_ context.Context, symbol string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := CooldownKey(symbol)
	now := s.now()
	if exp, ok := s.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.expires[key] = now.Add(ttl)
	return true, nil
}

// Active reports whether an unexpired cooldown exists.
func (s *MemoryCooldownStore) Active(_ context.Context, symbol string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := CooldownKey(symbol)
	exp, ok := s.expires[key]
	if !ok {
		return false, nil
	}
	if !s.now().Before(exp) {
		delete(s.expires, key)
		return false, nil
	}
	return true, nil
}

// Release removes the cooldown.
func (s *MemoryCooldownStore) Release(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expires, CooldownKey(symbol))
	return nil
}
