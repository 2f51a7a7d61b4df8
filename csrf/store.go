// Package csrf issues and validates the one-time tokens that prove a
// mutating request originated from a page this server served to the same
// session.
package csrf

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/veloursalon/websec/domain"
	"github.com/veloursalon/websec/internal/crypto"
	"github.com/veloursalon/websec/store"
)

var (
	ErrTokenMissing  = errors.New("no csrf token issued for session")
	ErrTokenExpired  = errors.New("csrf token expired")
	ErrTokenUsed     = errors.New("csrf token already used")
	ErrTokenMismatch = errors.New("csrf token mismatch")
)

// DefaultExpiry is how long an issued token stays valid.
const DefaultExpiry = time.Hour

// Store keeps at most one live token per session id. Tokens are single
// use: a successful verification consumes the token atomically.
type Store struct {
	mu     sync.Mutex
	kv     store.KV[domain.CSRFToken]
	expiry time.Duration
	now    func() time.Time
}

// NewStore creates a token store. expiry <= 0 selects DefaultExpiry.
func NewStore(kv store.KV[domain.CSRFToken], expiry time.Duration) *Store {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Store{kv: kv, expiry: expiry, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Issue generates a fresh token for the session, overwriting any previous
// unconsumed token.
func (s *Store) Issue(ctx context.Context, sessionID string) (string, error) {
	token, err := crypto.GenerateToken(crypto.TokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	record := domain.CSRFToken{
		SessionID: sessionID,
		Token:     token,
		ExpiresAt: s.now().Add(s.expiry),
	}
	if err := s.kv.Set(ctx, sessionID, record, s.expiry); err != nil {
		return "", fmt.Errorf("store csrf token: %w", err)
	}
	return token, nil
}

// Verify checks a presented token for the session and consumes it on
// success. Every failure mode fails closed: absent record, expiry, reuse,
// and mismatch each return a distinct error. Comparison is constant time.
func (s *Store) Verify(ctx context.Context, sessionID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.kv.Get(ctx, sessionID)
	if err != nil {
		return ErrTokenMissing
	}

	now := s.now()
	if now.After(record.ExpiresAt) {
		_ = s.kv.Delete(ctx, sessionID)
		return ErrTokenExpired
	}
	if record.Used {
		_ = s.kv.Delete(ctx, sessionID)
		return ErrTokenUsed
	}
	if !crypto.SecureCompare(record.Token, token) {
		return ErrTokenMismatch
	}

	// Consume: the flag flips together with the successful check, so a
	// second verification of the same token fails.
	record.Used = true
	ttl := record.ExpiresAt.Sub(now)
	if err := s.kv.Set(ctx, sessionID, record, ttl); err != nil {
		return fmt.Errorf("consume csrf token: %w", err)
	}
	return nil
}

// Drop discards the session's token, e.g. on logout.
func (s *Store) Drop(ctx context.Context, sessionID string) error {
	return s.kv.Delete(ctx, sessionID)
}

// Sweep removes expired and consumed tokens. The TTL backend already
// expires most of them; this catches consumed records early.
func (s *Store) Sweep(ctx context.Context) int {
	now := s.now()
	var stale []string
	_ = s.kv.ForEach(ctx, func(key string, record domain.CSRFToken) bool {
		if record.Used || now.After(record.ExpiresAt) {
			stale = append(stale, key)
		}
		return true
	})
	for _, key := range stale {
		_ = s.kv.Delete(ctx, key)
	}
	return len(stale)
}
