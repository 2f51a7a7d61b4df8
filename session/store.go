// Package session manages the lifecycle of authenticated browser sessions:
// creation, validation against absolute/idle timeouts and the bound
// (IP, user-agent) pair, silent renewal, destruction and periodic sweep.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/veloursalon/websec/domain"
	"github.com/veloursalon/websec/internal/crypto"
	"github.com/veloursalon/websec/seclog"
	"github.com/veloursalon/websec/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionHijacked = errors.New("session context mismatch")
)

// Profile is the per-role session policy.
type Profile struct {
	MaxAge           time.Duration
	IdleTimeout      time.Duration
	RenewalThreshold time.Duration
	CookieSecure     bool
	CookieSameSite   http.SameSite
}

// Profiles holds the two recognized policies: a stricter one for admin
// sessions and the default for everyone else.
type Profiles struct {
	Admin   Profile
	Default Profile
}

// DefaultProfiles returns the production policy: admin sessions 8h/30m,
// regular sessions 24h/2h.
func DefaultProfiles(cookieSecure bool) Profiles {
	return Profiles{
		Admin: Profile{
			MaxAge:           8 * time.Hour,
			IdleTimeout:      30 * time.Minute,
			RenewalThreshold: 15 * time.Minute,
			CookieSecure:     cookieSecure,
			CookieSameSite:   http.SameSiteStrictMode,
		},
		Default: Profile{
			MaxAge:           24 * time.Hour,
			IdleTimeout:      2 * time.Hour,
			RenewalThreshold: time.Hour,
			CookieSecure:     cookieSecure,
			CookieSameSite:   http.SameSiteStrictMode,
		},
	}
}

// For returns the profile that applies to a role.
func (p Profiles) For(role domain.Role) Profile {
	if role == domain.RoleAdmin {
		return p.Admin
	}
	return p.Default
}

// Store owns the session table. The mutex serializes read-modify-write
// sequences within this process; cross-process coherence comes from using
// a shared store.KV backend.
type Store struct {
	mu       sync.Mutex
	kv       store.KV[domain.Session]
	profiles Profiles
	events   *seclog.Log
	now      func() time.Time
}

// NewStore creates a session store. events may be nil in tests that do not
// assert on hijack logging.
func NewStore(kv store.KV[domain.Session], profiles Profiles, events *seclog.Log) *Store {
	return &Store{
		kv:       kv,
		profiles: profiles,
		events:   events,
		now:      time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Create mints a new session bound to the request's (IP, user-agent) pair.
func (s *Store) Create(ctx context.Context, userID, email string, role domain.Role, rc domain.RequestContext) (*domain.Session, error) {
	id, err := crypto.GenerateToken(crypto.TokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	now := s.now()
	sess := domain.Session{
		ID:             id,
		UserID:         userID,
		Email:          email,
		Role:           role,
		CreatedAt:      now,
		LastActivityAt: now,
		BoundIP:        rc.SourceIP,
		BoundUserAgent: rc.UserAgent,
	}
	if err := s.kv.Set(ctx, id, sess, s.profiles.For(role).MaxAge); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return &sess, nil
}

// Validate checks a presented session id against the stored record. On
// success it updates LastActivityAt and reports whether the session is due
// for id renewal. Any (IP, user-agent) mismatch is treated as a hijack
// attempt: the session is deleted, the event logged, and the check fails
// closed.
func (s *Store) Validate(ctx context.Context, sessionID string, rc domain.RequestContext) (*domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.kv.Get(ctx, sessionID)
	if err != nil {
		return nil, false, ErrSessionNotFound
	}

	now := s.now()
	profile := s.profiles.For(sess.Role)

	if sess.Age(now) > profile.MaxAge || sess.Idle(now) > profile.IdleTimeout {
		_ = s.kv.Delete(ctx, sessionID)
		return nil, false, ErrSessionExpired
	}

	if sess.BoundIP != rc.SourceIP || sess.BoundUserAgent != rc.UserAgent {
		_ = s.kv.Delete(ctx, sessionID)
		if s.events != nil {
			s.events.Record(ctx, domain.EventSessionHijackAttempt, rc, map[string]string{
				"bound_ip":            sess.BoundIP,
				"presented_ip":        rc.SourceIP,
				"user_agent_mismatch": boolString(sess.BoundUserAgent != rc.UserAgent),
			}, sess.UserID)
		}
		return nil, false, ErrSessionHijacked
	}

	needsRenewal := sess.Idle(now) > profile.RenewalThreshold

	sess.LastActivityAt = now
	if err := s.kv.Set(ctx, sessionID, sess, remainingTTL(sess, profile, now)); err != nil {
		return nil, false, fmt.Errorf("touch session: %w", err)
	}
	return &sess, needsRenewal, nil
}

// Renew replaces the session id while keeping the payload. The old id is
// deleted and never reused.
func (s *Store) Renew(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	id, err := crypto.GenerateToken(crypto.TokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	renewed := *sess
	renewed.ID = id
	renewed.LastActivityAt = now

	profile := s.profiles.For(sess.Role)
	if err := s.kv.Set(ctx, id, renewed, remainingTTL(renewed, profile, now)); err != nil {
		return nil, fmt.Errorf("store renewed session: %w", err)
	}
	_ = s.kv.Delete(ctx, sess.ID)
	return &renewed, nil
}

// Destroy removes a session. Idempotent.
func (s *Store) Destroy(ctx context.Context, sessionID string) error {
	return s.kv.Delete(ctx, sessionID)
}

// DestroyAllUserSessions removes every session belonging to a user, e.g.
// after a password change.
func (s *Store) DestroyAllUserSessions(ctx context.Context, userID string) error {
	var ids []string
	err := s.kv.ForEach(ctx, func(key string, sess domain.Session) bool {
		if sess.UserID == userID {
			ids = append(ids, key)
		}
		return true
	})
	if err != nil {
		return err
	}
	for _, id := range ids {
		_ = s.kv.Delete(ctx, id)
	}
	return nil
}

// Sweep deletes every session past its absolute or idle limit. It bounds
// memory growth from abandoned sessions and runs on the maintenance tick.
func (s *Store) Sweep(ctx context.Context) int {
	now := s.now()
	var expired []string
	_ = s.kv.ForEach(ctx, func(key string, sess domain.Session) bool {
		profile := s.profiles.For(sess.Role)
		if sess.Age(now) > profile.MaxAge || sess.Idle(now) > profile.IdleTimeout {
			expired = append(expired, key)
		}
		return true
	})
	for _, id := range expired {
		_ = s.kv.Delete(ctx, id)
	}
	return len(expired)
}

// CookieProfile exposes the cookie attributes for a role, used by the HTTP
// layer when setting the session cookie.
func (s *Store) CookieProfile(role domain.Role) Profile {
	return s.profiles.For(role)
}

func remainingTTL(sess domain.Session, profile Profile, now time.Time) time.Duration {
	ttl := profile.MaxAge - sess.Age(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
