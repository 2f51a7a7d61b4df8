// Package loginguard tracks failed login attempts per source IP and
// applies the brute-force lockout policy.
package loginguard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/veloursalon/websec/domain"
	"github.com/veloursalon/websec/store"
)

// Policy is the lockout policy. The default mirrors production: 5 attempts
// inside a 1 hour window, then a 15 minute lockout.
type Policy struct {
	MaxAttempts     int
	AttemptWindow   time.Duration
	LockoutDuration time.Duration
}

// DefaultPolicy returns the production lockout policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     5,
		AttemptWindow:   time.Hour,
		LockoutDuration: 15 * time.Minute,
	}
}

// Decision is the answer to "may this IP attempt a login right now".
type Decision struct {
	Allowed           bool
	RemainingAttempts int
	LockedUntil       time.Time // zero unless denied by an active lockout
}

// Guard owns the attempt table. The mutex keeps check/increment sequences
// atomic within the process.
type Guard struct {
	mu     sync.Mutex
	kv     store.KV[domain.LoginAttemptRecord]
	policy Policy
	now    func() time.Time
}

// New creates a guard with the given policy. Zero policy fields fall back
// to the defaults.
func New(kv store.KV[domain.LoginAttemptRecord], policy Policy) *Guard {
	def := DefaultPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.AttemptWindow <= 0 {
		policy.AttemptWindow = def.AttemptWindow
	}
	if policy.LockoutDuration <= 0 {
		policy.LockoutDuration = def.LockoutDuration
	}
	return &Guard{kv: kv, policy: policy, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// CheckAllowed decides whether a login attempt from sourceIP may proceed.
// An elapsed attempt window clears the record; an active lockout denies
// with the release time.
func (g *Guard) CheckAllowed(ctx context.Context, sourceIP string) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	record, err := g.kv.Get(ctx, sourceIP)
	if err != nil {
		return Decision{Allowed: true, RemainingAttempts: g.policy.MaxAttempts}, nil
	}

	now := g.now()
	if record.Locked(now) {
		return Decision{Allowed: false, LockedUntil: record.LockedUntil}, nil
	}
	if now.Sub(record.LastAttemptAt) > g.policy.AttemptWindow {
		_ = g.kv.Delete(ctx, sourceIP)
		return Decision{Allowed: true, RemainingAttempts: g.policy.MaxAttempts}, nil
	}

	remaining := g.policy.MaxAttempts - record.Attempts
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, RemainingAttempts: remaining}, nil
}

// RecordFailure counts one failed attempt. Reaching the maximum sets the
// lockout; the lock does not clear until its window elapses.
// It returns the updated record for event details.
func (g *Guard) RecordFailure(ctx context.Context, sourceIP string) (domain.LoginAttemptRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	record, err := g.kv.Get(ctx, sourceIP)
	if err != nil || now.Sub(record.LastAttemptAt) > g.policy.AttemptWindow {
		record = domain.LoginAttemptRecord{SourceIP: sourceIP}
	}

	record.Attempts++
	record.LastAttemptAt = now
	if record.Attempts >= g.policy.MaxAttempts && !record.Locked(now) {
		record.LockedUntil = now.Add(g.policy.LockoutDuration)
	}

	// Keep the record for the longer of the window and the lockout.
	ttl := g.policy.AttemptWindow
	if record.Locked(now) && g.policy.LockoutDuration > ttl {
		ttl = g.policy.LockoutDuration
	}
	if err := g.kv.Set(ctx, sourceIP, record, ttl); err != nil {
		return record, fmt.Errorf("store attempt record: %w", err)
	}
	return record, nil
}

// RecordSuccess deletes the attempt record unconditionally.
func (g *Guard) RecordSuccess(ctx context.Context, sourceIP string) error {
	return g.kv.Delete(ctx, sourceIP)
}

// Sweep drops records whose window and lockout have both elapsed.
func (g *Guard) Sweep(ctx context.Context) int {
	now := g.now()
	var stale []string
	_ = g.kv.ForEach(ctx, func(key string, record domain.LoginAttemptRecord) bool {
		if !record.Locked(now) && now.Sub(record.LastAttemptAt) > g.policy.AttemptWindow {
			stale = append(stale, key)
		}
		return true
	})
	for _, key := range stale {
		_ = g.kv.Delete(ctx, key)
	}
	return len(stale)
}

// Policy exposes the active policy, e.g. for handler messages.
func (g *Guard) Policy() Policy {
	return g.policy
}
