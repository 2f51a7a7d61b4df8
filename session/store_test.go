package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloursalon/websec/domain"
	"github.com/veloursalon/websec/seclog"
	"github.com/veloursalon/websec/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testRC() domain.RequestContext {
	return domain.RequestContext{
		Method:    "GET",
		Path:      "/account",
		SourceIP:  "192.0.2.10",
		UserAgent: "Mozilla/5.0 test",
	}
}

func newTestStore(t *testing.T, clock *fakeClock) (*Store, *seclog.Log) {
	t.Helper()
	kv := store.NewMemory[domain.Session]()
	t.Cleanup(func() { kv.Close() })
	events := seclog.New(nil, seclog.Options{Now: clock.Now, Notifier: nopNotifier{}})
	return NewStore(kv, DefaultProfiles(false), events).WithClock(clock.Now), events
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.Alert) {}

func TestCreateAndValidate(t *testing.T) {
	clock := newFakeClock()
	s, _ := newTestStore(t, clock)
	ctx := context.Background()

	sess, err := s.Create(ctx, "u1", "lea@velour.example", domain.RoleUser, testRC())
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, sess.CreatedAt, sess.LastActivityAt)

	clock.Advance(10 * time.Minute)
	got, needsRenewal, err := s.Validate(ctx, sess.ID, testRC())
	require.NoError(t, err)
	assert.False(t, needsRenewal)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, clock.Now(), got.LastActivityAt, "validation must touch LastActivityAt")
}

func TestValidateUnknownSession(t *testing.T) {
	clock := newFakeClock()
	s, _ := newTestStore(t, clock)

	_, _, err := s.Validate(context.Background(), "no-such-id", testRC())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestIdleTimeout(t *testing.T) {
	clock := newFakeClock()
	s, _ := newTestStore(t, clock)
	ctx := context.Background()

	sess, err := s.Create(ctx, "u1", "lea@velour.example", domain.RoleUser, testRC())
	require.NoError(t, err)

	clock.Advance(2*time.Hour + time.Minute)
	_, _, err = s.Validate(ctx, sess.ID, testRC())
	assert.ErrorIs(t, err, ErrSessionExpired)

	// Fail-closed: the record is gone, not retried.
	_, _, err = s.Validate(ctx, sess.ID, testRC())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAbsoluteTimeoutDespiteActivity(t *testing.T) {
	clock := newFakeClock()
	s, _ := newTestStore(t, clock)
	ctx := context.Background()

	sess, err := s.Create(ctx, "u1", "lea@velour.example", domain.RoleUser, testRC())
	require.NoError(t, err)

	// Touch every idleTimeout-1s; the session stays alive on idle grounds
	// but dies once absolute age passes maxAge.
	step := 2*time.Hour - time.Second
	var lastErr error
	for clock.Now().Sub(sess.CreatedAt) <= 24*time.Hour {
		clock.Advance(step)
		_, _, lastErr = s.Validate(ctx, sess.ID, testRC())
		if lastErr != nil {
			break
		}
	}
	assert.ErrorIs(t, lastErr, ErrSessionExpired, "recently active session must still die at maxAge")
}

func TestAdminProfileIsStricter(t *testing.T) {
	clock := newFakeClock()
	s, _ := newTestStore(t, clock)
	ctx := context.Background()

	sess, err := s.Create(ctx, "a1", "admin@velour.example", domain.RoleAdmin, testRC())
	require.NoError(t, err)

	// 31 minutes idle kills an admin session but not a user one.
	clock.Advance(31 * time.Minute)
	_, _, err = s.Validate(ctx, sess.ID, testRC())
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestHijackDetection(t *testing.T) {
	clock := newFakeClock()
	s, events := newTestStore(t, clock)
	ctx := context.Background()

	sess, err := s.Create(ctx, "u1", "lea@velour.example", domain.RoleUser, testRC())
	require.NoError(t, err)

	attacker := testRC()
	attacker.SourceIP = "198.51.100.66"
	_, _, err = s.Validate(ctx, sess.ID, attacker)
	assert.ErrorIs(t, err, ErrSessionHijacked)

	// Session must be deleted.
	_, _, err = s.Validate(ctx, sess.ID, testRC())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Exactly one hijack event was logged.
	hijacks := 0
	for _, ev := range events.Events(0) {
		if ev.Type == domain.EventSessionHijackAttempt {
			hijacks++
			assert.Equal(t, domain.SeverityHigh, ev.Severity)
			assert.Equal(t, "u1", ev.UserID)
		}
	}
	assert.Equal(t, 1, hijacks)
}

func TestHijackDetectionUserAgent(t *testing.T) {
	clock := newFakeClock()
	s, _ := newTestStore(t, clock)
	ctx := context.Background()

	sess, err := s.Create(ctx, "u1", "lea@velour.example", domain.RoleUser, testRC())
	require.NoError(t, err)

	other := testRC()
	other.UserAgent = "curl/8.0"
	_, _, err = s.Validate(ctx, sess.ID, other)
	assert.ErrorIs(t, err, ErrSessionHijacked)
}

func TestRenewal(t *testing.T) {
	clock := newFakeClock()
	s, _ := newTestStore(t, clock)
	ctx := context.Background()

	sess, err := s.Create(ctx, "u1", "lea@velour.example", domain.RoleUser, testRC())
	require.NoError(t, err)

	// Past the renewal threshold but inside the idle timeout.
	clock.Advance(90 * time.Minute)
	current, needsRenewal, err := s.Validate(ctx, sess.ID, testRC())
	require.NoError(t, err)
	assert.True(t, needsRenewal)

	renewed, err := s.Renew(ctx, current)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, renewed.ID)
	assert.Equal(t, sess.UserID, renewed.UserID)
	assert.Equal(t, sess.CreatedAt, renewed.CreatedAt, "renewal keeps absolute age")

	// Old id is dead, new one works.
	_, _, err = s.Validate(ctx, sess.ID, testRC())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, _, err = s.Validate(ctx, renewed.ID, testRC())
	assert.NoError(t, err)
}

func TestDestroyAllUserSessions(t *testing.T) {
	clock := newFakeClock()
	s, _ := newTestStore(t, clock)
	ctx := context.Background()

	a, _ := s.Create(ctx, "u1", "lea@velour.example", domain.RoleUser, testRC())
	b, _ := s.Create(ctx, "u1", "lea@velour.example", domain.RoleUser, testRC())
	c, _ := s.Create(ctx, "u2", "zoe@velour.example", domain.RoleUser, testRC())

	require.NoError(t, s.DestroyAllUserSessions(ctx, "u1"))

	_, _, err := s.Validate(ctx, a.ID, testRC())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, _, err = s.Validate(ctx, b.ID, testRC())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, _, err = s.Validate(ctx, c.ID, testRC())
	assert.NoError(t, err)
}

func TestSweep(t *testing.T) {
	clock := newFakeClock()
	s, _ := newTestStore(t, clock)
	ctx := context.Background()

	s.Create(ctx, "u1", "lea@velour.example", domain.RoleUser, testRC())
	clock.Advance(3 * time.Hour) // past user idle timeout
	s.Create(ctx, "u2", "zoe@velour.example", domain.RoleUser, testRC())

	removed := s.Sweep(ctx)
	assert.Equal(t, 1, removed)
}
