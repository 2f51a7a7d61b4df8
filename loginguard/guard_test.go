package loginguard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloursalon/websec/domain"
	"github.com/veloursalon/websec/store"
)

func newTestGuard(t *testing.T) (*Guard, *time.Time) {
	t.Helper()
	kv := store.NewMemory[domain.LoginAttemptRecord]()
	t.Cleanup(func() { kv.Close() })
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	g := New(kv, Policy{}).WithClock(func() time.Time { return now })
	return g, &now
}

func TestFirstAttemptAllowed(t *testing.T) {
	g, _ := newTestGuard(t)

	d, err := g.CheckAllowed(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 5, d.RemainingAttempts)
}

func TestLockoutArithmetic(t *testing.T) {
	g, now := newTestGuard(t)
	ctx := context.Background()
	const ip = "10.0.0.1"

	for i := 0; i < 5; i++ {
		rec, err := g.RecordFailure(ctx, ip)
		require.NoError(t, err)
		assert.Equal(t, i+1, rec.Attempts)
	}

	d, err := g.CheckAllowed(ctx, ip)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "sixth attempt must be denied")
	assert.Equal(t, now.Add(15*time.Minute), d.LockedUntil)

	// Lock holds until the lockout window elapses.
	*now = now.Add(10 * time.Minute)
	d, _ = g.CheckAllowed(ctx, ip)
	assert.False(t, d.Allowed)

	*now = now.Add(6 * time.Minute)
	d, _ = g.CheckAllowed(ctx, ip)
	assert.True(t, d.Allowed, "lockout must auto-release after 15 minutes")
}

func TestRemainingAttemptsCountdown(t *testing.T) {
	g, _ := newTestGuard(t)
	ctx := context.Background()
	const ip = "10.0.0.2"

	g.RecordFailure(ctx, ip)
	g.RecordFailure(ctx, ip)

	d, err := g.CheckAllowed(ctx, ip)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.RemainingAttempts)
}

func TestSuccessResetsImmediately(t *testing.T) {
	g, _ := newTestGuard(t)
	ctx := context.Background()
	const ip = "10.0.0.3"

	for i := 0; i < 5; i++ {
		g.RecordFailure(ctx, ip)
	}
	d, _ := g.CheckAllowed(ctx, ip)
	require.False(t, d.Allowed)

	require.NoError(t, g.RecordSuccess(ctx, ip))
	d, _ = g.CheckAllowed(ctx, ip)
	assert.True(t, d.Allowed)
	assert.Equal(t, 5, d.RemainingAttempts)
}

func TestWindowExpiryClearsRecord(t *testing.T) {
	g, now := newTestGuard(t)
	ctx := context.Background()
	const ip = "10.0.0.4"

	g.RecordFailure(ctx, ip)
	g.RecordFailure(ctx, ip)

	*now = now.Add(time.Hour + time.Minute)
	d, err := g.CheckAllowed(ctx, ip)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 5, d.RemainingAttempts, "stale window must reset the counter")

	// A failure after the window starts a fresh record.
	rec, err := g.RecordFailure(ctx, ip)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)
}

func TestSweep(t *testing.T) {
	g, now := newTestGuard(t)
	ctx := context.Background()

	g.RecordFailure(ctx, "10.0.0.5")
	*now = now.Add(2 * time.Hour)
	g.RecordFailure(ctx, "10.0.0.6")

	assert.Equal(t, 1, g.Sweep(ctx))
}

func TestIndependentSources(t *testing.T) {
	g, _ := newTestGuard(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		g.RecordFailure(ctx, "10.0.0.7")
	}
	d, _ := g.CheckAllowed(ctx, "10.0.0.7")
	assert.False(t, d.Allowed)

	d, _ = g.CheckAllowed(ctx, "10.0.0.8")
	assert.True(t, d.Allowed, "lockout must be per source IP")
}
