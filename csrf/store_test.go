package csrf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloursalon/websec/domain"
	"github.com/veloursalon/websec/store"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	kv := store.NewMemory[domain.CSRFToken]()
	t.Cleanup(func() { kv.Close() })
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s := NewStore(kv, 0).WithClock(func() time.Time { return now })
	return s, &now
}

func TestIssueAndVerify(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	token, err := s.Issue(ctx, "sess-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, s.Verify(ctx, "sess-1", token))
}

func TestSingleUse(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	token, err := s.Issue(ctx, "sess-1")
	require.NoError(t, err)

	require.NoError(t, s.Verify(ctx, "sess-1", token))
	assert.ErrorIs(t, s.Verify(ctx, "sess-1", token), ErrTokenUsed,
		"second verification of the same token must fail")
}

func TestVerifyFailsClosed(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()

	t.Run("NoRecord", func(t *testing.T) {
		assert.ErrorIs(t, s.Verify(ctx, "unknown", "whatever"), ErrTokenMissing)
	})

	t.Run("Mismatch", func(t *testing.T) {
		_, err := s.Issue(ctx, "sess-2")
		require.NoError(t, err)
		assert.ErrorIs(t, s.Verify(ctx, "sess-2", "wrong-token"), ErrTokenMismatch)
	})

	t.Run("Expired", func(t *testing.T) {
		token, err := s.Issue(ctx, "sess-3")
		require.NoError(t, err)
		*now = now.Add(DefaultExpiry + time.Minute)
		assert.ErrorIs(t, s.Verify(ctx, "sess-3", token), ErrTokenExpired)
	})
}

func TestIssueOverwrites(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.Issue(ctx, "sess-1")
	require.NoError(t, err)
	second, err := s.Issue(ctx, "sess-1")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	// Only the latest token is live.
	assert.ErrorIs(t, s.Verify(ctx, "sess-1", first), ErrTokenMismatch)
	assert.NoError(t, s.Verify(ctx, "sess-1", second))
}

func TestSweepRemovesConsumed(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	token, err := s.Issue(ctx, "sess-1")
	require.NoError(t, err)
	require.NoError(t, s.Verify(ctx, "sess-1", token))
	s.Issue(ctx, "sess-2")

	assert.Equal(t, 1, s.Sweep(ctx))
	assert.ErrorIs(t, s.Verify(ctx, "sess-1", token), ErrTokenMissing)
}
