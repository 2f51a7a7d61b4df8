package store

import (
	"context"
	"testing"
	"time"
)

func TestMemorySetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[string]()
	defer m.Close()

	if err := m.Set(ctx, "a", "one", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := m.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "one" {
		t.Errorf("got %q, want %q", got, "one")
	}

	if _, err := m.Get(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[int]()
	defer m.Close()

	m.Set(ctx, "short", 1, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if _, err := m.Get(ctx, "short"); err != ErrNotFound {
		t.Errorf("expected expired entry to be gone, got err=%v", err)
	}
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[string]()
	defer m.Close()

	m.Set(ctx, "a", "one", 0)
	if err := m.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Get(ctx, "a"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	// Idempotent
	if err := m.Delete(ctx, "a"); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestMemoryForEachAndLen(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[int]()
	defer m.Close()

	m.Set(ctx, "a", 1, time.Minute)
	m.Set(ctx, "b", 2, time.Minute)
	m.Set(ctx, "c", 3, time.Minute)

	n, err := m.Len(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Len = %d, %v; want 3", n, err)
	}

	seen := map[string]int{}
	m.ForEach(ctx, func(key string, value int) bool {
		seen[key] = value
		return true
	})
	if len(seen) != 3 || seen["b"] != 2 {
		t.Errorf("ForEach visited %v", seen)
	}

	// Early stop
	var visits int
	m.ForEach(ctx, func(string, int) bool {
		visits++
		return false
	})
	if visits != 1 {
		t.Errorf("ForEach should stop after fn returns false, visited %d", visits)
	}
}
