package store

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Memory implements KV on ttlcache with automatic expiry cleanup.
type Memory[V any] struct {
	cache *ttlcache.Cache[string, V]
}

// NewMemory creates an in-memory table. Touch-on-hit is disabled so reads
// never silently extend an entry's lifetime; the stores above decide when
// a timestamp moves.
func NewMemory[V any]() *Memory[V] {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, V](),
	)

	// Start the expiry cleanup loop.
	go cache.Start()

	return &Memory[V]{cache: cache}
}

// Get implements KV.Get.
func (m *Memory[V]) Get(_ context.Context, key string) (V, error) {
	item := m.cache.Get(key)
	if item == nil {
		var zero V
		return zero, ErrNotFound
	}
	return item.Value(), nil
}

// Set implements KV.Set.
func (m *Memory[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	m.cache.Set(key, value, ttl)
	return nil
}

// Delete implements KV.Delete.
func (m *Memory[V]) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

// ForEach implements KV.ForEach. Expired-but-unswept entries are skipped.
func (m *Memory[V]) ForEach(_ context.Context, fn func(key string, value V) bool) error {
	now := time.Now()
	m.cache.Range(func(item *ttlcache.Item[string, V]) bool {
		if !item.ExpiresAt().IsZero() && item.ExpiresAt().Before(now) {
			return true
		}
		return fn(item.Key(), item.Value())
	})
	return nil
}

// Len implements KV.Len.
func (m *Memory[V]) Len(_ context.Context) (int, error) {
	return m.cache.Len(), nil
}

// Close stops the cleanup goroutine.
func (m *Memory[V]) Close() error {
	m.cache.Stop()
	return nil
}
