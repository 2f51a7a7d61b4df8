// Package store provides the key-value abstraction behind every mutable
// table in the security core (sessions, CSRF tokens, login attempts).
//
// Two implementations exist: a process-local one on ttlcache and a shared
// one on Redis. They are interchangeable, which is what keeps security
// state coherent once the site runs more than one instance.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("store: key not found")

// KV is a typed key-value table with per-entry TTL.
type KV[V any] interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (V, error)
	// Set stores value under key. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// ForEach visits every live entry until fn returns false.
	ForEach(ctx context.Context, fn func(key string, value V) bool) error
	// Len reports the number of live entries.
	Len(ctx context.Context) (int, error)
	// Close releases background resources.
	Close() error
}
