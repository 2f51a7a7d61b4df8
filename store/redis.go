package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements KV on a shared Redis instance so that multiple site
// processes see the same sessions, tokens and attempt records. Values are
// stored as JSON under a namespacing prefix.
type Redis[V any] struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed table. prefix namespaces the keys, e.g.
// "websec:sessions".
func NewRedis[V any](client *redis.Client, prefix string) *Redis[V] {
	return &Redis[V]{client: client, prefix: prefix}
}

func (r *Redis[V]) key(key string) string {
	return fmt.Sprintf("%s:%s", r.prefix, key)
}

// Get implements KV.Get.
func (r *Redis[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, ErrNotFound
		}
		return zero, fmt.Errorf("redis get %s: %w", key, err)
	}
	var value V
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, fmt.Errorf("redis decode %s: %w", key, err)
	}
	return value, nil
}

// Set implements KV.Set.
func (r *Redis[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis encode %s: %w", key, err)
	}
	if ttl < 0 {
		ttl = 0 // go-redis treats 0 as no expiry
	}
	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete implements KV.Delete.
func (r *Redis[V]) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// ForEach implements KV.ForEach using SCAN over the prefix.
func (r *Redis[V]) ForEach(ctx context.Context, fn func(key string, value V) bool) error {
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	skip := len(r.prefix) + 1
	for iter.Next(ctx) {
		full := iter.Val()
		data, err := r.client.Get(ctx, full).Bytes()
		if err != nil {
			// Key may have expired between SCAN and GET.
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("redis scan get %s: %w", full, err)
		}
		var value V
		if err := json.Unmarshal(data, &value); err != nil {
			continue
		}
		if !fn(full[skip:], value) {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", r.prefix, err)
	}
	return nil
}

// Len implements KV.Len by counting the prefix keyspace.
func (r *Redis[V]) Len(ctx context.Context) (int, error) {
	var n int
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan %s: %w", r.prefix, err)
	}
	return n, nil
}

// Close is a no-op; the redis client is owned by the caller.
func (r *Redis[V]) Close() error {
	return nil
}
