// Package cache implements the gateway's Policy Cache (C1): a namespaced,
// read-through/write-through cache for the Config Resolver's hot-path
// lookups (apis, endpoints, users, groups, routings, tiers).
package cache

import (
	"context"
	"time"
)

// Cache is the namespaced key/value store the Config Resolver reads through
// on every request. Keys are scoped by namespace so unrelated entity types
// (e.g. "api" vs "user") never collide and can be invalidated independently.
type Cache interface {
	// Get returns the raw bytes stored under namespace/key, or ok=false on a miss.
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)

	// Set stores value under namespace/key with the given TTL. A TTL of zero
	// uses the cache's configured default.
	Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error

	// Delete removes a single namespace/key entry, used to invalidate a
	// policy document whether the write that triggered it succeeded or failed.
	Delete(ctx context.Context, namespace, key string) error

	// InvalidateNamespace drops every entry in a namespace, used when a
	// bulk operation (e.g. reloading routings) makes per-key invalidation
	// impractical.
	InvalidateNamespace(ctx context.Context, namespace string) error
}

// Counter is implemented by cache backends that can perform an atomic
// increment-and-fetch, the primitive the rate/bandwidth limiter builds its
// fixed-window counters on (the distributed backend's INCR + EXPIRE pair;
// the in-process backend's mutex-guarded counter map).
type Counter interface {
	// Incr adds delta to the counter at namespace/key, creating it with the
	// given TTL if absent, and returns the post-increment value. The TTL is
	// only applied on creation, mirroring Redis's INCR-then-EXPIRE-if-new
	// pattern so a window's expiry is fixed at its first increment.
	Incr(ctx context.Context, namespace, key string, delta int64, ttl time.Duration) (int64, error)
}

// ReadThrough fetches a value via fetch, marshals it with encode, and caches the
// encoded form before returning. On a cache hit decode is used to reconstruct
// the typed value without touching the origin store.
func ReadThrough[T any](ctx context.Context, c Cache, namespace, key string, ttl time.Duration, decode func([]byte) (T, error), encode func(T) ([]byte, error), fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	if raw, ok, err := c.Get(ctx, namespace, key); err == nil && ok {
		if value, decErr := decode(raw); decErr == nil {
			return value, nil
		}
		// A decode failure means the cached blob is stale/corrupt; fall through
		// to the origin fetch rather than surface a decode error to the caller.
	}

	value, err := fetch(ctx)
	if err != nil {
		return zero, err
	}

	if raw, encErr := encode(value); encErr == nil {
		_ = c.Set(ctx, namespace, key, raw, ttl)
	}

	return value, nil
}

// WriteThrough performs a mutating operation against the origin store and
// invalidates the cached entry for key regardless of whether the operation
// succeeded, since a failed write can still have partially applied (e.g. a
// document version bump before a downstream constraint violation).
func WriteThrough(ctx context.Context, c Cache, namespace, key string, operation func() error) error {
	err := operation()
	if delErr := c.Delete(ctx, namespace, key); delErr != nil && err == nil {
		return delErr
	}
	return err
}
