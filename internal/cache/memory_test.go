package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "endpoints", "ep-1", []byte("payload"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	val, ok, err := c.Get(ctx, "endpoints", "ep-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(val) != "payload" {
		t.Errorf("expected payload, got %s", val)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(0, 0)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "apis", "a-1", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	_, ok, err := c.Get(ctx, "apis", "a-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Error("expected entry to have expired")
	}
}

func TestMemoryCache_NamespaceIsolation(t *testing.T) {
	c := NewMemoryCache(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "users", "u-1", []byte("user"), 0)
	c.Set(ctx, "groups", "u-1", []byte("group"), 0)

	val, ok, _ := c.Get(ctx, "users", "u-1")
	if !ok || string(val) != "user" {
		t.Fatalf("expected users namespace to hold its own value, got %s", val)
	}

	c.InvalidateNamespace(ctx, "users")

	if _, ok, _ := c.Get(ctx, "users", "u-1"); ok {
		t.Error("expected users namespace to be cleared")
	}
	if _, ok, _ := c.Get(ctx, "groups", "u-1"); !ok {
		t.Error("expected groups namespace to survive users invalidation")
	}
}

func TestMemoryCache_DeleteOnWriteThroughFailure(t *testing.T) {
	c := NewMemoryCache(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "endpoints", "ep-1", []byte("stale"), 0)

	err := WriteThrough(ctx, c, "endpoints", "ep-1", func() error {
		return context.DeadlineExceeded
	})
	if err == nil {
		t.Fatal("expected the underlying operation error to propagate")
	}

	if _, ok, _ := c.Get(ctx, "endpoints", "ep-1"); ok {
		t.Error("expected cache entry to be invalidated even though the write failed")
	}
}

func TestMemoryCache_Incr(t *testing.T) {
	c := NewMemoryCache(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	for i, want := range []int64{1, 2, 3} {
		got, err := c.Incr(ctx, "rate_limit", "alice", 1, time.Minute)
		if err != nil {
			t.Fatalf("Incr call %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("Incr call %d = %d, want %d", i, got, want)
		}
	}

	got, err := c.Incr(ctx, "rate_limit", "bob", 5, time.Minute)
	if err != nil {
		t.Fatalf("Incr bob: %v", err)
	}
	if got != 5 {
		t.Fatalf("Incr bob = %d, want 5", got)
	}
}

func TestMemoryCache_Incr_ResetsAfterExpiry(t *testing.T) {
	c := NewMemoryCache(0, 0)
	defer c.Close()
	ctx := context.Background()

	if _, err := c.Incr(ctx, "rate_limit", "alice", 1, 10*time.Millisecond); err != nil {
		t.Fatalf("Incr: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	got, err := c.Incr(ctx, "rate_limit", "alice", 1, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Incr after expiry: %v", err)
	}
	if got != 1 {
		t.Fatalf("Incr after expiry = %d, want 1 (window should have reset)", got)
	}
}

func TestMemoryCache_Janitor(t *testing.T) {
	c := NewMemoryCache(0, 10*time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "tiers", "t-1", []byte("v"), 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	c.mu.RLock()
	_, nsExists := c.data["tiers"]
	c.mu.RUnlock()
	if nsExists {
		t.Error("expected janitor to have swept the empty tiers namespace")
	}
}
