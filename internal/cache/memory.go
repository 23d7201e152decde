package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is an in-process namespaced cache guarded by a single RWMutex,
// following the same double-checked-locking shape the teacher's ReadThrough
// helper uses for single-value caches, generalized here to a namespace/key
// keyspace with per-entry TTL and periodic janitor cleanup.
type MemoryCache struct {
	mu         sync.RWMutex
	data       map[string]map[string]entry
	defaultTTL time.Duration
	stopOnce   sync.Once
	stopCh     chan struct{}
}

// NewMemoryCache constructs an in-process cache with a background janitor
// that sweeps expired entries every sweepInterval.
func NewMemoryCache(defaultTTL, sweepInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		data:       make(map[string]map[string]entry),
		defaultTTL: defaultTTL,
		stopCh:     make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.janitor(sweepInterval)
	}
	return c
}

func (c *MemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep(time.Now())
		case <-c.stopCh:
			return
		}
	}
}

func (c *MemoryCache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ns, bucket := range c.data {
		for key, e := range bucket {
			if e.expired(now) {
				delete(bucket, key)
			}
		}
		if len(bucket) == 0 {
			delete(c.data, ns)
		}
	}
}

// Close stops the background janitor goroutine.
func (c *MemoryCache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	now := time.Now()
	c.mu.RLock()
	bucket, ok := c.data[namespace]
	if !ok {
		c.mu.RUnlock()
		return nil, false, nil
	}
	e, ok := bucket[key]
	c.mu.RUnlock()
	if !ok || e.expired(now) {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	bucket, ok := c.data[namespace]
	if !ok {
		bucket = make(map[string]entry)
		c.data[namespace] = bucket
	}
	bucket[key] = entry{value: value, expiresAt: expiresAt}
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(_ context.Context, namespace, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bucket, ok := c.data[namespace]; ok {
		delete(bucket, key)
	}
	return nil
}

// InvalidateNamespace implements Cache.
func (c *MemoryCache) InvalidateNamespace(_ context.Context, namespace string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, namespace)
	return nil
}

// Incr implements Counter. The counter is stored as its decimal ASCII
// representation so it shares the same entry type (and TTL/sweep machinery)
// as every other cached value.
func (c *MemoryCache) Incr(_ context.Context, namespace, key string, delta int64, ttl time.Duration) (int64, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.data[namespace]
	if !ok {
		bucket = make(map[string]entry)
		c.data[namespace] = bucket
	}

	existing, live := bucket[key]
	live = live && !existing.expired(now)

	var current int64
	expiresAt := existing.expiresAt
	if live {
		current, _ = strconv.ParseInt(string(existing.value), 10, 64)
	} else {
		if ttl <= 0 {
			ttl = c.defaultTTL
		}
		if ttl > 0 {
			expiresAt = now.Add(ttl)
		} else {
			expiresAt = time.Time{}
		}
	}

	next := current + delta
	bucket[key] = entry{value: []byte(strconv.FormatInt(next, 10)), expiresAt: expiresAt}
	return next, nil
}
