package limiter

import (
	"context"
	"sync"
	"time"
)

// perUserThrottle is a bounded FIFO admission gate: capacity slots, and a
// request waits at most wait for one to free up, grounded on the spec's own semaphore-plus-wait
// description (§4.5). No example repo in the pack implements a bounded-queue
// timed-wait limiter (httprate and golang.org/x/time/rate both model
// unbounded token buckets), so this is built directly on stdlib sync
// primitives rather than adapted from a teacher file.
type perUserThrottle struct {
	slots chan struct{}
	wait  time.Duration
}

func newPerUserThrottle(capacity int, wait time.Duration) *perUserThrottle {
	return &perUserThrottle{slots: make(chan struct{}, capacity), wait: wait}
}

// acquire reserves a slot, blocking up to t.wait. It reports false if the
// queue was already full and no slot freed up in time; the caller must call
// the returned release func once its request completes when true is returned.
func (t *perUserThrottle) acquire(ctx context.Context) (release func(), ok bool) {
	timer := time.NewTimer(t.wait)
	defer timer.Stop()

	select {
	case t.slots <- struct{}{}:
		return func() { <-t.slots }, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// ThrottleRegistry holds one perUserThrottle per username, created lazily so
// the configured bound only needs to be known at first use.
type ThrottleRegistry struct {
	mu    sync.Mutex
	users map[string]*perUserThrottle
}

// NewThrottleRegistry builds an empty registry.
func NewThrottleRegistry() *ThrottleRegistry {
	return &ThrottleRegistry{users: make(map[string]*perUserThrottle)}
}

func (r *ThrottleRegistry) forUser(username string, capacity int, wait time.Duration) *perUserThrottle {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.users[username]
	if !ok {
		t = newPerUserThrottle(capacity, wait)
		r.users[username] = t
	}
	return t
}

var noopRelease = func() {}

// enforceThrottle acquires a FIFO slot for the request's user, returning a
// release func the pipeline must call once the proxied request completes so
// the slot becomes available to the next queued request.
func (l *Limiter) enforceThrottle(ctx context.Context, req Request) (func(), error) {
	capacity := l.cfg.DefaultThrottleQueueLimit
	wait := l.cfg.DefaultThrottleWait.Duration
	if v, ok := req.User["throttle_queue_limit"].(float64); ok && v > 0 {
		capacity = int(v)
	}
	if v, ok := req.User["throttle_wait_seconds"].(float64); ok && v > 0 {
		wait = time.Duration(v) * time.Second
	}
	if capacity <= 0 {
		return noopRelease, nil
	}

	t := l.throttle.forUser(req.Username, capacity, wait)
	release, ok := t.acquire(ctx)
	if !ok {
		l.observeReject("throttle", req.Username)
		return nil, ErrRateLimited
	}
	return release, nil
}
