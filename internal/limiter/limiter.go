// Package limiter implements the gateway's Rate/Throttle/Bandwidth/Credits
// Limiter (C5): four independent enforcers evaluated in order on every
// proxied request, grounded on CedrosPay-server's internal/ratelimit
// middleware (httprate-based fixed windows, metrics-tagged rejections) and
// generalized from an HTTP-middleware chain to an explicit, pipeline-callable
// enforcer sequence, since the spec models these as pipeline steps rather
// than chi middleware.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cedros-gateway/gateway/internal/cache"
	"github.com/cedros-gateway/gateway/internal/config"
	"github.com/cedros-gateway/gateway/internal/metrics"
	"github.com/cedros-gateway/gateway/internal/store"
)

// ErrRateLimited is returned by Rate/Tier/Throttle/Bandwidth rejections; the
// pipeline maps it to 429 Too Many Requests.
var ErrRateLimited = errors.New("limiter: rate limit exceeded")

// ErrCreditsExhausted is returned when a user's credit balance for an
// api_credit_group is missing or non-positive; the pipeline maps it to the
// spec's 401/402-equivalent response.
var ErrCreditsExhausted = errors.New("limiter: credits exhausted")

// Request carries the fields every enforcer needs, assembled once per
// request by the pipeline so each enforcer stays a pure function of its
// inputs rather than reaching back into the HTTP request itself.
type Request struct {
	Username      string
	Tier          store.Doc // nil if the user has no tier assignment
	User          store.Doc
	API           store.Doc
	ContentLength int64
	IsSuperAdmin  bool
	IsPublicAPI   bool
}

// counterCache is the subset of cache.Cache a Limiter needs; satisfied by
// both cache.MemoryCache and cache.RedisCache.
type counterCache interface {
	cache.Cache
	cache.Counter
}

// Limiter runs the rate, tier, throttle, bandwidth, and credits enforcers in
// the order the spec fixes: tier before user rate (the tier bound must never
// be exceeded even when the user's own allowance is generous), then
// throttle, then bandwidth, then credits last since it is the only enforcer
// that mutates persistent state rather than a cache counter.
type Limiter struct {
	cache    counterCache
	store    store.Store
	throttle *ThrottleRegistry
	cfg      config.RateLimitConfig
	metrics  *metrics.Metrics
}

// New builds a Limiter. c must implement cache.Counter (both shipped cache
// backends do); passing a cache that doesn't satisfies this at the call site
// via a type assertion, matching the fail-fast-at-wiring-time style the
// gateway's other constructors use.
func New(c counterCache, s store.Store, cfg config.RateLimitConfig, m *metrics.Metrics) *Limiter {
	return &Limiter{cache: c, store: s, throttle: NewThrottleRegistry(), cfg: cfg, metrics: m}
}

// Enforce runs every enforcer in order, short-circuiting on the first
// failure. Public APIs skip the credits check entirely; the super-admin user
// is not exempt from any limiter (only from subscription checks, per §4.5).
//
// On success it returns a release func the caller must invoke once the
// proxied request completes (success or failure alike), which frees the
// throttle slot this request occupied; every other enforcer is a point-in-time
// counter check with nothing to release.
func (l *Limiter) Enforce(ctx context.Context, req Request) (release func(), err error) {
	if err := l.enforceTier(ctx, req); err != nil {
		return nil, err
	}
	if err := l.enforceRate(ctx, req); err != nil {
		return nil, err
	}
	release, err = l.enforceThrottle(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := l.enforceBandwidth(ctx, req); err != nil {
		release()
		return nil, err
	}
	if !req.IsPublicAPI {
		if err := l.enforceCredits(ctx, req); err != nil {
			release()
			return nil, err
		}
	}
	return release, nil
}

func windowBucket(now time.Time, window time.Duration) int64 {
	if window <= 0 {
		return 0
	}
	return now.Unix() / int64(window/time.Second)
}

func (l *Limiter) enforceRate(ctx context.Context, req Request) error {
	limit := l.cfg.DefaultRequestsPerWindow
	window := l.cfg.DefaultWindow.Duration
	if v, ok := req.User["rate_limit_requests"].(float64); ok && v > 0 {
		limit = int(v)
	}
	if v, ok := req.User["rate_limit_window_seconds"].(float64); ok && v > 0 {
		window = time.Duration(v) * time.Second
	}
	if limit <= 0 || window <= 0 {
		return nil
	}

	bucket := windowBucket(time.Now(), window)
	key := fmt.Sprintf("%s:%d", req.Username, bucket)

	count, err := l.cache.Incr(ctx, "rate_limit", key, 1, window)
	if err != nil {
		return nil // fail open on a cache outage; rejecting every request would be worse
	}
	if count > int64(limit) {
		l.observeReject("rate", req.Username)
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) enforceTier(ctx context.Context, req Request) error {
	if req.Tier == nil {
		return nil
	}
	limit, ok := req.Tier["requests_per_minute"].(float64)
	if !ok || limit <= 0 {
		return nil
	}

	bucket := windowBucket(time.Now(), time.Minute)
	key := fmt.Sprintf("%s:%v:%d", req.Username, req.Tier.ID(), bucket)

	count, err := l.cache.Incr(ctx, "tier_rate_limit", key, 1, time.Minute)
	if err != nil {
		return nil
	}
	if count > int64(limit) {
		l.observeReject("tier", req.Username)
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) observeReject(scope, identifier string) {
	if l.metrics != nil {
		l.metrics.ObserveRateLimit(scope, identifier)
	}
}
