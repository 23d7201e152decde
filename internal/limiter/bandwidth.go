package limiter

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// enforceBandwidth checks the pre-request byte budget: the request's
// Content-Length must not push the user's sliding window past its limit.
// This is a peek, not an increment — the bucket only grows once the actual
// request+response byte count is known, via RecordBandwidth.
func (l *Limiter) enforceBandwidth(ctx context.Context, req Request) error {
	limit := l.cfg.DefaultBandwidthLimitBytes
	window := l.cfg.DefaultBandwidthWindow.Duration
	if v, ok := req.User["bandwidth_limit_bytes"].(float64); ok && v > 0 {
		limit = int64(v)
	}
	if v, ok := req.User["bandwidth_window_seconds"].(float64); ok && v > 0 {
		window = time.Duration(v) * time.Second
	}
	if limit <= 0 || window <= 0 {
		return nil
	}

	key := l.bandwidthKey(req.Username, window)
	used, err := l.peekBandwidth(ctx, key)
	if err != nil {
		return nil
	}
	if used+req.ContentLength > limit {
		l.observeReject("bandwidth", req.Username)
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) peekBandwidth(ctx context.Context, key string) (int64, error) {
	raw, ok, err := l.cache.Get(ctx, "bandwidth", key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

// RecordBandwidth adds the actual request+response byte count to the
// caller's current bandwidth bucket after the proxied call completes.
func (l *Limiter) RecordBandwidth(ctx context.Context, username string, bytes int64) error {
	window := l.cfg.DefaultBandwidthWindow.Duration
	if window <= 0 || bytes <= 0 {
		return nil
	}
	key := l.bandwidthKey(username, window)
	_, err := l.cache.Incr(ctx, "bandwidth", key, bytes, window)
	return err
}

func (l *Limiter) bandwidthKey(username string, window time.Duration) string {
	return fmt.Sprintf("%s:%d", username, windowBucket(time.Now(), window))
}
