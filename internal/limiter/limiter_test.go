package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/cedros-gateway/gateway/internal/cache"
	"github.com/cedros-gateway/gateway/internal/config"
	"github.com/cedros-gateway/gateway/internal/store"
)

func testLimiter(t *testing.T, cfg config.RateLimitConfig) (*Limiter, store.Store) {
	t.Helper()
	c := cache.NewMemoryCache(time.Minute, 0)
	t.Cleanup(c.Close)
	s := store.NewMemoryStore()
	return New(c, s, cfg, nil), s
}

func baseRequest(username string) Request {
	return Request{
		Username: username,
		User:     store.Doc{"_id": username},
		API:      store.Doc{"_id": "api-1"},
	}
}

func TestLimiter_Enforce_AllowsUnderLimit(t *testing.T) {
	cfg := config.RateLimitConfig{DefaultRequestsPerWindow: 5, DefaultWindow: config.Duration{Duration: time.Minute}}
	l, _ := testLimiter(t, cfg)

	req := baseRequest("alice")
	req.IsPublicAPI = true
	release, err := l.Enforce(context.Background(), req)
	if err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	release()
}

func TestLimiter_Enforce_RejectsOverRateLimit(t *testing.T) {
	cfg := config.RateLimitConfig{DefaultRequestsPerWindow: 2, DefaultWindow: config.Duration{Duration: time.Minute}}
	l, _ := testLimiter(t, cfg)
	ctx := context.Background()
	req := baseRequest("alice")
	req.IsPublicAPI = true

	for i := 0; i < 2; i++ {
		release, err := l.Enforce(ctx, req)
		if err != nil {
			t.Fatalf("Enforce call %d: %v", i, err)
		}
		release()
	}

	if _, err := l.Enforce(ctx, req); err != ErrRateLimited {
		t.Fatalf("Enforce third call = %v, want ErrRateLimited", err)
	}
}

func TestLimiter_Enforce_TierLimitIsMoreRestrictive(t *testing.T) {
	cfg := config.RateLimitConfig{DefaultRequestsPerWindow: 100, DefaultWindow: config.Duration{Duration: time.Minute}}
	l, _ := testLimiter(t, cfg)
	ctx := context.Background()
	req := baseRequest("alice")
	req.IsPublicAPI = true
	req.Tier = store.Doc{"_id": "free", "requests_per_minute": float64(1)}

	if release, err := l.Enforce(ctx, req); err != nil {
		t.Fatalf("first call: %v", err)
	} else {
		release()
	}

	if _, err := l.Enforce(ctx, req); err != ErrRateLimited {
		t.Fatalf("second call = %v, want ErrRateLimited from tier bound", err)
	}
}

func TestLimiter_Enforce_ThrottleRejectsBurstPastCapacity(t *testing.T) {
	cfg := config.RateLimitConfig{
		DefaultRequestsPerWindow:  1000,
		DefaultWindow:             config.Duration{Duration: time.Minute},
		DefaultThrottleQueueLimit: 1,
		DefaultThrottleWait:       config.Duration{Duration: 20 * time.Millisecond},
	}
	l, _ := testLimiter(t, cfg)
	req := baseRequest("alice")
	req.IsPublicAPI = true

	release, err := l.Enforce(context.Background(), req)
	if err != nil {
		t.Fatalf("first Enforce: %v", err)
	}

	if _, err := l.Enforce(context.Background(), req); err != ErrRateLimited {
		t.Fatalf("second Enforce while first slot held = %v, want ErrRateLimited", err)
	}

	release()

	if release2, err := l.Enforce(context.Background(), req); err != nil {
		t.Fatalf("Enforce after release: %v", err)
	} else {
		release2()
	}
}

func TestLimiter_Enforce_BandwidthRejectsOverBudget(t *testing.T) {
	cfg := config.RateLimitConfig{
		DefaultRequestsPerWindow:   1000,
		DefaultWindow:              config.Duration{Duration: time.Minute},
		DefaultBandwidthLimitBytes: 100,
		DefaultBandwidthWindow:     config.Duration{Duration: time.Minute},
	}
	l, _ := testLimiter(t, cfg)
	ctx := context.Background()
	req := baseRequest("alice")
	req.IsPublicAPI = true
	req.ContentLength = 50

	if release, err := l.Enforce(ctx, req); err != nil {
		t.Fatalf("first Enforce: %v", err)
	} else {
		release()
	}
	if err := l.RecordBandwidth(ctx, "alice", 80); err != nil {
		t.Fatalf("RecordBandwidth: %v", err)
	}

	req.ContentLength = 40
	if _, err := l.Enforce(ctx, req); err != ErrRateLimited {
		t.Fatalf("Enforce after budget exceeded = %v, want ErrRateLimited", err)
	}
}

func TestLimiter_Enforce_CreditsExhausted(t *testing.T) {
	cfg := config.RateLimitConfig{DefaultRequestsPerWindow: 1000, DefaultWindow: config.Duration{Duration: time.Minute}}
	l, s := testLimiter(t, cfg)
	ctx := context.Background()

	if err := s.InsertOne(ctx, store.CollectionUserCredits, store.Doc{
		"_id": "alice:cg-1", "username": "alice", "credit_group": "cg-1", "available_credits": float64(1),
	}); err != nil {
		t.Fatalf("InsertOne: %v", err)
	}

	req := baseRequest("alice")
	req.API = store.Doc{"_id": "api-1", "api_credits_enabled": true, "api_credit_group": "cg-1"}

	if release, err := l.Enforce(ctx, req); err != nil {
		t.Fatalf("first Enforce (should consume last credit): %v", err)
	} else {
		release()
	}

	if _, err := l.Enforce(ctx, req); err != ErrCreditsExhausted {
		t.Fatalf("second Enforce = %v, want ErrCreditsExhausted", err)
	}
}

func TestLimiter_Enforce_PublicAPIBypassesCredits(t *testing.T) {
	cfg := config.RateLimitConfig{DefaultRequestsPerWindow: 1000, DefaultWindow: config.Duration{Duration: time.Minute}}
	l, _ := testLimiter(t, cfg)
	req := baseRequest("alice")
	req.API = store.Doc{"_id": "api-1", "api_credits_enabled": true, "api_credit_group": "cg-1"}
	req.IsPublicAPI = true

	release, err := l.Enforce(context.Background(), req)
	if err != nil {
		t.Fatalf("Enforce on public API with no credit entry: %v", err)
	}
	release()
}
