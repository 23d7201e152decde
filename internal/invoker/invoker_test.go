package invoker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cedros-gateway/gateway/internal/config"
)

func testInvokerConfig() config.InvokerConfig {
	return config.InvokerConfig{
		ConnectTimeout: config.Duration{Duration: 0},
		ReadTimeout:    config.Duration{Duration: 0},
		PoolTimeout:    config.Duration{Duration: 0},
		RetryBaseDelay: config.Duration{Duration: 1},
		RetryMaxDelay:  config.Duration{Duration: 5},
		DefaultRetries: 2,
	}
}

func TestInvoker_Do_SuccessNoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	inv := New(testInvokerConfig(), config.CircuitBreakerConfig{Enabled: false}, nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)

	resp, err := inv.Do(context.Background(), "weather-api", req, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected exactly one call, got %d", calls)
	}
}

func TestInvoker_Do_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	inv := New(testInvokerConfig(), config.CircuitBreakerConfig{Enabled: false}, nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)

	resp, err := inv.Do(context.Background(), "weather-api", req, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected eventual 200, got %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestInvoker_Do_ReturnsLastResponseAfterExhaustingRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	inv := New(testInvokerConfig(), config.CircuitBreakerConfig{Enabled: false}, nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)

	resp, err := inv.Do(context.Background(), "weather-api", req, 1)
	if err != nil {
		t.Fatalf("expected the final transient response to be returned, not an error: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected the last upstream status 503 to pass through, got %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 attempts (1 retry), got %d", calls)
	}
}

func TestInvoker_Do_CircuitOpensAfterThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := config.CircuitBreakerConfig{
		Enabled:     true,
		Threshold:   1,
		MaxRequests: 1,
		Timeout:     config.Duration{Duration: 1_000_000_000},
	}
	inv := New(testInvokerConfig(), cfg, nil)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := inv.Do(context.Background(), "broken-api", req, 0)
	if err != nil || resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected the first call to return the upstream 500 with a nil error, got resp=%v err=%v", resp, err)
	}

	req2, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err = inv.Do(context.Background(), "broken-api", req2, 0)
	if err == nil {
		t.Fatal("expected second call to be rejected by the open breaker")
	}

	if inv.State("broken-api") != "open" {
		t.Errorf("expected breaker state open, got %s", inv.State("broken-api"))
	}
}

func TestInvoker_Do_CanceledContextNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	inv := New(testInvokerConfig(), config.CircuitBreakerConfig{Enabled: false}, nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inv.Do(ctx, "weather-api", req, 3)
	if err == nil {
		t.Fatal("expected an error for a canceled context")
	}
}
