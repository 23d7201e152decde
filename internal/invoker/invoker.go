package invoker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"

	"github.com/cedros-gateway/gateway/internal/config"
	"github.com/cedros-gateway/gateway/internal/metrics"
)

// ErrCircuitOpen is returned when an upstream's breaker is open and the call
// was rejected without touching the network.
var ErrCircuitOpen = errors.New("invoker: circuit breaker open")

// Invoker dispatches HTTP requests to upstream APIs with a tuned connection
// pool, exponential backoff retry, and per-api_key circuit breaking.
type Invoker struct {
	client  *http.Client
	breaker *Manager
	cfg     config.InvokerConfig
	metrics *metrics.Metrics
}

// New builds an Invoker from the gateway's invoker and circuit breaker config.
func New(invokerCfg config.InvokerConfig, breakerCfg config.CircuitBreakerConfig, m *metrics.Metrics) *Invoker {
	return &Invoker{
		client:  newClient(invokerCfg),
		breaker: NewManager(breakerCfg),
		cfg:     invokerCfg,
		metrics: m,
	}
}

// newClient builds an *http.Client with a tuned transport for connection reuse.
func newClient(cfg config.InvokerConfig) *http.Client {
	return &http.Client{
		Timeout: cfg.ReadTimeout.Duration,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     cfg.PoolTimeout.Duration,
			DialContext: (&net.Dialer{
				Timeout: cfg.ConnectTimeout.Duration,
			}).DialContext,
		},
	}
}

// Do sends req through the circuit breaker and retry-with-backoff pipeline
// for the named upstream api_key. maxRetries overrides the configured
// default when >= 0; pass -1 to use the config default. A transient upstream
// status (§4.8 step 2) is retried only while attempts remain; once retries
// are exhausted the last response is returned as-is with a nil error so the
// caller can still inspect and forward it, per spec.md:142.
func (inv *Invoker) Do(ctx context.Context, apiKey string, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries < 0 {
		maxRetries = inv.cfg.DefaultRetries
	}

	backoff := retry.NewExponential(inv.cfg.RetryBaseDelay.Duration)
	backoff = retry.WithJitter(inv.cfg.RetryBaseDelay.Duration/2, backoff)
	backoff = retry.WithCappedDuration(inv.cfg.RetryMaxDelay.Duration, backoff)
	backoff = retry.WithMaxRetries(uint64(maxRetries), backoff)

	start := time.Now()
	attempts := 0
	var resp *http.Response

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		result, execErr := inv.breaker.Execute(apiKey, func() (interface{}, error) {
			r, sendErr := inv.send(req.Clone(ctx))
			if sendErr == nil && transientStatus[r.StatusCode] {
				// The response travels with an error so the breaker counts a
				// transient status as a failure.
				return r, errUpstreamStatus
			}
			return r, sendErr
		})
		if errors.Is(execErr, errUpstreamStatus) {
			resp = result.(*http.Response)
			if attempts <= maxRetries {
				return retry.RetryableError(errUpstreamStatus)
			}
			return nil
		}
		if execErr != nil {
			if errors.Is(execErr, gobreaker.ErrOpenState) || errors.Is(execErr, gobreaker.ErrTooManyRequests) {
				return ErrCircuitOpen
			}
			if isRetryable(execErr) {
				return retry.RetryableError(execErr)
			}
			return execErr
		}
		resp = result.(*http.Response)
		return nil
	})

	duration := time.Since(start)
	status := "success"
	if err != nil {
		status = "failure"
	}
	if inv.metrics != nil {
		inv.metrics.ObserveUpstreamCall(apiKey, req.URL.Host, status, duration, attempts-1)
	}

	return resp, err
}

func (inv *Invoker) send(req *http.Request) (*http.Response, error) {
	resp, err := inv.client.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

var errUpstreamStatus = errors.New("invoker: upstream returned a transient status")

// transientStatus is the exact set of upstream statuses worth retrying: the
// gateway-facing failure modes (bad gateway, unavailable, timeout) and a
// generic 500, but not 501 (not implemented, retrying changes nothing) or
// 505 (http version not supported, same).
var transientStatus = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// isRetryable classifies transport-level errors. Canceled requests should
// never be retried; everything else (timeouts, connection resets, EOF from
// a dropped keep-alive connection) is worth one more attempt.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// State returns the circuit breaker state for apiKey.
func (inv *Invoker) State(apiKey string) string {
	return inv.breaker.State(apiKey)
}
