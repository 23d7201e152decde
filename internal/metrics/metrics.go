package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway's request plane.
type Metrics struct {
	// Pipeline metrics (C10)
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ResponseSize     *prometheus.HistogramVec
	ValidationErrors *prometheus.CounterVec

	// Limiter metrics (C5)
	RateLimitHitsTotal   *prometheus.CounterVec
	ThrottleQueueDepth    *prometheus.GaugeVec
	ThrottleRejectedTotal *prometheus.CounterVec
	BandwidthBytesTotal   *prometheus.CounterVec
	CreditsConsumedTotal  *prometheus.CounterVec
	CreditsDeniedTotal    *prometheus.CounterVec

	// IP policy metrics (C6)
	IPPolicyDeniedTotal *prometheus.CounterVec

	// Upstream invocation metrics (C7, C8)
	UpstreamCallsTotal   *prometheus.CounterVec
	UpstreamCallDuration *prometheus.HistogramVec
	UpstreamRetriesTotal *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec

	// Cache metrics (C1)
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Store metrics (C2)
	DBQueryDuration     *prometheus.HistogramVec
	DBConnectionsActive prometheus.Gauge

	// Identity metrics (C4)
	AuthAttemptsTotal *prometheus.CounterVec
	MFAChallengeTotal *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total number of requests admitted into the pipeline",
			},
			[]string{"api", "endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "End-to-end request pipeline duration (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"api", "endpoint"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_response_size_bytes",
				Help:    "Size of upstream responses returned to clients",
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			},
			[]string{"api", "endpoint"},
		),
		ValidationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_validation_errors_total",
				Help: "Total number of request validation failures",
			},
			[]string{"api", "endpoint", "reason"},
		),

		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_rate_limit_hits_total",
				Help: "Total number of rate limit rejections",
			},
			[]string{"scope", "identifier"},
		),
		ThrottleQueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_throttle_queue_depth",
				Help: "Current depth of the per-key throttle admission queue",
			},
			[]string{"api"},
		),
		ThrottleRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_throttle_rejected_total",
				Help: "Total number of requests rejected because the throttle queue was full",
			},
			[]string{"api"},
		),
		BandwidthBytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_bandwidth_bytes_total",
				Help: "Total request/response bytes counted against bandwidth buckets",
			},
			[]string{"api", "direction"},
		),
		CreditsConsumedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_credits_consumed_total",
				Help: "Total credits consumed by metered requests",
			},
			[]string{"credit_group"},
		),
		CreditsDeniedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_credits_denied_total",
				Help: "Total requests denied for insufficient credits",
			},
			[]string{"credit_group"},
		),

		IPPolicyDeniedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_ip_policy_denied_total",
				Help: "Total requests denied by IP allow/deny policy",
			},
			[]string{"api", "reason"},
		),

		UpstreamCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_calls_total",
				Help: "Total number of upstream invocations",
			},
			[]string{"api", "upstream", "status"},
		),
		UpstreamCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_upstream_call_duration_seconds",
				Help:    "Duration of upstream invocations (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"api", "upstream"},
		),
		UpstreamRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_retries_total",
				Help: "Total number of upstream retry attempts",
			},
			[]string{"api", "upstream"},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_circuit_breaker_state",
				Help: "Circuit breaker state per upstream api_key (0=closed, 1=half-open, 2=open)",
			},
			[]string{"api_key"},
		),

		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_cache_hits_total",
				Help: "Total policy cache hits",
			},
			[]string{"namespace"},
		),
		CacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_cache_misses_total",
				Help: "Total policy cache misses",
			},
			[]string{"namespace"},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_store_query_duration_seconds",
				Help:    "Document store query duration (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"operation", "backend"},
		),
		DBConnectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_store_connections_active",
				Help: "Number of active document store connections",
			},
		),

		AuthAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_auth_attempts_total",
				Help: "Total authentication attempts",
			},
			[]string{"status"},
		),
		MFAChallengeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_mfa_challenge_total",
				Help: "Total MFA challenges issued and their outcome",
			},
			[]string{"status"},
		),
	}
}

// ObserveRequest records a completed pipeline pass.
func (m *Metrics) ObserveRequest(api, endpoint, status string, duration time.Duration, responseBytes int) {
	m.RequestsTotal.WithLabelValues(api, endpoint, status).Inc()
	m.RequestDuration.WithLabelValues(api, endpoint).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(api, endpoint).Observe(float64(responseBytes))
}

// ObserveValidationError records a request rejected during validation.
func (m *Metrics) ObserveValidationError(api, endpoint, reason string) {
	m.ValidationErrors.WithLabelValues(api, endpoint, reason).Inc()
}

// ObserveRateLimit records a rate limit rejection.
func (m *Metrics) ObserveRateLimit(scope, identifier string) {
	m.RateLimitHitsTotal.WithLabelValues(scope, identifier).Inc()
}

// ObserveUpstreamCall records an upstream invocation.
func (m *Metrics) ObserveUpstreamCall(api, upstream, status string, duration time.Duration, retries int) {
	m.UpstreamCallsTotal.WithLabelValues(api, upstream, status).Inc()
	m.UpstreamCallDuration.WithLabelValues(api, upstream).Observe(duration.Seconds())
	if retries > 0 {
		m.UpstreamRetriesTotal.WithLabelValues(api, upstream).Add(float64(retries))
	}
}

// ObserveCache records a cache lookup outcome.
func (m *Metrics) ObserveCache(namespace string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(namespace).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(namespace).Inc()
}

// ObserveDBQuery records a document store query.
func (m *Metrics) ObserveDBQuery(operation, backend string, duration time.Duration) {
	m.DBQueryDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

// ObserveIPPolicyDenied records a request denied by global or per-API IP policy.
func (m *Metrics) ObserveIPPolicyDenied(api, reason string) {
	m.IPPolicyDeniedTotal.WithLabelValues(api, reason).Inc()
}

// ObserveThrottleRejected records a request rejected because the per-user
// throttle queue was full.
func (m *Metrics) ObserveThrottleRejected(api string) {
	m.ThrottleRejectedTotal.WithLabelValues(api).Inc()
}

// SetThrottleQueueDepth sets the current depth of api's throttle admission queue.
func (m *Metrics) SetThrottleQueueDepth(api string, depth int) {
	m.ThrottleQueueDepth.WithLabelValues(api).Set(float64(depth))
}

// ObserveBandwidth adds n bytes to the named api's bandwidth counter in the
// given direction ("request" or "response").
func (m *Metrics) ObserveBandwidth(api, direction string, n int64) {
	m.BandwidthBytesTotal.WithLabelValues(api, direction).Add(float64(n))
}

// ObserveCreditsConsumed records a single credit decrement for creditGroup.
func (m *Metrics) ObserveCreditsConsumed(creditGroup string) {
	m.CreditsConsumedTotal.WithLabelValues(creditGroup).Inc()
}

// ObserveCreditsDenied records a request denied for insufficient credits.
func (m *Metrics) ObserveCreditsDenied(creditGroup string) {
	m.CreditsDeniedTotal.WithLabelValues(creditGroup).Inc()
}

// ObserveAuthAttempt records an authentication attempt outcome
// ("success", "invalid_credentials", "revoked", "mfa_required", ...).
func (m *Metrics) ObserveAuthAttempt(status string) {
	m.AuthAttemptsTotal.WithLabelValues(status).Inc()
}

// ObserveMFAChallenge records an MFA challenge outcome ("issued", "verified", "failed").
func (m *Metrics) ObserveMFAChallenge(status string) {
	m.MFAChallengeTotal.WithLabelValues(status).Inc()
}

// SetCircuitBreakerState records a breaker's current state for apiKey
// (0=closed, 1=half-open, 2=open).
func (m *Metrics) SetCircuitBreakerState(apiKey string, state int) {
	m.CircuitBreakerState.WithLabelValues(apiKey).Set(float64(state))
}
