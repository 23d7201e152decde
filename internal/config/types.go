package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Storage        StorageConfig        `yaml:"storage"`
	Cache          CacheConfig          `yaml:"cache"`
	Identity       IdentityConfig       `yaml:"identity"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	IPPolicy       IPPolicyConfig       `yaml:"ip_policy"`
	Invoker        InvokerConfig        `yaml:"invoker"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Gateway        GatewayConfig        `yaml:"gateway"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout         Duration `yaml:"read_timeout"`
	WriteTimeout        Duration `yaml:"write_timeout"`
	IdleTimeout         Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins  []string `yaml:"cors_allowed_origins"`
	CORSAllowedMethods  []string `yaml:"cors_allowed_methods"`
	CORSAllowedHeaders  []string `yaml:"cors_allowed_headers"`
	CORSAllowCredentials bool    `yaml:"cors_allow_credentials"`
	CORSStrict          bool     `yaml:"cors_strict"`
	StrictOptions405    bool     `yaml:"strict_options_405"`
	StrictResponseEnvelope bool  `yaml:"strict_response_envelope"`
	AdminMetricsAPIKey  string   `yaml:"admin_metrics_api_key"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`      // json, console (default: json)
	Environment string `yaml:"environment"` // production, staging, development
}

// PostgresPoolConfig holds PostgreSQL connection pool settings.
type PostgresPoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// StorageConfig configures the Document Store Adapter (C2).
type StorageConfig struct {
	Backend         string              `yaml:"backend"` // "memory", "postgres", "mongodb"
	PostgresURL     string              `yaml:"postgres_url"`
	MongoDBURL      string              `yaml:"mongodb_url"`
	MongoDBDatabase string              `yaml:"mongodb_database"`
	PostgresPool    PostgresPoolConfig  `yaml:"postgres_pool"`
	SchemaMapping   SchemaMappingConfig `yaml:"schema_mapping"`
	DumpPath        string              `yaml:"dump_path"`        // MEM_DUMP_PATH: path of the DMP1 encrypted snapshot
	EncryptionKey   string              `yaml:"-"`                // MEM_ENCRYPTION_KEY, env-only: passphrase for the snapshot cipher
}

// SchemaMappingConfig holds table/collection name overrides for the gateway's own collections.
type SchemaMappingConfig struct {
	APIs             TableMappingConfig `yaml:"apis"`
	Endpoints        TableMappingConfig `yaml:"endpoints"`
	EndpointValid    TableMappingConfig `yaml:"endpoint_validation"`
	Users            TableMappingConfig `yaml:"users"`
	Roles            TableMappingConfig `yaml:"roles"`
	Groups           TableMappingConfig `yaml:"groups"`
	Subscriptions    TableMappingConfig `yaml:"subscriptions"`
	Routings         TableMappingConfig `yaml:"routings"`
	Tiers            TableMappingConfig `yaml:"tiers"`
	TierAssignments  TableMappingConfig `yaml:"tier_assignments"`
	CreditGroups     TableMappingConfig `yaml:"credit_groups"`
	UserCredits      TableMappingConfig `yaml:"user_credits"`
	SecuritySettings TableMappingConfig `yaml:"security_settings"`
}

// TableMappingConfig defines a single table/collection mapping.
type TableMappingConfig struct {
	TableName string `yaml:"table_name"`
}

// CacheConfig configures the Policy Cache (C1).
type CacheConfig struct {
	Backend  string   `yaml:"backend"` // "memory" or "redis" (CACHE_BACKEND; redis when unset and REDIS_URL is set)
	RedisURL string   `yaml:"redis_url"`
	DefaultTTL Duration `yaml:"default_ttl"`
	MFASetupTTL Duration `yaml:"mfa_setup_ttl"`
	GraphQLSchemaTTL Duration `yaml:"graphql_schema_ttl"`
}

// IdentityConfig configures token mint/verify, MFA, and cookie issuance (C4).
type IdentityConfig struct {
	JWTSecretKey       string            `yaml:"-"` // JWT_SECRET_KEY, env-only
	JWTKeys            map[string]string `yaml:"-"` // JWT_KEYS (JSON), env-only: kid -> HMAC secret
	JWTIssuer          string            `yaml:"jwt_issuer"`
	JWKSURL            string            `yaml:"-"`           // JWKS_URL, env-only: upstream IdP JWKS endpoint for RS256 verification
	JWKSCacheTTL       Duration          `yaml:"jwks_cache_ttl"` // JWKS_CACHE_TTL: how long fetched RSA keys are cached before refresh
	AccessTokenTTL     Duration          `yaml:"access_token_ttl"`
	CookieSameSite     string            `yaml:"cookie_samesite"` // Strict, Lax, None
	HTTPSOnly          bool              `yaml:"https_only"`
	HTTPSEnabled       bool              `yaml:"https_enabled"`
	RequireCSRF        bool              `yaml:"require_csrf"`
	MFAIssuer          string            `yaml:"mfa_issuer"`
	MFASecretEncKey    string            `yaml:"-"` // MFA_SECRET_ENCRYPTION_KEY, env-only, 64 hex chars
	ArgonMemory        uint32            `yaml:"argon_memory"`
	ArgonIterations    uint32            `yaml:"argon_iterations"`
	ArgonParallelism   uint8             `yaml:"argon_parallelism"`
	ArgonSaltLength    uint32            `yaml:"argon_salt_length"`
	ArgonKeyLength     uint32            `yaml:"argon_key_length"`
}

// RateLimitConfig holds default rate/throttle/bandwidth limiting configuration (C5).
// Per-user and per-tier overrides come from the User/Tier documents; these are platform defaults.
type RateLimitConfig struct {
	DefaultRequestsPerWindow int      `yaml:"default_requests_per_window"`
	DefaultWindow            Duration `yaml:"default_window"`
	DefaultThrottleQueueLimit int     `yaml:"default_throttle_queue_limit"`
	DefaultThrottleWait       Duration `yaml:"default_throttle_wait"`
	DefaultBandwidthLimitBytes int64  `yaml:"default_bandwidth_limit_bytes"`
	DefaultBandwidthWindow     Duration `yaml:"default_bandwidth_window"`
}

// IPPolicyConfig configures global IP policy (C6).
type IPPolicyConfig struct {
	LocalhostBypass    bool     `yaml:"localhost_bypass"` // LOCAL_HOST_IP_BYPASS
	TrustXFF           bool     `yaml:"trust_x_forwarded_for"`
	TrustedProxies     []string `yaml:"xff_trusted_proxies"`
	GlobalMode         string   `yaml:"global_mode"` // allow_all | whitelist
	GlobalWhitelist    []string `yaml:"global_whitelist"`
	GlobalBlacklist    []string `yaml:"global_blacklist"`
}

// InvokerConfig configures per-call HTTP timeouts and retry defaults (C8).
type InvokerConfig struct {
	ConnectTimeout  Duration `yaml:"connect_timeout"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	PoolTimeout     Duration `yaml:"pool_timeout"`
	RetryBaseDelay  Duration `yaml:"retry_base_delay"`
	RetryMaxDelay   Duration `yaml:"retry_max_delay"`
	DefaultRetries  int      `yaml:"default_retries"`
}

// CircuitBreakerConfig holds circuit breaker configuration for upstream calls (C8).
type CircuitBreakerConfig struct {
	Enabled             bool     `yaml:"enabled"`
	Threshold           uint32   `yaml:"threshold"`            // CIRCUIT_BREAKER_THRESHOLD: consecutive failures to trip
	Timeout             Duration `yaml:"timeout"`              // CIRCUIT_BREAKER_TIMEOUT: open-state cooldown
	MaxRequests         uint32   `yaml:"max_requests"`
	Interval            Duration `yaml:"interval"`
	FailureRatio        float64  `yaml:"failure_ratio"`
	MinRequests         uint32   `yaml:"min_requests"`
}

// GatewayConfig holds pipeline-level toggles that don't fit another concern.
type GatewayConfig struct {
	GRPCWebEnabled       bool   `yaml:"grpc_web_enabled"`
	GraphQLMaxDepth      int    `yaml:"graphql_max_depth"`
	GraphQLMaxComplexity int    `yaml:"graphql_max_complexity"`
	ContainerHostGateway string `yaml:"container_host_gateway"` // DOORMAN_DOCKER_HOST_GATEWAY-equivalent override
}
