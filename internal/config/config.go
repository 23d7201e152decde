package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:                ":9080",
			ReadTimeout:            Duration{Duration: 10 * time.Second},
			WriteTimeout:           Duration{Duration: 30 * time.Second},
			IdleTimeout:            Duration{Duration: 120 * time.Second},
			CORSAllowedOrigins:     []string{"*"},
			CORSAllowedMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			CORSAllowedHeaders:     []string{"Authorization", "Content-Type", "X-CSRF-Token"},
			CORSAllowCredentials:   false,
			CORSStrict:             false,
			StrictOptions405:       false,
			StrictResponseEnvelope: true,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Environment: "development",
		},
		Storage: StorageConfig{
			Backend: "memory",
			PostgresPool: PostgresPoolConfig{
				MaxOpenConns:    20,
				MaxIdleConns:    5,
				ConnMaxLifetime: Duration{Duration: 30 * time.Minute},
			},
			SchemaMapping: SchemaMappingConfig{
				APIs:             TableMappingConfig{TableName: "apis"},
				Endpoints:        TableMappingConfig{TableName: "endpoints"},
				EndpointValid:    TableMappingConfig{TableName: "endpoint_validation"},
				Users:            TableMappingConfig{TableName: "users"},
				Roles:            TableMappingConfig{TableName: "roles"},
				Groups:           TableMappingConfig{TableName: "groups"},
				Subscriptions:    TableMappingConfig{TableName: "subscriptions"},
				Routings:         TableMappingConfig{TableName: "routings"},
				Tiers:            TableMappingConfig{TableName: "tiers"},
				TierAssignments:  TableMappingConfig{TableName: "tier_assignments"},
				CreditGroups:     TableMappingConfig{TableName: "credit_groups"},
				UserCredits:      TableMappingConfig{TableName: "user_credits"},
				SecuritySettings: TableMappingConfig{TableName: "security_settings"},
			},
			DumpPath: "./gateway_state.dmp",
		},
		Cache: CacheConfig{
			DefaultTTL:      Duration{Duration: 5 * time.Minute},
			MFASetupTTL:      Duration{Duration: 10 * time.Minute},
			GraphQLSchemaTTL: Duration{Duration: 1 * time.Hour},
		},
		Identity: IdentityConfig{
			JWTIssuer:        "cedros-gateway",
			AccessTokenTTL:   Duration{Duration: 15 * time.Minute},
			CookieSameSite:   "Strict",
			HTTPSOnly:        false,
			HTTPSEnabled:     false,
			RequireCSRF:      true,
			MFAIssuer:        "Cedros Gateway",
			JWKSCacheTTL:     Duration{Duration: 10 * time.Minute},
			ArgonMemory:      64 * 1024,
			ArgonIterations:  3,
			ArgonParallelism: 2,
			ArgonSaltLength:  16,
			ArgonKeyLength:   32,
		},
		RateLimit: RateLimitConfig{
			DefaultRequestsPerWindow:   1000,
			DefaultWindow:              Duration{Duration: 1 * time.Minute},
			DefaultThrottleQueueLimit:  50,
			DefaultThrottleWait:        Duration{Duration: 5 * time.Second},
			DefaultBandwidthLimitBytes: 50 * 1024 * 1024,
			DefaultBandwidthWindow:     Duration{Duration: 1 * time.Minute},
		},
		IPPolicy: IPPolicyConfig{
			LocalhostBypass: true,
			TrustXFF:        false,
			GlobalMode:      "allow_all",
		},
		Invoker: InvokerConfig{
			ConnectTimeout: Duration{Duration: 5 * time.Second},
			ReadTimeout:    Duration{Duration: 30 * time.Second},
			WriteTimeout:   Duration{Duration: 30 * time.Second},
			PoolTimeout:    Duration{Duration: 90 * time.Second},
			RetryBaseDelay: Duration{Duration: 100 * time.Millisecond},
			RetryMaxDelay:  Duration{Duration: 2 * time.Second},
			DefaultRetries: 2,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:      true,
			Threshold:    5,
			Timeout:      Duration{Duration: 30 * time.Second},
			MaxRequests:  1,
			Interval:     Duration{Duration: 1 * time.Minute},
			FailureRatio: 0.6,
			MinRequests:  10,
		},
		Gateway: GatewayConfig{
			GRPCWebEnabled:       true,
			GraphQLMaxDepth:      10,
			GraphQLMaxComplexity: 1000,
		},
	}
}

// parseFile reads and unmarshals a YAML configuration file.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}
