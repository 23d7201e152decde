package config

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// finalize applies cross-field defaults and validates the configuration.
func (c *Config) finalize() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":9080"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Cache.Backend == "" {
		// A Redis URL implies the operator wants the distributed cache backend
		// even if they forgot to flip the backend switch.
		if c.Cache.RedisURL != "" {
			c.Cache.Backend = "redis"
		} else {
			c.Cache.Backend = "memory"
		}
	}
	if c.Identity.JWTIssuer == "" {
		c.Identity.JWTIssuer = "cedros-gateway"
	}
	if c.Identity.AccessTokenTTL.Duration <= 0 {
		c.Identity.AccessTokenTTL = Duration{Duration: 15 * time.Minute}
	}
	if c.Identity.CookieSameSite == "" {
		c.Identity.CookieSameSite = "Strict"
	}
	if c.Identity.ArgonMemory == 0 {
		c.Identity.ArgonMemory = 64 * 1024
	}
	if c.Identity.ArgonIterations == 0 {
		c.Identity.ArgonIterations = 3
	}
	if c.Identity.ArgonParallelism == 0 {
		c.Identity.ArgonParallelism = 2
	}
	if c.Identity.ArgonSaltLength == 0 {
		c.Identity.ArgonSaltLength = 16
	}
	if c.Identity.ArgonKeyLength == 0 {
		c.Identity.ArgonKeyLength = 32
	}

	// SameSite=None requires Secure cookies; force HTTPSOnly rather than ship a
	// cookie the browser will silently drop.
	if strings.EqualFold(c.Identity.CookieSameSite, "None") {
		c.Identity.HTTPSOnly = true
	}

	if c.RateLimit.DefaultRequestsPerWindow <= 0 {
		c.RateLimit.DefaultRequestsPerWindow = 1000
	}
	if c.RateLimit.DefaultWindow.Duration <= 0 {
		c.RateLimit.DefaultWindow = Duration{Duration: 1 * time.Minute}
	}
	if c.RateLimit.DefaultThrottleQueueLimit <= 0 {
		c.RateLimit.DefaultThrottleQueueLimit = 50
	}
	if c.RateLimit.DefaultThrottleWait.Duration <= 0 {
		c.RateLimit.DefaultThrottleWait = Duration{Duration: 5 * time.Second}
	}

	if c.Invoker.ConnectTimeout.Duration <= 0 {
		c.Invoker.ConnectTimeout = Duration{Duration: 5 * time.Second}
	}
	if c.Invoker.ReadTimeout.Duration <= 0 {
		c.Invoker.ReadTimeout = Duration{Duration: 30 * time.Second}
	}
	if c.Invoker.WriteTimeout.Duration <= 0 {
		c.Invoker.WriteTimeout = Duration{Duration: 30 * time.Second}
	}
	if c.Invoker.RetryBaseDelay.Duration <= 0 {
		c.Invoker.RetryBaseDelay = Duration{Duration: 100 * time.Millisecond}
	}
	if c.Invoker.RetryMaxDelay.Duration <= 0 {
		c.Invoker.RetryMaxDelay = Duration{Duration: 2 * time.Second}
	}

	if c.CircuitBreaker.Threshold == 0 {
		c.CircuitBreaker.Threshold = 5
	}
	if c.CircuitBreaker.Timeout.Duration <= 0 {
		c.CircuitBreaker.Timeout = Duration{Duration: 30 * time.Second}
	}
	if c.CircuitBreaker.Interval.Duration <= 0 {
		c.CircuitBreaker.Interval = Duration{Duration: 1 * time.Minute}
	}
	if c.CircuitBreaker.FailureRatio <= 0 {
		c.CircuitBreaker.FailureRatio = 0.6
	}

	if c.Gateway.GraphQLMaxDepth <= 0 {
		c.Gateway.GraphQLMaxDepth = 10
	}
	if c.Gateway.GraphQLMaxComplexity <= 0 {
		c.Gateway.GraphQLMaxComplexity = 1000
	}

	return c.validate()
}

// validate checks that required configuration fields are set correctly.
func (c *Config) validate() error {
	var errs []string

	switch c.Storage.Backend {
	case "memory", "postgres", "mongodb":
	default:
		errs = append(errs, fmt.Sprintf("storage.backend %q is not one of memory, postgres, mongodb", c.Storage.Backend))
	}
	if c.Storage.Backend == "postgres" && c.Storage.PostgresURL == "" {
		errs = append(errs, "storage.postgres_url is required when storage.backend is postgres")
	}
	if c.Storage.Backend == "mongodb" && c.Storage.MongoDBURL == "" {
		errs = append(errs, "storage.mongodb_url is required when storage.backend is mongodb")
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("cache.backend %q is not one of memory, redis", c.Cache.Backend))
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisURL == "" {
		errs = append(errs, "cache.redis_url is required when cache.backend is redis")
	}

	if c.Identity.JWTSecretKey == "" && len(c.Identity.JWTKeys) == 0 {
		errs = append(errs, "JWT_SECRET_KEY or JWT_KEYS must be set to mint and verify session tokens")
	}

	switch strings.ToLower(c.Identity.CookieSameSite) {
	case "strict", "lax", "none":
	default:
		errs = append(errs, fmt.Sprintf("identity.cookie_samesite %q is not one of Strict, Lax, None", c.Identity.CookieSameSite))
	}

	switch c.IPPolicy.GlobalMode {
	case "allow_all", "whitelist":
	default:
		errs = append(errs, fmt.Sprintf("ip_policy.global_mode %q is not one of allow_all, whitelist", c.IPPolicy.GlobalMode))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ApplyPostgresPoolSettings applies connection pool settings to a database connection.
// If pool config is not specified, applies sensible defaults.
func ApplyPostgresPoolSettings(db *sql.DB, pool PostgresPoolConfig) {
	maxOpen := pool.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 20
	}

	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	maxLifetime := pool.ConnMaxLifetime.Duration
	if maxLifetime <= 0 {
		maxLifetime = 30 * time.Minute
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
}
