package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
func (c *Config) applyEnvOverrides() {
	// Server / transport
	setIfEnv(&c.Server.Address, "CEDROS_SERVER_ADDRESS")
	setBoolIfEnv(&c.Server.CORSAllowCredentials, "ALLOW_CREDENTIALS")
	setBoolIfEnv(&c.Server.CORSStrict, "CORS_STRICT")
	setBoolIfEnv(&c.Server.StrictOptions405, "STRICT_OPTIONS_405")
	setBoolIfEnv(&c.Server.StrictResponseEnvelope, "STRICT_RESPONSE_ENVELOPE")
	setCSVIfEnv(&c.Server.CORSAllowedOrigins, "ALLOWED_ORIGINS")
	setCSVIfEnv(&c.Server.CORSAllowedMethods, "ALLOW_METHODS")
	setCSVIfEnv(&c.Server.CORSAllowedHeaders, "ALLOW_HEADERS")

	// Storage backend
	setIfEnv(&c.Storage.Backend, "MEM_OR_EXTERNAL")
	setIfEnv(&c.Storage.PostgresURL, "STORAGE_POSTGRES_URL")
	setIfEnv(&c.Storage.MongoDBURL, "STORAGE_MONGODB_URL")
	setIfEnv(&c.Storage.MongoDBDatabase, "STORAGE_MONGODB_DATABASE")
	setIfEnv(&c.Storage.DumpPath, "MEM_DUMP_PATH")
	setIfEnv(&c.Storage.EncryptionKey, "MEM_ENCRYPTION_KEY")

	// Cache backend
	setIfEnv(&c.Cache.Backend, "CACHE_BACKEND")
	setIfEnv(&c.Cache.RedisURL, "REDIS_URL")
	setDurationIfEnv(&c.Cache.DefaultTTL, "CACHE_DEFAULT_TTL")

	// Identity / JWT / cookies
	setIfEnv(&c.Identity.JWTSecretKey, "JWT_SECRET_KEY")
	setIfEnv(&c.Identity.JWTIssuer, "JWT_ISSUER")
	setDurationIfEnv(&c.Identity.AccessTokenTTL, "JWT_ACCESS_TOKEN_TTL")
	setIfEnv(&c.Identity.CookieSameSite, "COOKIE_SAMESITE")
	setBoolIfEnv(&c.Identity.HTTPSOnly, "HTTPS_ONLY")
	setBoolIfEnv(&c.Identity.HTTPSEnabled, "HTTPS_ENABLED")
	setIfEnv(&c.Identity.MFASecretEncKey, "MFA_SECRET_ENCRYPTION_KEY")
	setIfEnv(&c.Identity.JWKSURL, "JWKS_URL")
	setDurationIfEnv(&c.Identity.JWKSCacheTTL, "JWKS_CACHE_TTL")

	// JWT_KEYS is a JSON object mapping key id to HMAC secret, used for key
	// rotation and algorithm-pinned verification (see identity.Minter).
	if raw := os.Getenv("JWT_KEYS"); raw != "" {
		keys := make(map[string]string)
		if err := json.Unmarshal([]byte(raw), &keys); err == nil {
			c.Identity.JWTKeys = keys
		}
	}

	// IP policy
	setBoolIfEnv(&c.IPPolicy.LocalhostBypass, "LOCAL_HOST_IP_BYPASS")
	setBoolIfEnv(&c.IPPolicy.TrustXFF, "TRUST_X_FORWARDED_FOR")
	setCSVIfEnv(&c.IPPolicy.TrustedProxies, "XFF_TRUSTED_PROXIES")

	// HTTP invoker
	setDurationIfEnv(&c.Invoker.ConnectTimeout, "HTTP_CONNECT_TIMEOUT")
	setDurationIfEnv(&c.Invoker.ReadTimeout, "HTTP_READ_TIMEOUT")
	setDurationIfEnv(&c.Invoker.WriteTimeout, "HTTP_WRITE_TIMEOUT")
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			c.Invoker.ReadTimeout = Duration{Duration: dur}
			c.Invoker.WriteTimeout = Duration{Duration: dur}
		}
	}
	setDurationIfEnv(&c.Invoker.RetryBaseDelay, "HTTP_RETRY_BASE_DELAY")
	setDurationIfEnv(&c.Invoker.RetryMaxDelay, "HTTP_RETRY_MAX_DELAY")

	// Circuit breaker
	setBoolIfEnv(&c.CircuitBreaker.Enabled, "CIRCUIT_BREAKER_ENABLED")
	if v := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.CircuitBreaker.Threshold = uint32(n)
		}
	}
	setDurationIfEnv(&c.CircuitBreaker.Timeout, "CIRCUIT_BREAKER_TIMEOUT")

	// Metrics / logging
	setIfEnv(&c.Logging.Level, "LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "LOG_FORMAT")
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable.
// Uses time.ParseDuration to parse values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

// setCSVIfEnv sets a string slice from a comma-separated environment variable.
func setCSVIfEnv(target *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*target = out
	}
}
