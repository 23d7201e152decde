package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv()
	defer clearEnv()

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error when JWT signing material is missing, got nil")
	}
	if !contains(err.Error(), "JWT_SECRET_KEY") {
		t.Errorf("expected error about JWT_SECRET_KEY, got: %v", err)
	}
}

func TestLoadConfig_ValidMinimal(t *testing.T) {
	clearEnv()
	os.Setenv("JWT_SECRET_KEY", "test-signing-secret")
	defer clearEnv()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error with valid config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected config, got nil")
	}

	if cfg.Server.Address != ":9080" {
		t.Errorf("expected default address :9080, got %s", cfg.Server.Address)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("expected default storage backend memory, got %s", cfg.Storage.Backend)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("expected default cache backend memory, got %s", cfg.Cache.Backend)
	}
	if cfg.Identity.AccessTokenTTL.Duration != 15*time.Minute {
		t.Errorf("expected default access token ttl 15m, got %v", cfg.Identity.AccessTokenTTL.Duration)
	}
}

func TestLoadConfig_RedisURLImpliesBackend(t *testing.T) {
	clearEnv()
	os.Setenv("JWT_SECRET_KEY", "test-signing-secret")
	os.Setenv("REDIS_URL", "redis://localhost:6379/0")
	defer clearEnv()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("expected cache backend auto-derived to redis, got %s", cfg.Cache.Backend)
	}
}

func TestLoadConfig_PostgresRequiresURL(t *testing.T) {
	clearEnv()
	os.Setenv("JWT_SECRET_KEY", "test-signing-secret")
	os.Setenv("MEM_OR_EXTERNAL", "postgres")
	defer clearEnv()

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error when storage backend is postgres without a URL")
	}
	if !contains(err.Error(), "storage.postgres_url") {
		t.Errorf("expected error about storage.postgres_url, got: %v", err)
	}
}

func TestLoadConfig_SameSiteNoneForcesHTTPSOnly(t *testing.T) {
	clearEnv()
	os.Setenv("JWT_SECRET_KEY", "test-signing-secret")
	os.Setenv("COOKIE_SAMESITE", "None")
	defer clearEnv()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !cfg.Identity.HTTPSOnly {
		t.Error("expected SameSite=None to force https_only")
	}
}

func TestLoadConfig_InvalidCookieSameSite(t *testing.T) {
	clearEnv()
	os.Setenv("JWT_SECRET_KEY", "test-signing-secret")
	os.Setenv("COOKIE_SAMESITE", "Whenever")
	defer clearEnv()

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for invalid cookie_samesite value")
	}
}

// Test helpers

func clearEnv() {
	envVars := []string{
		"CEDROS_SERVER_ADDRESS", "ALLOW_CREDENTIALS", "CORS_STRICT", "STRICT_OPTIONS_405",
		"STRICT_RESPONSE_ENVELOPE", "ALLOWED_ORIGINS", "ALLOW_METHODS", "ALLOW_HEADERS",
		"MEM_OR_EXTERNAL", "STORAGE_POSTGRES_URL", "STORAGE_MONGODB_URL", "STORAGE_MONGODB_DATABASE",
		"MEM_DUMP_PATH", "MEM_ENCRYPTION_KEY",
		"CACHE_BACKEND", "REDIS_URL", "CACHE_DEFAULT_TTL",
		"JWT_SECRET_KEY", "JWT_KEYS", "JWT_ISSUER", "JWT_ACCESS_TOKEN_TTL",
		"JWKS_URL", "JWKS_CACHE_TTL",
		"COOKIE_SAMESITE", "HTTPS_ONLY", "HTTPS_ENABLED", "MFA_SECRET_ENCRYPTION_KEY",
		"LOCAL_HOST_IP_BYPASS", "TRUST_X_FORWARDED_FOR", "XFF_TRUSTED_PROXIES",
		"HTTP_CONNECT_TIMEOUT", "HTTP_READ_TIMEOUT", "HTTP_WRITE_TIMEOUT", "HTTP_TIMEOUT",
		"HTTP_RETRY_BASE_DELAY", "HTTP_RETRY_MAX_DELAY",
		"CIRCUIT_BREAKER_ENABLED", "CIRCUIT_BREAKER_THRESHOLD", "CIRCUIT_BREAKER_TIMEOUT",
		"LOG_LEVEL", "LOG_FORMAT",
	}
	for _, key := range envVars {
		os.Unsetenv(key)
	}
}

func contains(s, substr string) bool {
	if substr == "" {
		return true
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
