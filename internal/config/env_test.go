package config

import (
	"os"
	"testing"
	"time"
)

func TestEnvOverrides_ServerConfig(t *testing.T) {
	defer os.Clearenv()

	tests := []struct {
		name      string
		envVars   map[string]string
		checkFunc func(*testing.T, *Config)
	}{
		{
			name: "CEDROS_SERVER_ADDRESS overrides default",
			envVars: map[string]string{
				"CEDROS_SERVER_ADDRESS": ":3000",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Server.Address != ":3000" {
					t.Errorf("Expected :3000, got %s", cfg.Server.Address)
				}
			},
		},
		{
			name: "ALLOWED_ORIGINS parses comma-separated list",
			envVars: map[string]string{
				"ALLOWED_ORIGINS": "https://a.example.com, https://b.example.com",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				want := []string{"https://a.example.com", "https://b.example.com"}
				if len(cfg.Server.CORSAllowedOrigins) != len(want) {
					t.Fatalf("expected %v, got %v", want, cfg.Server.CORSAllowedOrigins)
				}
				for i := range want {
					if cfg.Server.CORSAllowedOrigins[i] != want[i] {
						t.Errorf("expected %v, got %v", want, cfg.Server.CORSAllowedOrigins)
					}
				}
			},
		},
		{
			name: "STRICT_OPTIONS_405 boolean",
			envVars: map[string]string{
				"STRICT_OPTIONS_405": "true",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if !cfg.Server.StrictOptions405 {
					t.Error("expected StrictOptions405 to be true")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg := defaultConfig()
			cfg.applyEnvOverrides()
			tt.checkFunc(t, cfg)
		})
	}
}

func TestEnvOverrides_IdentityConfig(t *testing.T) {
	defer os.Clearenv()

	tests := []struct {
		name      string
		envVars   map[string]string
		checkFunc func(*testing.T, *Config)
	}{
		{
			name: "JWT_SECRET_KEY override",
			envVars: map[string]string{
				"JWT_SECRET_KEY": "super-secret",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Identity.JWTSecretKey != "super-secret" {
					t.Errorf("expected super-secret, got %s", cfg.Identity.JWTSecretKey)
				}
			},
		},
		{
			name: "JWT_KEYS parses JSON key map",
			envVars: map[string]string{
				"JWT_KEYS": `{"kid-1":"secret-1","kid-2":"secret-2"}`,
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Identity.JWTKeys["kid-1"] != "secret-1" {
					t.Errorf("expected kid-1 mapping, got %v", cfg.Identity.JWTKeys)
				}
				if cfg.Identity.JWTKeys["kid-2"] != "secret-2" {
					t.Errorf("expected kid-2 mapping, got %v", cfg.Identity.JWTKeys)
				}
			},
		},
		{
			name: "JWT_ACCESS_TOKEN_TTL duration override",
			envVars: map[string]string{
				"JWT_ACCESS_TOKEN_TTL": "45m",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Identity.AccessTokenTTL.Duration != 45*time.Minute {
					t.Errorf("expected 45m, got %v", cfg.Identity.AccessTokenTTL.Duration)
				}
			},
		},
		{
			name: "HTTPS_ONLY boolean (1)",
			envVars: map[string]string{
				"HTTPS_ONLY": "1",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if !cfg.Identity.HTTPSOnly {
					t.Error("expected HTTPSOnly to be true with '1'")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg := defaultConfig()
			cfg.applyEnvOverrides()
			tt.checkFunc(t, cfg)
		})
	}
}

func TestEnvOverrides_StorageAndCache(t *testing.T) {
	defer os.Clearenv()

	tests := []struct {
		name      string
		envVars   map[string]string
		checkFunc func(*testing.T, *Config)
	}{
		{
			name: "MEM_OR_EXTERNAL overrides storage backend",
			envVars: map[string]string{
				"MEM_OR_EXTERNAL": "postgres",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Storage.Backend != "postgres" {
					t.Errorf("expected postgres, got %s", cfg.Storage.Backend)
				}
			},
		},
		{
			name: "REDIS_URL override",
			envVars: map[string]string{
				"REDIS_URL": "redis://cache:6379/0",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Cache.RedisURL != "redis://cache:6379/0" {
					t.Errorf("expected redis url set, got %s", cfg.Cache.RedisURL)
				}
			},
		},
		{
			name: "MEM_DUMP_PATH override",
			envVars: map[string]string{
				"MEM_DUMP_PATH": "/var/lib/gateway/state.dmp",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Storage.DumpPath != "/var/lib/gateway/state.dmp" {
					t.Errorf("expected dump path set, got %s", cfg.Storage.DumpPath)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg := defaultConfig()
			cfg.applyEnvOverrides()
			tt.checkFunc(t, cfg)
		})
	}
}

func TestEnvOverrides_CircuitBreaker(t *testing.T) {
	defer os.Clearenv()

	os.Setenv("CIRCUIT_BREAKER_ENABLED", "false")
	os.Setenv("CIRCUIT_BREAKER_THRESHOLD", "12")
	os.Setenv("CIRCUIT_BREAKER_TIMEOUT", "90s")

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.CircuitBreaker.Enabled {
		t.Error("expected CircuitBreaker.Enabled to be false")
	}
	if cfg.CircuitBreaker.Threshold != 12 {
		t.Errorf("expected threshold 12, got %d", cfg.CircuitBreaker.Threshold)
	}
	if cfg.CircuitBreaker.Timeout.Duration != 90*time.Second {
		t.Errorf("expected timeout 90s, got %v", cfg.CircuitBreaker.Timeout.Duration)
	}
}
