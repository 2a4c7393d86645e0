package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	if err := os.Setenv("SERVER_PORT", "9090"); err != nil {
		t.Fatalf("Failed to set SERVER_PORT: %v", err)
	}
	if err := os.Setenv("VERUS_RPC_ENDPOINTS", "http://node-a:27486, http://node-b:27486"); err != nil {
		t.Fatalf("Failed to set VERUS_RPC_ENDPOINTS: %v", err)
	}
	if err := os.Setenv("CACHE_SUMMARY_TTL", "45s"); err != nil {
		t.Fatalf("Failed to set CACHE_SUMMARY_TTL: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("SERVER_PORT")
		_ = os.Unsetenv("VERUS_RPC_ENDPOINTS")
		_ = os.Unsetenv("CACHE_SUMMARY_TTL")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}

	if len(cfg.Node.Endpoints) != 2 {
		t.Fatalf("Node.Endpoints = %v, want 2 entries", cfg.Node.Endpoints)
	}
	if cfg.Node.Endpoints[1] != "http://node-b:27486" {
		t.Errorf("Node.Endpoints[1] = %v, want trimmed URL", cfg.Node.Endpoints[1])
	}

	if cfg.Cache.SummaryTTL != 45*time.Second {
		t.Errorf("Cache.SummaryTTL = %v, want %v", cfg.Cache.SummaryTTL, 45*time.Second)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "NONEXISTENT_KEY",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns duration when valid",
			key:          "TEST_DURATION",
			defaultValue: time.Minute,
			envValue:     "90s",
			want:         90 * time.Second,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_DURATION",
			defaultValue: time.Minute,
			envValue:     "not-a-duration",
			want:         time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.Setenv(tt.key, tt.envValue); err != nil {
				t.Fatalf("Failed to set env var: %v", err)
			}
			defer func() {
				_ = os.Unsetenv(tt.key)
			}()

			got := getEnvAsDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsList(t *testing.T) {
	if err := os.Setenv("TEST_LIST", " a, ,b ,"); err != nil {
		t.Fatalf("Failed to set env var: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("TEST_LIST")
	}()

	got := getEnvAsList("TEST_LIST", "")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("getEnvAsList() = %v, want [a b]", got)
	}
}
