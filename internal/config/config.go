// Package config provides configuration management for the VerusPulse core.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Node     NodeConfig
	Cache    CacheConfig
	Scan     ScanConfig
	Trends   TrendsConfig
	Events   EventsConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// NodeConfig holds Verus daemon RPC configuration
type NodeConfig struct {
	// Endpoints is the ordered list of daemon RPC URLs; the first entry is
	// the primary, the rest are failover targets.
	Endpoints   []string
	User        string
	Password    string
	CallTimeout time.Duration
	MaxRetries  int
	Cooldown    time.Duration
}

// CacheConfig holds read-through cache configuration
type CacheConfig struct {
	// IdentityTTL is how long a resolved identity record stays fresh.
	IdentityTTL time.Duration
	// SummaryTTL is the TTL for chain-summary calls (blockchain/network info).
	SummaryTTL time.Duration
	// MiningTTL is the TTL for mining-sensitive calls.
	MiningTTL time.Duration
	// MempoolTTL is the TTL for raw mempool snapshots.
	MempoolTTL time.Duration
	// BlockTTL is the TTL for block-by-hash/height lookups.
	BlockTTL time.Duration
	// SweepInterval is how often expired entries are swept.
	SweepInterval time.Duration
}

// ScanConfig holds scan coordinator configuration
type ScanConfig struct {
	// PriorityDepth is how many recent blocks a priority scan covers.
	PriorityDepth int64
	// ChunkSize is how many blocks are covered per address-index query.
	ChunkSize int64
	// BatchSize is how many raw transactions are fetched per batch call.
	BatchSize int
	// RatePerSecond throttles scan chunks against the daemon.
	RatePerSecond float64
	// LockPath is the background worker singleton lock file.
	LockPath string
}

// TrendsConfig holds trend aggregator configuration
type TrendsConfig struct {
	Window    time.Duration
	Staleness time.Duration
	Interval  time.Duration
}

// EventsConfig holds broadcaster configuration
type EventsConfig struct {
	HeartbeatInterval time.Duration
	ClientBuffer      int
	PollInterval      time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "veruspulse"),
				User:           getEnv("POSTGRES_USER", "veruspulse"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Node: NodeConfig{
			Endpoints:   getEnvAsList("VERUS_RPC_ENDPOINTS", "http://127.0.0.1:27486"),
			User:        getEnv("VERUS_RPC_USER", ""),
			Password:    getEnv("VERUS_RPC_PASSWORD", ""),
			CallTimeout: getEnvAsDuration("VERUS_RPC_TIMEOUT", 15*time.Second),
			MaxRetries:  getEnvAsInt("VERUS_RPC_MAX_RETRIES", 3),
			Cooldown:    getEnvAsDuration("VERUS_RPC_COOLDOWN", 30*time.Second),
		},
		Cache: CacheConfig{
			IdentityTTL:   getEnvAsDuration("CACHE_IDENTITY_TTL", 10*time.Minute),
			SummaryTTL:    getEnvAsDuration("CACHE_SUMMARY_TTL", 30*time.Second),
			MiningTTL:     getEnvAsDuration("CACHE_MINING_TTL", 15*time.Second),
			MempoolTTL:    getEnvAsDuration("CACHE_MEMPOOL_TTL", 5*time.Second),
			BlockTTL:      getEnvAsDuration("CACHE_BLOCK_TTL", 10*time.Minute),
			SweepInterval: getEnvAsDuration("CACHE_SWEEP_INTERVAL", time.Minute),
		},
		Scan: ScanConfig{
			PriorityDepth: int64(getEnvAsInt("SCAN_PRIORITY_DEPTH", 10000)),
			ChunkSize:     int64(getEnvAsInt("SCAN_CHUNK_SIZE", 5000)),
			BatchSize:     getEnvAsInt("SCAN_BATCH_SIZE", 50),
			RatePerSecond: getEnvAsFloat("SCAN_RATE_PER_SECOND", 4),
			LockPath:      getEnv("SCAN_LOCK_PATH", "/tmp/veruspulse-scan.lock"),
		},
		Trends: TrendsConfig{
			Window:    getEnvAsDuration("TRENDS_WINDOW", 7*24*time.Hour),
			Staleness: getEnvAsDuration("TRENDS_STALENESS", 15*time.Minute),
			Interval:  getEnvAsDuration("TRENDS_INTERVAL", 5*time.Minute),
		},
		Events: EventsConfig{
			HeartbeatInterval: getEnvAsDuration("EVENTS_HEARTBEAT_INTERVAL", 30*time.Second),
			ClientBuffer:      getEnvAsInt("EVENTS_CLIENT_BUFFER", 64),
			PollInterval:      getEnvAsDuration("EVENTS_POLL_INTERVAL", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if len(config.Node.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one Verus RPC endpoint is required")
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList gets a comma-separated environment variable as a string slice
func getEnvAsList(key, defaultValue string) []string {
	parts := strings.Split(getEnv(key, defaultValue), ",")
	var values []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			values = append(values, p)
		}
	}
	return values
}
