// Package config provides configuration management for the faucet service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Faucet   FaucetConfig
	RPC      RPCConfig
	Registry RegistryConfig
	Identity IdentityConfig
	Logging  LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port        string
	Host        string
	ThrottleRPS int // Per-IP requests per second at the HTTP layer
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
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

// ClickHouseConfig holds ClickHouse configuration for the analytics sink
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// FaucetConfig holds the faucet's own account and claim policy settings
type FaucetConfig struct {
	// Address is the faucet's own EIP-55 address; donations must target it.
	Address string
	// PrivateKey is the hex-encoded signing key for outbound drips.
	PrivateKey string
	// MinBalance is the pool balance below which drips pay zero.
	MinBalance float64
	// OptimalBalance is the pool balance at which drips pay MaxClaim.
	OptimalBalance float64
	// MaxClaim is the largest single drip amount.
	MaxClaim float64
	// ClaimWindow is the rolling cooldown window per wallet and per IP.
	ClaimWindow time.Duration
	// DonationTrustMin is the cumulative donation total that bypasses the
	// reputation score check.
	DonationTrustMin float64
}

// RPCConfig holds consensus client configuration
type RPCConfig struct {
	Timeout      time.Duration
	Attempts     int
	RetryBackoff time.Duration
	LivenessTTL  time.Duration
}

// RegistryConfig holds network registry configuration
type RegistryConfig struct {
	UpstreamURL string
	SnapshotTTL time.Duration
}

// IdentityConfig holds reputation score oracle configuration
type IdentityConfig struct {
	OracleURL      string
	OracleAPIKey   string
	ScoreThreshold float64
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
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			ThrottleRPS: getEnvAsInt("SERVER_THROTTLE_RPS", 5),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "faucet"),
				User:           getEnv("POSTGRES_USER", "faucet"),
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
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "faucet"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
		},
		Faucet: FaucetConfig{
			Address:          getEnv("FAUCET_ADDRESS", ""),
			PrivateKey:       getEnv("FAUCET_PRIVATE_KEY", ""),
			MinBalance:       getEnvAsFloat("FAUCET_MIN_BALANCE", 10),
			OptimalBalance:   getEnvAsFloat("FAUCET_OPTIMAL_BALANCE", 100),
			MaxClaim:         getEnvAsFloat("FAUCET_MAX_CLAIM", 1),
			ClaimWindow:      getEnvAsDuration("FAUCET_CLAIM_WINDOW", 24*time.Hour),
			DonationTrustMin: getEnvAsFloat("FAUCET_DONATION_TRUST_MIN", 1),
		},
		RPC: RPCConfig{
			Timeout:      getEnvAsDuration("RPC_TIMEOUT", 15*time.Second),
			Attempts:     getEnvAsInt("RPC_ATTEMPTS", 2),
			RetryBackoff: getEnvAsDuration("RPC_RETRY_BACKOFF", 500*time.Millisecond),
			LivenessTTL:  getEnvAsDuration("RPC_LIVENESS_TTL", 20*time.Minute),
		},
		Registry: RegistryConfig{
			UpstreamURL: getEnv("REGISTRY_UPSTREAM_URL", "https://chainid.network/chains.json"),
			SnapshotTTL: getEnvAsDuration("REGISTRY_SNAPSHOT_TTL", 24*time.Hour),
		},
		Identity: IdentityConfig{
			OracleURL:      getEnv("IDENTITY_ORACLE_URL", ""),
			OracleAPIKey:   getEnv("IDENTITY_ORACLE_API_KEY", ""),
			ScoreThreshold: getEnvAsFloat("IDENTITY_SCORE_THRESHOLD", 20),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the invariants the core relies on. The claim policy is
// undefined when MinBalance >= OptimalBalance, so that is rejected here
// rather than at claim time.
func (c *Config) Validate() error {
	if c.Faucet.MinBalance >= c.Faucet.OptimalBalance {
		return fmt.Errorf("FAUCET_MIN_BALANCE (%v) must be less than FAUCET_OPTIMAL_BALANCE (%v)",
			c.Faucet.MinBalance, c.Faucet.OptimalBalance)
	}
	if c.Faucet.MaxClaim <= 0 {
		return fmt.Errorf("FAUCET_MAX_CLAIM must be positive, got %v", c.Faucet.MaxClaim)
	}
	if c.Faucet.ClaimWindow <= 0 {
		return fmt.Errorf("FAUCET_CLAIM_WINDOW must be positive, got %v", c.Faucet.ClaimWindow)
	}
	if c.RPC.Attempts < 1 {
		return fmt.Errorf("RPC_ATTEMPTS must be at least 1, got %d", c.RPC.Attempts)
	}
	return nil
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
