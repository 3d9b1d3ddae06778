// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Payment gateway
	GatewayBaseURL       string
	GatewayKeyID         string
	GatewayKeySecret     string // Signs the per-payment orderID|paymentID message
	GatewayWebhookSecret string // Signs raw webhook bodies; independent of the key secret
	Currency             string

	// Anchor chain settings
	RPCURL         string
	ChainID        int64
	PrivateKey     string // Hex-encoded, with or without 0x prefix
	AnchorContract string // Escrow contract address (optional, sim mode if not set)

	// Security
	RateLimitRPM int

	// Tracing
	OTLPEndpoint string
}

// Polygon Amoy defaults
const (
	DefaultRPCURL         = "https://rpc-amoy.polygon.technology"
	DefaultChainID        = 80002 // Polygon Amoy
	DefaultGatewayBaseURL = "https://api.razorpay.com/v1"
	DefaultCurrency       = "INR"
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultRateLimit      = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:          os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		GatewayBaseURL:       getEnv("GATEWAY_BASE_URL", DefaultGatewayBaseURL),
		GatewayKeyID:         os.Getenv("GATEWAY_KEY_ID"),
		GatewayKeySecret:     os.Getenv("GATEWAY_KEY_SECRET"),
		GatewayWebhookSecret: os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		Currency:             getEnv("CURRENCY", DefaultCurrency),
		RPCURL:               getEnv("RPC_URL", DefaultRPCURL),
		ChainID:              getEnvInt64("CHAIN_ID", DefaultChainID),
		PrivateKey:           os.Getenv("PRIVATE_KEY"),
		AnchorContract:       os.Getenv("ANCHOR_CONTRACT"),
		RateLimitRPM:         int(getEnvInt64("RATE_LIMIT_RPM", int64(DefaultRateLimit))),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.GatewayKeySecret == "" {
		return fmt.Errorf("GATEWAY_KEY_SECRET is required")
	}
	if c.GatewayWebhookSecret == "" {
		return fmt.Errorf("GATEWAY_WEBHOOK_SECRET is required")
	}
	if c.GatewayWebhookSecret == c.GatewayKeySecret {
		// A leaked webhook secret must not expose the payment secret.
		return fmt.Errorf("GATEWAY_WEBHOOK_SECRET must differ from GATEWAY_KEY_SECRET")
	}

	if c.PrivateKey != "" {
		key := c.PrivateKey
		if len(key) == 66 && key[:2] == "0x" {
			key = key[2:]
		}
		if len(key) != 64 {
			return fmt.Errorf("PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
		}
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AnchorEnabled reports whether a real chain client can be constructed.
func (c *Config) AnchorEnabled() bool {
	return c.PrivateKey != "" && c.RPCURL != ""
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
