// Package config loads XDR's runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort                = "4002"
	DefaultBind                = "127.0.0.1"
	DefaultEnv                 = "development"
	DefaultLogLevel            = "info"
	DefaultNetwork             = "cronos-testnet"
	DefaultPricePerRequest     = "0.01"
	DefaultRecipientAddress    = "0x0000000000000000000000000000000000000000"
	DefaultForwardTimeout      = 30 * time.Second
	DefaultTraceBufferSize     = 10000
	DefaultRateLimitPerMinute  = 120
	chainIDCronosTestnet uint32 = 338
	chainIDCronosMainnet uint32 = 25
)

// Config holds every value the XDR runtime reads from its environment.
type Config struct {
	Port     string
	Bind     string
	Env      string
	LogLevel string

	Network  string
	ChainID  uint32

	PricePerRequestUSDC string
	RecipientAddress    string
	AllowHTTPUpstream   bool
	ForwardTimeout      time.Duration

	AdminSecret       string
	TraceBufferSize   int
	RateLimitPerMin   int
	OTLPEndpoint      string

	// DatabaseURL, if set, switches the ledger to its optional Postgres-backed
	// store. Persistence is not part of the core contract (spec.md §6).
	DatabaseURL string
}

// Load reads .env (if present) then the process environment, applies
// defaults, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional; absence is not an error

	cfg := &Config{
		Port:                getEnv("XDR_PORT", DefaultPort),
		Bind:                getEnv("XDR_BIND", DefaultBind),
		Env:                 getEnv("XDR_ENV", DefaultEnv),
		LogLevel:            getEnv("XDR_LOG_LEVEL", DefaultLogLevel),
		Network:             getEnv("XDR_NETWORK", DefaultNetwork),
		PricePerRequestUSDC: getEnv("XDR_PRICE_PER_REQUEST", DefaultPricePerRequest),
		RecipientAddress:    getEnv("XDR_RECIPIENT_ADDRESS", DefaultRecipientAddress),
		AllowHTTPUpstream:   getEnvBool("XDR_ALLOW_HTTP_UPSTREAM", false),
		ForwardTimeout:      getEnvDuration("XDR_FORWARD_TIMEOUT", DefaultForwardTimeout),
		AdminSecret:         getEnv("XDR_ADMIN_SECRET", ""),
		TraceBufferSize:     getEnvInt("XDR_TRACE_BUFFER_SIZE", DefaultTraceBufferSize),
		RateLimitPerMin:     getEnvInt("XDR_RATE_LIMIT_PER_MIN", DefaultRateLimitPerMinute),
		OTLPEndpoint:        getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		DatabaseURL:         getEnv("XDR_DATABASE_URL", ""),
	}

	switch cfg.Network {
	case "cronos-testnet":
		cfg.ChainID = chainIDCronosTestnet
	case "cronos-mainnet":
		cfg.ChainID = chainIDCronosMainnet
	default:
		return nil, fmt.Errorf("unknown network %q (want cronos-testnet or cronos-mainnet)", cfg.Network)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants that Load's defaults can't already guarantee
// (e.g. an explicit but malformed PORT from the environment).
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q: %w", c.Port, err)
	}
	if c.TraceBufferSize <= 0 {
		return fmt.Errorf("trace buffer size must be positive, got %d", c.TraceBufferSize)
	}
	return nil
}

func (c *Config) IsDevelopment() bool { return c.Env == "development" }
func (c *Config) IsProduction() bool  { return c.Env == "production" }

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
