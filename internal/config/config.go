// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/liveops.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Persistence backends
// --------------------------------------------------------------------------

const (
	PersistencePostgres = "postgres"
	PersistenceMemory   = "memory"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Persistence
	Persistence    string // postgres, memory
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration
	AutoMigrate    bool
	StoreTimeout   time.Duration // bound on every persistence call

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Match clock
	ClockTickInterval time.Duration // wall-clock time per tick
	ClockTickMinutes  int           // match minutes added per tick

	// Engine
	EventMinuteTolerance int // minutes a timeline event may run ahead of the clock
	MaxCheerPerRequest   int

	// Push channel
	WSOutboxSize     int
	WSWriteTimeout   time.Duration
	WSPingInterval   time.Duration
	WSCheersPerSec   float64
	WSAllowedOrigins []string

	// Maintenance
	ArchiveRetryInterval time.Duration
	EvictInterval        time.Duration
	FinalizedRetention   time.Duration
	ArchivedRetention    time.Duration // 0 keeps archived rows forever

	// Event relay (disabled when AMQPURL is empty)
	AMQPURL      string
	AMQPExchange string

	// Cache
	CacheEnabled bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	persistence := envOr("LIVE_PERSISTENCE", PersistencePostgres)
	dbURL := envOr("DATABASE_URL", "")

	switch persistence {
	case PersistencePostgres:
		if dbURL == "" {
			return nil, fmt.Errorf("DATABASE_URL must be set when LIVE_PERSISTENCE=%s", PersistencePostgres)
		}
	case PersistenceMemory:
	default:
		return nil, fmt.Errorf("LIVE_PERSISTENCE must be %q or %q, got %q",
			PersistencePostgres, PersistenceMemory, persistence)
	}

	cfg := &Config{
		Persistence:    persistence,
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,
		AutoMigrate:    envBool("AUTO_MIGRATE", true),
		StoreTimeout:   envDuration("STORE_TIMEOUT", 3*time.Second),

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 300),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		ClockTickInterval: envDuration("CLOCK_TICK_INTERVAL", 60*time.Second),
		ClockTickMinutes:  envInt("CLOCK_TICK_MINUTES", 1),

		EventMinuteTolerance: envInt("EVENT_MINUTE_TOLERANCE", 2),
		MaxCheerPerRequest:   envInt("MAX_CHEER_PER_REQUEST", 10),

		WSOutboxSize:     envInt("WS_OUTBOX_SIZE", 64),
		WSWriteTimeout:   envDuration("WS_WRITE_TIMEOUT", 5*time.Second),
		WSPingInterval:   envDuration("WS_PING_INTERVAL", 30*time.Second),
		WSCheersPerSec:   envFloat("WS_CHEERS_PER_SECOND", 2),
		WSAllowedOrigins: envList("WS_ALLOWED_ORIGINS", nil),

		ArchiveRetryInterval: envDuration("ARCHIVE_RETRY_INTERVAL", time.Minute),
		EvictInterval:        envDuration("EVICT_INTERVAL", 10*time.Minute),
		FinalizedRetention:   envDuration("FINALIZED_RETENTION", 6*time.Hour),
		ArchivedRetention:    envDuration("ARCHIVED_RETENTION", 30*24*time.Hour),

		AMQPURL:      envOr("AMQP_URL", ""),
		AMQPExchange: envOr("AMQP_EXCHANGE", "live.fixtures"),

		CacheEnabled: envBool("CACHE_ENABLED", true),
	}

	if cfg.ClockTickInterval <= 0 {
		return nil, fmt.Errorf("CLOCK_TICK_INTERVAL must be positive, got %s", cfg.ClockTickInterval)
	}
	if cfg.ClockTickMinutes < 1 {
		return nil, fmt.Errorf("CLOCK_TICK_MINUTES must be at least 1, got %d", cfg.ClockTickMinutes)
	}
	return cfg, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go duration strings ("90s", "2m") or bare seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
