package config

import (
	"bidding-core/utils"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
)

// Storage and notifier backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds everything the bidding server needs at startup
type Config struct {
	Port string

	StorageBackend string
	DatabaseURL    string
	RunMigrations  bool

	NotifierBackend  string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	SubscriberBuffer int

	MaxBid           decimal.Decimal
	SubmitRetries    uint64
	SubmitRetryBase  time.Duration
	EndWatchInterval time.Duration

	LogLevel string
	SeedDemo bool
}

// Load reads .env (if present), then the environment, then command-line flags
// in args. Later sources override earlier ones.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		utils.Warn("config: could not load .env file", map[string]any{"error": err.Error()})
	}

	cfg := &Config{
		Port:             getEnvOrDefault("PORT", "8080"),
		StorageBackend:   getEnvOrDefault("STORAGE_BACKEND", BackendMemory),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RunMigrations:    getBoolEnv("RUN_MIGRATIONS", true),
		NotifierBackend:  getEnvOrDefault("NOTIFIER_BACKEND", BackendMemory),
		RedisAddr:        getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getIntEnv("REDIS_DB", 0),
		SubscriberBuffer: getIntEnv("SUBSCRIBER_BUFFER", 64),
		SubmitRetries:    uint64(getIntEnv("SUBMIT_RETRIES", 3)),
		SubmitRetryBase:  getDurationEnv("SUBMIT_RETRY_BASE", 20*time.Millisecond),
		EndWatchInterval: getDurationEnv("END_WATCH_INTERVAL", time.Second),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),
		SeedDemo:         getBoolEnv("SEED_DEMO", true),
	}
	maxBid := getEnvOrDefault("MAX_BID", "1000000000")

	flags := pflag.NewFlagSet("bidding-server", pflag.ContinueOnError)
	flags.StringVar(&cfg.Port, "port", cfg.Port, "HTTP listen port")
	flags.StringVar(&cfg.StorageBackend, "storage", cfg.StorageBackend, "ledger backend: memory or postgres")
	flags.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection string")
	flags.BoolVar(&cfg.RunMigrations, "migrate", cfg.RunMigrations, "apply schema migrations at startup")
	flags.StringVar(&cfg.NotifierBackend, "notifier", cfg.NotifierBackend, "event transport: memory or redis")
	flags.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address")
	flags.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database number")
	flags.IntVar(&cfg.SubscriberBuffer, "subscriber-buffer", cfg.SubscriberBuffer, "events buffered per subscriber before it is dropped")
	flags.StringVar(&maxBid, "max-bid", maxBid, "largest accepted bid amount")
	flags.Uint64Var(&cfg.SubmitRetries, "submit-retries", cfg.SubmitRetries, "retries for a failed ledger write")
	flags.DurationVar(&cfg.SubmitRetryBase, "submit-retry-base", cfg.SubmitRetryBase, "base delay of the ledger write backoff")
	flags.DurationVar(&cfg.EndWatchInterval, "end-watch-interval", cfg.EndWatchInterval, "how often ended auctions are announced")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	flags.BoolVar(&cfg.SeedDemo, "seed-demo", cfg.SeedDemo, "create demo auctions when the store is empty")
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var err error
	cfg.MaxBid, err = decimal.NewFromString(maxBid)
	if err != nil {
		return nil, fmt.Errorf("config: invalid max bid %q: %w", maxBid, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option combinations
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.StorageBackend)
	}

	switch c.NotifierBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("config: unknown notifier backend %q", c.NotifierBackend)
	}

	if c.EndWatchInterval <= 0 {
		return fmt.Errorf("config: end watch interval must be positive")
	}
	if c.MaxBid.IsNegative() {
		return fmt.Errorf("config: max bid must not be negative")
	}
	return nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		utils.Warn("config: ignoring malformed integer", map[string]any{"key": key, "value": value})
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		utils.Warn("config: ignoring malformed boolean", map[string]any{"key": key, "value": value})
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		utils.Warn("config: ignoring malformed duration", map[string]any{"key": key, "value": value})
	}
	return defaultValue
}
