package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultAppName        = "Augury"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultOrderSweep     = time.Minute
	defaultMarketSweep    = time.Hour
	defaultMatchWorkers   = 4
	defaultGrantAmount    = 1000
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	DatabasePool   int32
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// Lifecycle sweeps.
	OrderSweepInterval  time.Duration
	MarketSweepInterval time.Duration

	// Matching.
	MatchWorkers int
	FeeRate      decimal.Decimal
	FeeWalletID  string

	// Onboarding play-money grant. Disabled when the treasury wallet or
	// token is unset.
	GrantWalletID string
	GrantToken    string
	GrantAmount   int64
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:             getEnv("APP_NAME", defaultAppName),
		AppEnv:              getEnv("APP_ENV", defaultAppEnv),
		Port:                getEnv("PORT", defaultPort),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		ShutdownPeriod:      defaultShutdownDelay,
		IdempotencyTTL:      defaultIdempotencyTTL,
		OrderSweepInterval:  defaultOrderSweep,
		MarketSweepInterval: defaultMarketSweep,
		MatchWorkers:        defaultMatchWorkers,
		FeeRate:             decimal.Zero,
		FeeWalletID:         os.Getenv("FEE_WALLET_ID"),
		GrantWalletID:       os.Getenv("GRANT_WALLET_ID"),
		GrantToken:          os.Getenv("GRANT_TOKEN"),
		GrantAmount:         defaultGrantAmount,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.OrderSweepInterval, err = durationEnv("ORDER_SWEEP_INTERVAL", cfg.OrderSweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.MarketSweepInterval, err = durationEnv("MARKET_SWEEP_INTERVAL", cfg.MarketSweepInterval); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("DATABASE_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid DATABASE_POOL_SIZE: %q", v)
		}
		cfg.DatabasePool = int32(n)
	}

	if v := os.Getenv("MATCH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MATCH_WORKERS: %q", v)
		}
		cfg.MatchWorkers = n
	}

	if v := os.Getenv("FEE_RATE"); v != "" {
		rate, err := decimal.NewFromString(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FEE_RATE: %w", err)
		}
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return Config{}, fmt.Errorf("FEE_RATE must be within [0, 1], got %s", rate)
		}
		cfg.FeeRate = rate
	}

	if v := os.Getenv("GRANT_AMOUNT"); v != "" {
		amount, err := strconv.ParseInt(v, 10, 64)
		if err != nil || amount < 0 {
			return Config{}, fmt.Errorf("invalid GRANT_AMOUNT: %q", v)
		}
		cfg.GrantAmount = amount
	}

	if cfg.FeeRate.IsPositive() && cfg.FeeWalletID == "" {
		return Config{}, fmt.Errorf("FEE_WALLET_ID must be set when FEE_RATE is positive")
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}

	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// getEnv returns the environment variable value for key, or fallback when unset.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// durationEnv reads KEY_SECONDS as an integer second count, falling back to
// KEY parsed as a Go duration.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}
