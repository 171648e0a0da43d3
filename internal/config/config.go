package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string

	StripeAPIKey        string
	StripeWebhookSecret string

	// DefaultCommissionBps applies when a creator has no active subscription
	// carrying a plan rate. Basis points: 1000 = 10%.
	DefaultCommissionBps int

	// EscrowHoldHours is the delay between delivery and payout eligibility.
	EscrowHoldHours int

	// ReturnWindowDays bounds how long after delivery a return may be opened.
	ReturnWindowDays int

	// PayoutSweepSeconds is the interval of the escrow release job. Zero
	// disables the job.
	PayoutSweepSeconds int

	WebhookRateLimit float64
	WebhookBurst     int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "craftora"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "craftora"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		StripeAPIKey:        strings.TrimSpace(getenv("STRIPE_API_KEY", "")),
		StripeWebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),

		DefaultCommissionBps: getenvInt("DEFAULT_COMMISSION_BPS", 1000),
		EscrowHoldHours:      getenvInt("ESCROW_HOLD_HOURS", 48),
		ReturnWindowDays:     getenvInt("RETURN_WINDOW_DAYS", 14),
		PayoutSweepSeconds:   getenvInt("PAYOUT_SWEEP_SECONDS", 300),

		WebhookRateLimit: getenvFloat("WEBHOOK_RATE_LIMIT", 50),
		WebhookBurst:     getenvInt("WEBHOOK_BURST", 100),
	}

	// The commission rate is a share of the order total; more than 10000
	// basis points can never be charged.
	if cfg.DefaultCommissionBps < 0 || cfg.DefaultCommissionBps > 10000 {
		log.Printf("config: DEFAULT_COMMISSION_BPS out of range: %d", cfg.DefaultCommissionBps)
		cfg.DefaultCommissionBps = 1000
	}
	if cfg.EscrowHoldHours < 0 {
		log.Printf("config: ESCROW_HOLD_HOURS out of range: %d", cfg.EscrowHoldHours)
		cfg.EscrowHoldHours = 48
	}

	return cfg
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		log.Printf("config: invalid integer for %s: %q", key, raw)
		return fallback
	}
	return value
}

func getenvFloat(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		log.Printf("config: invalid number for %s: %q", key, raw)
		return fallback
	}
	return value
}
