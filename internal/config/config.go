package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"sendflow/internal/fees"
)

type Config struct {
	Port        string
	DBUrl       string
	StoreDriver string
	JWTSecret   string
	LogLevel    string

	RedisURL    string
	RabbitMQURL string

	PlatformAccountID int
	Fees              fees.Config

	AgentRequestFeeFree bool
	BiometricEnabled    bool

	CodeAttemptLimit  int
	CodeAttemptWindow time.Duration

	CompensationInterval    time.Duration
	CompensationMaxAttempts int

	PendingTransferTTL time.Duration
	ReconcileSchedule  string
	ExpirySchedule     string

	RateLimitRPS   float64
	RateLimitBurst int
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println(".env file not found, using environment and defaults")
	}

	p := &parser{}
	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		DBUrl:       os.Getenv("DB_URL"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "mysql")),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		RedisURL:    os.Getenv("REDIS_URL"),
		RabbitMQURL: os.Getenv("RABBITMQ_URL"),

		PlatformAccountID: p.intVar("PLATFORM_ACCOUNT_ID", 1),

		AgentRequestFeeFree: p.boolVar("AGENT_REQUEST_FEE_FREE", false),
		BiometricEnabled:    p.boolVar("BIOMETRIC_ENABLED", false),

		CodeAttemptLimit:  p.intVar("CODE_ATTEMPT_LIMIT", 10),
		CodeAttemptWindow: p.durationVar("CODE_ATTEMPT_WINDOW", 15*time.Minute),

		CompensationInterval:    p.durationVar("COMPENSATION_INTERVAL", 30*time.Second),
		CompensationMaxAttempts: p.intVar("COMPENSATION_MAX_ATTEMPTS", 10),

		PendingTransferTTL: p.durationVar("PENDING_TRANSFER_TTL", 72*time.Hour),
		ReconcileSchedule:  getEnv("RECONCILE_SCHEDULE", "0 3 * * *"),
		ExpirySchedule:     getEnv("EXPIRY_SCHEDULE", "*/15 * * * *"),

		RateLimitRPS:   p.floatVar("RATE_LIMIT_RPS", 100),
		RateLimitBurst: p.intVar("RATE_LIMIT_BURST", 200),
	}

	defaults := fees.DefaultConfig()
	cfg.Fees = fees.Config{
		Scale: int32(p.intVar("MONEY_SCALE", int(defaults.Scale))),
		Withdrawal: fees.Schedule{
			Rate:      p.rateVar("WITHDRAWAL_FEE_RATE", defaults.Withdrawal.Rate),
			AgentRate: p.rateVar("WITHDRAWAL_AGENT_RATE", defaults.Withdrawal.AgentRate),
		},
		DepositAgentRate: p.rateVar("DEPOSIT_AGENT_RATE", decimal.Zero),
	}
	base := fees.NewRateTable(
		p.rateVar("TRANSFER_FEE_RATE", decimal.RequireFromString("0.065")),
		p.rateVar("TRANSFER_AGENT_RATE", decimal.RequireFromString("0.01")),
	)
	table, err := fees.ParseRateTable(base, os.Getenv("TRANSFER_FEE_TABLE"))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("TRANSFER_FEE_TABLE: %w", err))
	}
	cfg.Fees.Transfers = table

	if cfg.StoreDriver != "mysql" && cfg.StoreDriver != "memory" {
		p.errs = append(p.errs, fmt.Errorf("STORE_DRIVER: unknown driver %q", cfg.StoreDriver))
	}
	if cfg.StoreDriver == "mysql" && cfg.DBUrl == "" {
		p.errs = append(p.errs, errors.New("DB_URL is required when STORE_DRIVER=mysql"))
	}

	return cfg, errors.Join(p.errs...)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// parser collects malformed values instead of silently falling back.
type parser struct {
	errs []error
}

func (p *parser) intVar(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) floatVar(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) boolVar(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) durationVar(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) rateVar(key string, fallback decimal.Decimal) decimal.Decimal {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := decimal.NewFromString(raw)
	if err != nil || v.IsNegative() {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid rate %q", key, raw))
		return fallback
	}
	return v
}
