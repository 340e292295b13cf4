package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Attribution AttributionConfig
	Commission  CommissionConfig
	Fraud       FraudConfig
	Redis       RedisConfig
	Payment     PaymentConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PublicHost     string // used when rendering referral links, e.g. https://tutorwise.io
	RateLimitRPM   int
	RateLimitBurst int
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

// AttributionConfig controls referral codes and the signed attribution cookie.
type AttributionConfig struct {
	CookieName     string
	CookieSecret   string
	CookieDomain   string
	CookieSecure   bool
	LinkWindow     time.Duration // cookie validity when set by a referral link
	SessionWindow  time.Duration // cookie validity when set by general session attribution
	CodeAlphabet   string
	CodeLength     int
	MaxCodeRetries int
	CodeMemoSize   int // owner -> code entries kept in process
	QueryParam     string
}

// CommissionConfig holds the default split policy. Values can be overridden at
// runtime through system settings.
type CommissionConfig struct {
	PlatformFeeRate  decimal.Decimal
	TierRates        []decimal.Decimal // index 0 = tier 1 (direct referrer)
	MultiTierEnabled bool
	MaxDepth         int
	ClearingPeriod   time.Duration
	ReleaseSpec      string // cron spec for releasing cleared entries
}

type FraudConfig struct {
	Window           time.Duration // size of the scanned window
	BaselineWindows  int           // number of previous windows used as baseline
	ZThreshold       float64
	MinVelocityCount int
	MinClusterSize   int
	ScanDelay        time.Duration // scan trails wall clock by this much
	ScanSpec         string        // cron spec
	MaxChainDepth    int
}

type RedisConfig struct {
	URL     string // empty disables the cache
	CodeTTL time.Duration
}

type PaymentConfig struct {
	WebhookSecret string
}

func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8099"),
			Env:            getEnv("APP_ENV", "development"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			PublicHost:     getEnv("PUBLIC_HOST", "http://localhost:8099"),
			RateLimitRPM:   getEnvAsInt("RATE_LIMIT_RPM", 100),
			RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DATABASE_DSN", "tutorwise:tutorwise@tcp(localhost:3306)/tutorwise?charset=utf8mb4&parseTime=True&loc=UTC"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", "change-me-in-production"),
			AccessExpiry: getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			Issuer:       getEnv("JWT_ISSUER", "tutorwise"),
		},
		Attribution: AttributionConfig{
			CookieName:     getEnv("REFERRAL_COOKIE_NAME", "tw_ref"),
			CookieSecret:   getEnv("REFERRAL_COOKIE_SECRET", "change-me-cookie-secret"),
			CookieDomain:   getEnv("REFERRAL_COOKIE_DOMAIN", ""),
			CookieSecure:   getEnvAsBool("REFERRAL_COOKIE_SECURE", false),
			LinkWindow:     getEnvAsDuration("REFERRAL_LINK_WINDOW", 7*24*time.Hour),
			SessionWindow:  getEnvAsDuration("REFERRAL_SESSION_WINDOW", 30*24*time.Hour),
			CodeAlphabet:   getEnv("REFERRAL_CODE_ALPHABET", "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"),
			CodeLength:     getEnvAsInt("REFERRAL_CODE_LENGTH", 7),
			MaxCodeRetries: getEnvAsInt("REFERRAL_CODE_MAX_RETRIES", 20),
			CodeMemoSize:   getEnvAsInt("REFERRAL_CODE_MEMO_SIZE", 10000),
			QueryParam:     getEnv("REFERRAL_QUERY_PARAM", "ref"),
		},
		Commission: CommissionConfig{
			PlatformFeeRate:  getEnvAsDecimal("COMMISSION_PLATFORM_FEE_RATE", decimal.RequireFromString("0.10")),
			TierRates:        getEnvAsDecimals("COMMISSION_TIER_RATES", []decimal.Decimal{decimal.RequireFromString("0.10")}),
			MultiTierEnabled: getEnvAsBool("COMMISSION_MULTI_TIER", false),
			MaxDepth:         getEnvAsInt("COMMISSION_MAX_DEPTH", 3),
			ClearingPeriod:   getEnvAsDuration("COMMISSION_CLEARING_PERIOD", 7*24*time.Hour),
			ReleaseSpec:      getEnv("COMMISSION_RELEASE_SPEC", "@every 15m"),
		},
		Fraud: FraudConfig{
			Window:           getEnvAsDuration("FRAUD_WINDOW", time.Hour),
			BaselineWindows:  getEnvAsInt("FRAUD_BASELINE_WINDOWS", 168),
			ZThreshold:       getEnvAsFloat("FRAUD_Z_THRESHOLD", 3),
			MinVelocityCount: getEnvAsInt("FRAUD_MIN_VELOCITY_COUNT", 5),
			MinClusterSize:   getEnvAsInt("FRAUD_MIN_CLUSTER_SIZE", 2),
			ScanDelay:        getEnvAsDuration("FRAUD_SCAN_DELAY", 5*time.Minute),
			ScanSpec:         getEnv("FRAUD_SCAN_SPEC", "@every 10m"),
			MaxChainDepth:    getEnvAsInt("FRAUD_MAX_CHAIN_DEPTH", 32),
		},
		Redis: RedisConfig{
			URL:     getEnv("REDIS_URL", ""),
			CodeTTL: getEnvAsDuration("REDIS_CODE_TTL", 24*time.Hour),
		},
		Payment: PaymentConfig{
			WebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),
		},
	}
}

// ActiveTierRates returns the tier rates that apply under the current
// multi-tier setting, capped at MaxDepth.
func (c CommissionConfig) ActiveTierRates() []decimal.Decimal {
	if len(c.TierRates) == 0 {
		return nil
	}
	if !c.MultiTierEnabled {
		return c.TierRates[:1]
	}
	n := len(c.TierRates)
	if c.MaxDepth > 0 && c.MaxDepth < n {
		n = c.MaxDepth
	}
	return c.TierRates[:n]
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if val, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return val
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if val, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return val
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if val, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return val
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if val, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return val
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if val, err := decimal.NewFromString(getEnv(key, "")); err == nil {
		return val
	}
	return defaultValue
}

// getEnvAsDecimals parses a comma separated list such as "0.10,0.03,0.01".
// Any unparsable element makes the whole value fall back to the default.
func getEnvAsDecimals(key string, defaultValue []decimal.Decimal) []decimal.Decimal {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	rates, err := ParseRates(raw)
	if err != nil {
		return defaultValue
	}
	return rates
}

// ParseRates parses a comma separated list of decimal fractions.
func ParseRates(raw string) ([]decimal.Decimal, error) {
	parts := strings.Split(raw, ",")
	out := make([]decimal.Decimal, 0, len(parts))
	for _, p := range parts {
		d, err := decimal.NewFromString(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
