package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ORDER_STATUS_POLICY values. strict is the default: a payment callback may
// only move a PENDING order to PAID, and anything else is rejected as an
// invalid state. overwrite writes whatever status the callback reports,
// including PENDING to CANCELLED, without touching stock.
const (
	StatusPolicyStrict    = "strict"
	StatusPolicyOverwrite = "overwrite"
)

type Config struct {
	ServiceName string
	HTTPAddr    string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisHost       string
	RedisPort       string
	RedisPassword   string
	ProductCacheTTL time.Duration

	KafkaBrokers      []string
	KafkaOrderTopic   string
	KafkaPaymentTopic string

	JWTSecret     string
	JWTAccessTTL  time.Duration
	JWTRefreshTTL time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeCurrency      string
	FrontendURL         string

	JaegerEndpoint    string
	OrderStatusPolicy string
	ShutdownTimeout   time.Duration
}

// Load reads an optional .env file and then the process environment.
// Invalid values keep their defaults and are reported together in the
// returned error.
func Load() (Config, error) {
	_ = godotenv.Load()

	var errs []error
	duration := func(key string, def time.Duration) time.Duration {
		raw := os.Getenv(key)
		if raw == "" {
			return def
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return def
		}
		return d
	}

	cfg := Config{
		ServiceName: getEnv("SERVICE_NAME", "shop-service"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "shopdb"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisHost:       getEnv("REDIS_HOST", "localhost"),
		RedisPort:       getEnv("REDIS_PORT", "6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		ProductCacheTTL: duration("PRODUCT_CACHE_TTL", 5*time.Minute),

		KafkaBrokers:      splitCSV(getEnv("KAFKA_BROKER", "localhost:9092")),
		KafkaOrderTopic:   getEnv("KAFKA_ORDER_TOPIC", "order_events"),
		KafkaPaymentTopic: getEnv("KAFKA_PAYMENT_TOPIC", "payment_events"),

		JWTSecret:     getEnv("JWT_SECRET", "change-me-in-production"),
		JWTAccessTTL:  duration("JWT_ACCESS_TTL", 24*time.Hour),
		JWTRefreshTTL: duration("JWT_REFRESH_TTL", 7*24*time.Hour),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeCurrency:      strings.ToLower(getEnv("STRIPE_CURRENCY", "usd")),
		FrontendURL:         strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),

		JaegerEndpoint:    getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		OrderStatusPolicy: strings.ToLower(getEnv("ORDER_STATUS_POLICY", StatusPolicyStrict)),
		ShutdownTimeout:   duration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if cfg.OrderStatusPolicy != StatusPolicyStrict && cfg.OrderStatusPolicy != StatusPolicyOverwrite {
		errs = append(errs, fmt.Errorf("ORDER_STATUS_POLICY: unknown policy %q", cfg.OrderStatusPolicy))
		cfg.OrderStatusPolicy = StatusPolicyStrict
	}

	return cfg, errors.Join(errs...)
}

// PostgresDSN builds a lib/pq keyword/value connection string.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
