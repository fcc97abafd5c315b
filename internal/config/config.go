package config

import (
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

	OTLPEndpoint   string
	OTLPProtocol   string
	TracingEnabled bool
	MetricsEnabled bool

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
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	BillingAPIKey           string
	BillingWebhookSecret    string
	CheckoutSuccessURL      string
	CheckoutCancelURL       string
	BillingPortalReturnURL  string
	WebhookClockTolerance   int64
	SchedulerEnabled        bool
	SchedulerIntervalSecond int64

	CompletionBaseURL string
	CompletionAPIKey  string
	CompletionModel   string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "listingcraft"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint:   getenv("OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol:   strings.ToLower(getenv("OTLP_PROTOCOL", "grpc")),
		TracingEnabled: getenvBool("TRACING_ENABLED", true),
		MetricsEnabled: getenvBool("METRICS_ENABLED", true),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "listingcraft"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 25)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 300)),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		BillingAPIKey:           strings.TrimSpace(getenv("BILLING_API_KEY", "")),
		BillingWebhookSecret:    strings.TrimSpace(getenv("BILLING_WEBHOOK_SECRET", "")),
		CheckoutSuccessURL:      getenv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/billing/success"),
		CheckoutCancelURL:       getenv("CHECKOUT_CANCEL_URL", "http://localhost:3000/billing/cancel"),
		BillingPortalReturnURL:  getenv("BILLING_PORTAL_RETURN_URL", "http://localhost:3000/billing"),
		WebhookClockTolerance:   getenvInt64("WEBHOOK_CLOCK_TOLERANCE", 300),
		SchedulerEnabled:        getenvBool("SCHEDULER_ENABLED", true),
		SchedulerIntervalSecond: getenvInt64("SCHEDULER_INTERVAL_SECONDS", 60),

		CompletionBaseURL: getenv("COMPLETION_BASE_URL", "https://api.deepseek.com"),
		CompletionAPIKey:  strings.TrimSpace(getenv("COMPLETION_API_KEY", "")),
		CompletionModel:   getenv("COMPLETION_MODEL", "deepseek-chat"),

		SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", "ListingCraft <no-reply@listingcraft.io>"),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
