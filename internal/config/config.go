package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPaymentSettingsHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	SchedulerEnabled bool
	MigrateOnStart   bool

	BootstrapAdminID    string
	BootstrapAdminEmail string
	SeedDemoCourse      bool

	// PublicURL is the externally reachable base of this service, used to
	// build gateway callback URLs.
	PublicURL   string
	FrontendURL string

	AuthJWTSecret string
	AuthJWTIssuer string

	LogLevel              string
	LogFormat             string
	LogSamplingInitial    int
	LogSamplingThereafter int

	OTLPEndpoint      string
	OtelEnabled       bool
	OtelProtocol      string
	OtelSamplingRatio float64

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
	DBLogLevel        string
	DBSlowQuery       time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Bkash BkashConfig
}

// BkashConfig holds merchant credentials for the bKash tokenized checkout API.
type BkashConfig struct {
	BaseURL   string
	Username  string
	Password  string
	AppKey    string
	AppSecret string
	Timeout   time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:               getenv("APP_SERVICE", "shikkha"),
		AppVersion:            getenv("APP_VERSION", "0.1.0"),
		Environment:           getenv("ENVIRONMENT", "development"),
		HTTPAddr:              getenv("HTTP_ADDR", ":8080"),
		NodeID:                getenvInt64("SNOWFLAKE_NODE", 1),
		SchedulerEnabled:      getenvBool("SCHEDULER_ENABLED", true),
		MigrateOnStart:        getenvBool("MIGRATE_ON_START", true),
		BootstrapAdminID:      strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_ID", "")),
		BootstrapAdminEmail:   strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_EMAIL", "")),
		SeedDemoCourse:        getenvBool("SEED_DEMO_COURSE", false),
		PublicURL:             strings.TrimRight(getenv("PUBLIC_URL", "http://localhost:8080"), "/"),
		FrontendURL:           strings.TrimRight(getenv("FRONTEND_URL", "http://localhost:3000"), "/"),
		AuthJWTSecret:         strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthJWTIssuer:         strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
		LogLevel:              strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:             strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		LogSamplingInitial:    int(getenvInt64("LOG_SAMPLING_INITIAL", 100)),
		LogSamplingThereafter: int(getenvInt64("LOG_SAMPLING_THEREAFTER", 100)),
		OTLPEndpoint:          strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
		OtelEnabled:           getenvBool("OTEL_ENABLED", true),
		OtelProtocol:          strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
		OtelSamplingRatio:     getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		DBType:                getenv("DATABASE_TYPE", "postgres"),
		DBHost:                getenv("DATABASE_HOST", "localhost"),
		DBPort:                getenv("DATABASE_PORT", "5432"),
		DBName:                getenv("DATABASE_NAME", "shikkha"),
		DBUser:                getenv("DATABASE_USER", "postgres"),
		DBPassword:            getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:             getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:         int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:         int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime:     int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime:     int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBLogLevel:            getenv("DATABASE_LOG_LEVEL", "warn"),
		DBSlowQuery:           getenvDuration("DATABASE_SLOW_QUERY", 200*time.Millisecond),
		RedisAddr:             strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:         getenv("REDIS_PASSWORD", ""),
		RedisDB:               int(getenvInt64("REDIS_DB", 0)),
		Bkash: BkashConfig{
			BaseURL:   strings.TrimRight(getenv("BKASH_BASE_URL", "https://tokenized.sandbox.bka.sh/v1.2.0-beta"), "/"),
			Username:  strings.TrimSpace(getenv("BKASH_USERNAME", "")),
			Password:  strings.TrimSpace(getenv("BKASH_PASSWORD", "")),
			AppKey:    strings.TrimSpace(getenv("BKASH_APP_KEY", "")),
			AppSecret: strings.TrimSpace(getenv("BKASH_APP_SECRET", "")),
			Timeout:   getenvDuration("BKASH_TIMEOUT", 30*time.Second),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
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

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
