package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	pkgconfig "github.com/utafrali/adexify/pkg/config"
	"github.com/utafrali/adexify/pkg/database"
	"github.com/utafrali/adexify/pkg/tracing"
)

// Payment and search backends.
const (
	ProviderPaystack = "paystack"
	ProviderMock     = "mock"

	EngineMemory        = "memory"
	EngineElasticsearch = "elasticsearch"
)

// Config holds all configuration for the API.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"adexify-api"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// HTTP edge
	AllowedOrigins  []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
	JWTSecret       string   `env:"JWT_SECRET"`
	TrustUserHeader bool     `env:"TRUST_USER_HEADER" envDefault:"true"`
	RateLimitRPS    float64  `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst  int      `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// PostgreSQL
	DatabaseURL          string `env:"DATABASE_URL"`
	PostgresHost         string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort         int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser         string `env:"POSTGRES_USER" envDefault:"adexify"`
	PostgresPass         string `env:"POSTGRES_PASSWORD" envDefault:"adexify_secret"`
	PostgresDB           string `env:"POSTGRES_DB" envDefault:"adexify"`
	PostgresSSL          string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns     int32  `env:"POSTGRES_MAX_CONNS" envDefault:"20"`
	PostgresMinConns     int32  `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	SlowQueryThresholdMs int    `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// Redis
	RedisAddr         string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	RedisDB           int    `env:"REDIS_DB" envDefault:"0"`
	CartGuestTTLHours int    `env:"CART_GUEST_TTL_HOURS" envDefault:"168"`
	CartUserTTLHours  int    `env:"CART_USER_TTL_HOURS" envDefault:"720"`

	// Payments
	PaymentProvider   string        `env:"PAYMENT_PROVIDER" envDefault:"paystack"`
	PaystackSecretKey string        `env:"PAYSTACK_SECRET_KEY"`
	PaystackBaseURL   string        `env:"PAYSTACK_BASE_URL" envDefault:"https://api.paystack.co"`
	PaymentTimeout    time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"15s"`
	ClientURL         string        `env:"CLIENT_URL" envDefault:"http://localhost:5173"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"adexify-search-indexer"`

	// Search
	SearchEngine       string `env:"SEARCH_ENGINE" envDefault:"memory"`
	ElasticsearchURL   string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchIndex string `env:"ELASTICSEARCH_INDEX" envDefault:"adexify_products"`

	// Tracing
	OTelEnabled        bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint       string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate     float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1"`
	OTelServiceVersion string  `env:"OTEL_SERVICE_VERSION" envDefault:"dev"`
}

// Load reads configuration from the environment and an optional .env file.
func Load(envFiles ...string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, envFiles...); err != nil {
		return nil, fmt.Errorf("load api config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if !slices.Contains([]string{ProviderPaystack, ProviderMock}, c.PaymentProvider) {
		return fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.PaymentProvider)
	}
	if c.PaymentProvider == ProviderPaystack && c.PaystackSecretKey == "" {
		return fmt.Errorf("PAYSTACK_SECRET_KEY is required when PAYMENT_PROVIDER=%s", ProviderPaystack)
	}
	if !slices.Contains([]string{EngineMemory, EngineElasticsearch}, c.SearchEngine) {
		return fmt.Errorf("unknown SEARCH_ENGINE %q", c.SearchEngine)
	}
	if c.CartGuestTTLHours < 1 || c.CartUserTTLHours < 1 {
		return fmt.Errorf("cart TTLs must be at least one hour")
	}
	if c.PaymentTimeout <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT must be positive")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}
	if c.IsProduction() && c.JWTSecret == "" && !c.TrustUserHeader {
		return fmt.Errorf("JWT_SECRET or TRUST_USER_HEADER is required in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		URL:             c.DatabaseURL,
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.PostgresMaxConns,
		MinConns:        c.PostgresMinConns,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

func (c *Config) GuestTTL() time.Duration {
	return time.Duration(c.CartGuestTTLHours) * time.Hour
}

func (c *Config) UserTTL() time.Duration {
	return time.Duration(c.CartUserTTLHours) * time.Hour
}

func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMs) * time.Millisecond
}

func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:        c.OTelEnabled,
		ServiceName:    c.ServiceName,
		ServiceVersion: c.OTelServiceVersion,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTelEndpoint,
		SampleRate:     c.OTelSampleRate,
	}
}
