// Package config loads the storefront configuration from the environment,
// optionally seeded by a .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string
	HTTP     HTTPConfig
	Redis    RedisConfig
	Cart     CartConfig
	Catalog  CatalogConfig
	Ledger   LedgerConfig
	Gateway  GatewayConfig
	Events   EventsConfig
}

type HTTPConfig struct {
	Port               string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	SecureCookies      bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type CartConfig struct {
	// Storage is "redis" or "memory".
	Storage         string
	TTL             time.Duration
	ConfirmationTTL time.Duration
	IdleTimeout     time.Duration
}

type CatalogConfig struct {
	DBPath         string
	MigrationsPath string
}

type LedgerConfig struct {
	// Driver is one of "postgres", "mongo", "bolt", "memory".
	Driver           string
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	MigrationsPath   string
	MongoURI         string
	MongoDB          string
	BoltPath         string
}

type GatewayConfig struct {
	BaseURL            string
	CallbackURL        string
	IPNURL             string
	NotificationType   string
	Currency           string
	Description        string
	DefaultCountryCode string
	Timeout            time.Duration
	RequestsPerSecond  float64
	Burst              int
}

type EventsConfig struct {
	// Driver is one of "kafka", "nats", "none".
	Driver       string
	KafkaBrokers []string
	KafkaTopic   string
	NatsURL      string
	NatsSubject  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	getDuration := func(key string, def time.Duration) time.Duration {
		v, err := parseDuration(key, def)
		errs = append(errs, err)
		return v
	}
	getInt := func(key string, def int) int {
		v, err := parseInt(key, def)
		errs = append(errs, err)
		return v
	}
	getFloat := func(key string, def float64) float64 {
		v, err := parseFloat(key, def)
		errs = append(errs, err)
		return v
	}
	getBool := func(key string, def bool) bool {
		v, err := parseBool(key, def)
		errs = append(errs, err)
		return v
	}

	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTP: HTTPConfig{
			Port:               getEnv("HTTP_PORT", "8080"),
			RequestTimeout:     getDuration("HTTP_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout:    getDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxRequestBodySize: 1 << 20,
			SecureCookies:      getBool("HTTP_SECURE_COOKIES", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Cart: CartConfig{
			Storage:         getEnv("CART_STORAGE", "redis"),
			TTL:             getDuration("CART_TTL", 30*24*time.Hour),
			ConfirmationTTL: getDuration("CART_CONFIRMATION_TTL", 2*time.Second),
			IdleTimeout:     getDuration("CART_IDLE_TIMEOUT", 30*time.Minute),
		},
		Catalog: CatalogConfig{
			DBPath:         getEnv("CATALOG_DB_PATH", "./products.db"),
			MigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "./internal/catalog/migrations"),
		},
		Ledger: LedgerConfig{
			Driver:           getEnv("LEDGER_DRIVER", "postgres"),
			PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
			PostgresPort:     getInt("POSTGRES_PORT", 5432),
			PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
			PostgresPassword: getEnv("POSTGRES_PASSWORD", "postgres"),
			PostgresDB:       getEnv("POSTGRES_DB", "orders"),
			MigrationsPath:   getEnv("LEDGER_MIGRATIONS_PATH", "./internal/repository/migrations"),
			MongoURI:         getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDB:          getEnv("MONGO_DB", "storefront"),
			BoltPath:         getEnv("BOLT_PATH", "./orders.db"),
		},
		Gateway: GatewayConfig{
			BaseURL:            getEnv("GATEWAY_BASE_URL", "http://localhost:5000"),
			CallbackURL:        getEnv("GATEWAY_CALLBACK_URL", "http://localhost:5173/payment-success"),
			IPNURL:             getEnv("GATEWAY_IPN_URL", "http://localhost:8080/api/v1/payments/ipn"),
			NotificationType:   getEnv("GATEWAY_IPN_NOTIFICATION_TYPE", "GET"),
			Currency:           getEnv("GATEWAY_CURRENCY", "KES"),
			Description:        getEnv("GATEWAY_DESCRIPTION", "Online Store Purchase"),
			DefaultCountryCode: getEnv("GATEWAY_DEFAULT_COUNTRY_CODE", "KE"),
			Timeout:            getDuration("GATEWAY_TIMEOUT", 15*time.Second),
			RequestsPerSecond:  getFloat("GATEWAY_REQUESTS_PER_SECOND", 10),
			Burst:              getInt("GATEWAY_BURST", 5),
		},
		Events: EventsConfig{
			Driver:       getEnv("EVENTS_DRIVER", "none"),
			KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "order-events"),
			NatsURL:      getEnv("NATS_URL", "nats://localhost:4222"),
			NatsSubject:  getEnv("NATS_SUBJECT", "order.resolved"),
		},
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTP.Port == "" {
		return fmt.Errorf("HTTP_PORT is required")
	}

	switch c.Cart.Storage {
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required")
		}
	case "memory":
	default:
		return fmt.Errorf("CART_STORAGE %q is not supported", c.Cart.Storage)
	}
	if c.Cart.TTL <= 0 {
		return fmt.Errorf("CART_TTL must be positive")
	}

	switch c.Ledger.Driver {
	case "postgres":
		if c.Ledger.PostgresHost == "" || c.Ledger.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_HOST and POSTGRES_DB are required")
		}
	case "mongo":
		if c.Ledger.MongoURI == "" || c.Ledger.MongoDB == "" {
			return fmt.Errorf("MONGO_URI and MONGO_DB are required")
		}
	case "bolt":
		if c.Ledger.BoltPath == "" {
			return fmt.Errorf("BOLT_PATH is required")
		}
	case "memory":
	default:
		return fmt.Errorf("LEDGER_DRIVER %q is not supported", c.Ledger.Driver)
	}

	for key, raw := range map[string]string{
		"GATEWAY_BASE_URL":     c.Gateway.BaseURL,
		"GATEWAY_CALLBACK_URL": c.Gateway.CallbackURL,
		"GATEWAY_IPN_URL":      c.Gateway.IPNURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute url, got %q", key, raw)
		}
	}
	if c.Gateway.Currency == "" {
		return fmt.Errorf("GATEWAY_CURRENCY is required")
	}

	switch c.Events.Driver {
	case "kafka":
		if len(c.Events.KafkaBrokers) == 0 || c.Events.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC are required")
		}
	case "nats":
		if c.Events.NatsURL == "" {
			return fmt.Errorf("NATS_URL is required")
		}
	case "none":
	default:
		return fmt.Errorf("EVENTS_DRIVER %q is not supported", c.Events.Driver)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func parseFloat(key string, def float64) (float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func parseBool(key string, def bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
