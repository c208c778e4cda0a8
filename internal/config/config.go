// Package config loads service configuration from the environment into an
// explicit Config value that is passed to every component at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// User directories.
const (
	DirectoryDynamoDB = "dynamodb"
	DirectoryStatic   = "static"
)

// Config is the full service configuration.
type Config struct {
	Service ServiceConfig
	Server  ServerConfig
	AWS     AWSConfig
	Store   StoreConfig
	Auth    AuthConfig
	Events  EventsConfig
	Metrics MetricsConfig

	// malformed values found while reading the environment
	parseErrs []error
}

// ServiceConfig identifies the running service in logs.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
}

// ServerConfig controls the HTTP listener used when running outside Lambda.
type ServerConfig struct {
	RunLocal        bool
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// AWSConfig selects the AWS region and an optional local endpoint.
type AWSConfig struct {
	Region           string
	EndpointOverride string
}

// StoreConfig selects and parameterises the purchase-order store.
type StoreConfig struct {
	Backend          string
	OrdersTable      string
	ApprovalsTable   string
	UsersTable       string
	IdempotencyTable string
	IdempotencyTTL   time.Duration
	DatabaseURL      string
	MaxConns         int32
}

// AuthConfig holds the token signing settings.
type AuthConfig struct {
	SecretKey string
	TokenTTL  time.Duration
	// Directory is where users are looked up: dynamodb (USERS_TABLE) or
	// static (the built-in demo users).
	Directory string
}

// EventsConfig points decision events at a queue. Empty disables publishing.
type EventsConfig struct {
	QueueURL string
}

// MetricsConfig is used by the worker when recording CloudWatch metrics.
type MetricsConfig struct {
	Namespace string
}

// Load reads the environment, applies defaults and validates the result.
func Load() (*Config, error) {
	cfg := read()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorker is Load for the decision-event worker, which signs no tokens
// but needs the idempotency table for deduplication.
func LoadWorker() (*Config, error) {
	cfg := read()
	if err := cfg.ValidateWorker(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read() *Config {
	r := &envReader{}
	cfg := &Config{
		Service: ServiceConfig{
			Name:        r.getEnv("SERVICE_NAME", "po-approvals"),
			Version:     r.getEnv("SERVICE_VERSION", "dev"),
			Environment: r.getEnv("ENVIRONMENT", "development"),
			LogLevel:    r.getEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			RunLocal:        r.getEnvBool("RUN_LOCAL", false),
			Port:            r.getEnvInt("PORT", 8080),
			ReadTimeout:     r.getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    r.getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     r.getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: r.getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		AWS: AWSConfig{
			Region:           os.Getenv("AWS_REGION"),
			EndpointOverride: os.Getenv("AWS_ENDPOINT_OVERRIDE"),
		},
		Store: StoreConfig{
			Backend:          strings.ToLower(r.getEnv("STORE_BACKEND", BackendDynamoDB)),
			OrdersTable:      r.getEnv("ORDERS_TABLE", "purchase-orders"),
			ApprovalsTable:   r.getEnv("APPROVALS_TABLE", "purchase-order-approvals"),
			UsersTable:       r.getEnv("USERS_TABLE", "users"),
			IdempotencyTable: os.Getenv("IDEMPOTENCY_TABLE"),
			IdempotencyTTL:   r.getEnvDuration("IDEMPOTENCY_TTL", 48*time.Hour),
			DatabaseURL:      os.Getenv("DATABASE_URL"),
			MaxConns:         r.getEnvInt32("DB_MAX_CONNS", 10),
		},
		Auth: AuthConfig{
			SecretKey: os.Getenv("SECRET_KEY"),
			TokenTTL:  r.getEnvDuration("TOKEN_TTL", 30*time.Minute),
			Directory: strings.ToLower(os.Getenv("USER_DIRECTORY")),
		},
		Events: EventsConfig{
			QueueURL: os.Getenv("DECISIONS_QUEUE_URL"),
		},
		Metrics: MetricsConfig{
			Namespace: r.getEnv("METRICS_NAMESPACE", "PurchaseOrders"),
		},
	}

	if cfg.Auth.Directory == "" {
		cfg.Auth.Directory = DirectoryStatic
		if cfg.Store.Backend == BackendDynamoDB {
			cfg.Auth.Directory = DirectoryDynamoDB
		}
	}
	cfg.parseErrs = r.errs
	return cfg
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.parseErrs...)

	if c.Auth.SecretKey == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Server.Port))
	}

	switch c.Store.Backend {
	case BackendDynamoDB:
		if c.Store.OrdersTable == "" || c.Store.ApprovalsTable == "" {
			errs = append(errs, errors.New("ORDERS_TABLE and APPROVALS_TABLE are required for the dynamodb backend"))
		}
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
		if c.Store.MaxConns <= 0 {
			errs = append(errs, fmt.Errorf("DB_MAX_CONNS must be positive: %d", c.Store.MaxConns))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}

	switch c.Auth.Directory {
	case DirectoryDynamoDB:
		if c.Store.UsersTable == "" {
			errs = append(errs, errors.New("USERS_TABLE is required for the dynamodb user directory"))
		}
	case DirectoryStatic:
	default:
		errs = append(errs, fmt.Errorf("unknown USER_DIRECTORY %q", c.Auth.Directory))
	}

	return errors.Join(errs...)
}

// ValidateWorker checks the settings the worker depends on.
func (c *Config) ValidateWorker() error {
	errs := append([]error(nil), c.parseErrs...)
	if c.Store.IdempotencyTable == "" {
		errs = append(errs, errors.New("IDEMPOTENCY_TABLE is required for the worker"))
	}
	if c.Store.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL must be positive"))
	}
	if c.Metrics.Namespace == "" {
		errs = append(errs, errors.New("METRICS_NAMESPACE must not be empty"))
	}
	return errors.Join(errs...)
}

// envReader reads typed values and records the ones that fail to parse, so
// a typo surfaces in Validate instead of silently becoming the default.
type envReader struct {
	errs []error
}

func (r *envReader) getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (r *envReader) getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", key, value))
		return defaultValue
	}
	return n
}

func (r *envReader) getEnvInt32(key string, defaultValue int32) int32 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid 32-bit integer %q", key, value))
		return defaultValue
	}
	return int32(n)
}

func (r *envReader) getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid boolean %q", key, value))
		return defaultValue
	}
	return b
}

func (r *envReader) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, value))
		return defaultValue
	}
	return d
}
