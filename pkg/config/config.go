package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/ardanlabs/conf/v3"
	"github.com/joho/godotenv"
)

// Environment name constants used in ENVIRONMENT config field.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// Config holds all configuration for the application
type Config struct {
	// Database (libpq-style variables, all optional)
	PGHost         string `conf:"default:localhost,env:PGHOST"`
	PGPort         int    `conf:"default:5432,env:PGPORT"`
	PGDatabase     string `conf:"default:todos,env:PGDATABASE"`
	PGUser         string `conf:"default:postgres,env:PGUSER"`
	PGPassword     string `conf:"env:PGPASSWORD,noprint"`
	DBMaxOpenConns int    `conf:"default:10,env:DB_MAX_OPEN_CONNS"`

	// Redis; empty disables idempotency keys
	RedisURL string `conf:"env:REDIS_URL"`

	// HTTP
	Port            int `conf:"default:3000,env:PORT"`
	AdminPort       int `conf:"default:9090,env:ADMIN_PORT"`
	WorkerAdminPort int `conf:"default:9091,env:WORKER_ADMIN_PORT"`

	// Event delivery
	EventRetryAttempts int `conf:"default:3,env:EVENT_RETRY_ATTEMPTS"`

	// Application
	LogLevel    string `conf:"default:info,env:LOG_LEVEL"`
	Environment string `conf:"default:development,enum:development|testing|production,env:ENVIRONMENT"`

	// Per-IP request budget on the public listener
	RateLimitPerMinute int `conf:"default:100,env:RATE_LIMIT_PER_MINUTE"`

	// CORS: comma-separated list of allowed origins; use * to allow all
	CORSAllowedOrigins string `conf:"default:*,env:CORS_ALLOWED_ORIGINS"`

	// Observability
	ServiceName    string `conf:"default:todos,env:SERVICE_NAME"`
	ServiceVersion string `conf:"default:dev,env:SERVICE_VERSION"`
	OtelEndpoint   string `conf:"env:OTEL_ENDPOINT"`
	SentryDSN      string `conf:"env:SENTRY_DSN,noprint"`
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	var cfg Config
	_ = godotenv.Load()
	if _, err := conf.Parse("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// IsDevelopment reports whether verbose error detail may be shown to operators.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// DatabaseURL assembles a postgres:// connection URL from the PG* fields.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.PGHost, strconv.Itoa(c.PGPort)),
		Path:   "/" + c.PGDatabase,
	}
	if c.PGPassword != "" {
		u.User = url.UserPassword(c.PGUser, c.PGPassword)
	} else {
		u.User = url.User(c.PGUser)
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}

// HTTPAddr is the listen address of the public router.
func (c *Config) HTTPAddr() string {
	return ":" + strconv.Itoa(c.Port)
}

// AdminAddr is the listen address of the metrics/readiness router.
func (c *Config) AdminAddr() string {
	return ":" + strconv.Itoa(c.AdminPort)
}

// WorkerAdminAddr is where cmd/worker serves /metrics and /readyz.
func (c *Config) WorkerAdminAddr() string {
	return ":" + strconv.Itoa(c.WorkerAdminPort)
}

// ConsumerGroup names the event offset cursor shared by all worker replicas.
func (c *Config) ConsumerGroup() string {
	return c.ServiceName + "-worker"
}

// ValidateForProduction enforces security requirements when ENVIRONMENT=production.
// No-ops for non-production environments.
func ValidateForProduction(cfg *Config) error {
	if cfg.Environment != EnvProduction {
		return nil
	}

	var errs []string

	if cfg.PGPassword == "" {
		errs = append(errs, "PGPASSWORD must be set in production")
	}

	if cfg.LogLevel == "debug" {
		errs = append(errs, "LOG_LEVEL must not be 'debug' in production (may leak sensitive data)")
	}

	if cfg.Port == cfg.AdminPort {
		errs = append(errs, fmt.Sprintf("PORT and ADMIN_PORT must differ (both %d)", cfg.Port))
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("production config validation failed: %s", strings.Join(errs, "; "))
}
