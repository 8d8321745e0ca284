package staffdb

import (
	"log/slog"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the resolved PostgreSQL connection parameters plus runtime
// tuning. The five connection fields are strings because every resolution
// source (environment, JSON file, fallback) delivers them as text.
type Config struct {
	// Connection parameters
	Database string `koanf:"dbname" validate:"required"`
	User     string `koanf:"user" validate:"required"`
	Password string `koanf:"password" validate:"required"`
	Host     string `koanf:"host" validate:"required"`
	Port     string `koanf:"port" validate:"required"` // default: "5432"

	// Timeouts
	DialTimeout  time.Duration // Connection dial timeout (default: 5s)
	ReadTimeout  time.Duration // Read timeout (default: 30s)
	WriteTimeout time.Duration // Write timeout (default: 30s)

	// AllowFallback permits the literal development credentials as a last
	// resolution source. The fallback is also reachable via the
	// STAFFDB_ALLOW_FALLBACK environment variable. Never enable it in
	// production.
	AllowFallback bool

	// DisableAutoConnect makes operations that need a live handle fail
	// with a not-connected error instead of dialing on demand. The
	// default policy is to auto-connect.
	DisableAutoConnect bool

	// Observability (all optional)
	Logger          *slog.Logger          // Structured logger
	LogQueries      bool                  // Log all queries
	LogSlowQueries  time.Duration         // Log queries slower than this (0 = disabled)
	MetricsRegistry prometheus.Registerer // Prometheus registry for metrics
	Tracer          trace.Tracer          // OpenTelemetry tracer
}

// DefaultPort is used whenever no resolution source supplies a port.
const DefaultPort = "5432"

// DefaultConfig returns a Config with the given connection parameters and
// default timeouts.
func DefaultConfig(database, user, password, host, port string) Config {
	cfg := Config{
		Database: database,
		User:     user,
		Password: password,
		Host:     host,
		Port:     port,
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in zero values with defaults
func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = DefaultPort
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
}

// IsComplete reports whether every connection parameter is non-empty.
// A Config is only ever cached fully populated; partial sets fall through
// to the next resolution source.
func (c Config) IsComplete() bool {
	return c.Database != "" && c.User != "" && c.Password != "" && c.Host != "" && c.Port != ""
}

// DSN builds the postgres:// connection string. It contains the password,
// so it must never be logged; use Addr and the discrete fields for
// diagnostics instead.
func (c Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Addr(),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Addr returns host:port for diagnostics.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

// WithLogger enables query logging
func (c Config) WithLogger(logger *slog.Logger) Config {
	c.Logger = logger
	c.LogQueries = true
	return c
}

// WithSlowQueryLog logs queries slower than the threshold
func (c Config) WithSlowQueryLog(threshold time.Duration) Config {
	c.LogSlowQueries = threshold
	return c
}

// WithMetrics enables Prometheus metrics
func (c Config) WithMetrics(registry prometheus.Registerer) Config {
	c.MetricsRegistry = registry
	return c
}

// WithTracing enables OpenTelemetry tracing
func (c Config) WithTracing(tracer trace.Tracer) Config {
	c.Tracer = tracer
	return c
}

// WithFallback opts in to the literal development fallback credentials.
func (c Config) WithFallback() Config {
	c.AllowFallback = true
	return c
}

// log returns the configured logger or the process default.
func (c Config) log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
