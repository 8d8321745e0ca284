package staffdb

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables consulted by the resolver. DB_PORT is optional and
// defaults to DefaultPort.
const (
	EnvDatabase      = "DB_NAME"
	EnvUser          = "DB_USER"
	EnvPassword      = "DB_PASSWORD"
	EnvHost          = "DB_HOST"
	EnvPort          = "DB_PORT"
	EnvAllowFallback = "STAFFDB_ALLOW_FALLBACK"
)

// fallbackConfig is the development-only literal source. It is consulted
// last and only with explicit opt-in (Config.AllowFallback or
// STAFFDB_ALLOW_FALLBACK).
var fallbackConfig = Config{
	Database: "DB_PAPERSYNC",
	User:     "postgres",
	Password: "papersync2025",
	Host:     "localhost",
	Port:     DefaultPort,
}

// Resolver determines the connection parameters to use, trying ordered
// sources and merging by precedence:
//
//  1. Environment variables. If all five are set, they win outright.
//  2. A JSON config file probed at candidate paths, with any set
//     environment variable overriding the file per key.
//  3. The literal development fallback, only when opted in.
//
// The result is memoized: a Resolver resolves at most once for its
// lifetime and always yields a fully populated Config or an error.
type Resolver struct {
	base     Config
	paths    []string
	validate *validator.Validate

	once     sync.Once
	resolved Config
	err      error
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithConfigPaths replaces the candidate config file locations.
func WithConfigPaths(paths ...string) ResolverOption {
	return func(r *Resolver) {
		r.paths = paths
	}
}

// NewResolver creates a Resolver. The base Config supplies timeouts,
// policy flags, and observability knobs; when it also carries a complete
// parameter set, that set is used as-is and no source is consulted.
func NewResolver(base Config, opts ...ResolverOption) *Resolver {
	base.applyDefaults()
	r := &Resolver{
		base:     base,
		paths:    defaultConfigPaths(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// defaultConfigPaths lists the candidate config.json locations: next to
// the running binary (deployed installs) and under the working directory
// (development checkouts).
func defaultConfigPaths() []string {
	var paths []string
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(dir, "database", "config.json"),
			filepath.Join(dir, "config.json"),
		)
	}
	paths = append(paths,
		filepath.Join("database", "config.json"),
		"config.json",
	)
	return paths
}

// Resolve returns the connection parameters, resolving them on first call
// and returning the cached result thereafter. It fails only when no source
// yields a complete parameter set and the fallback is not opted in.
func (r *Resolver) Resolve() (Config, error) {
	r.once.Do(func() {
		r.resolved, r.err = r.resolve()
	})
	return r.resolved, r.err
}

func (r *Resolver) resolve() (Config, error) {
	log := r.base.log()

	// A base Config carrying a complete parameter set is used as-is:
	// explicit programmatic configuration precedes discovery.
	if r.base.IsComplete() {
		return r.base, nil
	}

	// A .env file augments the process environment when present.
	_ = godotenv.Load()

	envVals := loadEnv()

	// Source 1: environment only. The port default applies here, the
	// other four must all be present.
	cfg := r.merge(envVals)
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if r.validate.Struct(cfg) == nil {
		log.Debug("database config resolved from environment",
			"host", cfg.Host, "port", cfg.Port, "database", cfg.Database, "user", cfg.User)
		return cfg, nil
	}

	// Source 2: first parseable JSON file, with per-key environment
	// override on top.
	for _, path := range r.paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}

		k := koanf.New(".")
		if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
			log.Warn("skipping unparseable config file", "path", path, "error", err)
			continue
		}

		var fileCfg Config
		if err := k.Unmarshal("", &fileCfg); err != nil {
			log.Warn("skipping unparseable config file", "path", path, "error", err)
			continue
		}

		// Environment outranks the file for every key it sets.
		for key, val := range envVals {
			if val == "" {
				continue
			}
			setField(&fileCfg, key, val)
		}

		cfg = r.merge(map[string]string{
			"dbname":   fileCfg.Database,
			"user":     fileCfg.User,
			"password": fileCfg.Password,
			"host":     fileCfg.Host,
			"port":     fileCfg.Port,
		})
		if cfg.Port == "" {
			cfg.Port = DefaultPort
		}
		if err := r.validate.Struct(cfg); err != nil {
			log.Warn("config file is incomplete, trying next source", "path", path)
			continue
		}

		log.Debug("database config resolved from file",
			"path", path, "host", cfg.Host, "port", cfg.Port, "database", cfg.Database, "user", cfg.User)
		return cfg, nil
	}

	// Source 3: literal development fallback, opt-in only.
	if r.base.AllowFallback || envBool(EnvAllowFallback) {
		log.Warn("using fallback database configuration; set environment variables or provide config.json")
		cfg = r.merge(map[string]string{
			"dbname":   fallbackConfig.Database,
			"user":     fallbackConfig.User,
			"password": fallbackConfig.Password,
			"host":     fallbackConfig.Host,
			"port":     fallbackConfig.Port,
		})
		return cfg, nil
	}

	return Config{}, &Error{
		Code:    CodeConfigUnresolved,
		Message: "no complete configuration in environment or config file, and fallback is not enabled",
		Op:      "Resolve",
	}
}

// merge copies the five connection parameters onto the base Config,
// preserving its timeouts, policy flags, and observability settings.
func (r *Resolver) merge(vals map[string]string) Config {
	cfg := r.base
	cfg.Database = vals["dbname"]
	cfg.User = vals["user"]
	cfg.Password = vals["password"]
	cfg.Host = vals["host"]
	cfg.Port = vals["port"]
	return cfg
}

// loadEnv reads the DB_* variables through koanf's env provider and maps
// them onto the JSON key names. Unset and empty variables yield "".
func loadEnv() map[string]string {
	k := koanf.New(".")
	_ = k.Load(env.Provider("DB_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "DB_"))
	}), nil)

	return map[string]string{
		"dbname":   k.String("name"),
		"user":     k.String("user"),
		"password": k.String("password"),
		"host":     k.String("host"),
		"port":     k.String("port"),
	}
}

func setField(cfg *Config, key, val string) {
	switch key {
	case "dbname":
		cfg.Database = val
	case "user":
		cfg.User = val
	case "password":
		cfg.Password = val
	case "host":
		cfg.Host = val
	case "port":
		cfg.Port = val
	}
}

func envBool(name string) bool {
	v, err := strconv.ParseBool(os.Getenv(name))
	return err == nil && v
}
