// Package config loads the server configuration from the environment.
//
// A .env file in the working directory is read first when it exists;
// variables already set in the process environment win over it.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Store drivers.
const (
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverPostgREST = "postgrest"
)

type Config struct {
	Port int

	StoreDriver string
	DBPath      string // sqlite
	DatabaseURL string // postgres
	SupabaseURL string // postgrest
	SupabaseKey string // postgrest

	AllowedOrigins []string

	LogLevel  slog.Level
	LogFormat string // "text" or "json"

	RateLimitRPS   float64
	RateLimitBurst int

	// ReconcileSchedule is a robfig/cron spec. Empty disables the
	// scheduled reconciler; POST /admin/reconcile still works.
	ReconcileSchedule string

	Version string
}

// Load reads .env (if present) and the environment, applies defaults and
// validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("reading .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function, usually os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := Config{
		StoreDriver:       strings.ToLower(get("STORE_DRIVER", DriverSQLite)),
		DBPath:            get("DB_PATH", "data/slapit.db"),
		DatabaseURL:       get("DATABASE_URL", ""),
		SupabaseURL:       get("SUPABASE_URL", ""),
		SupabaseKey:       get("SUPABASE_KEY", ""),
		AllowedOrigins:    splitList(get("ALLOWED_ORIGINS", "*")),
		LogFormat:         strings.ToLower(get("LOG_FORMAT", "text")),
		ReconcileSchedule: get("RECONCILE_SCHEDULE", "@every 15m"),
		Version:           get("APP_VERSION", "1.0.0"),
	}

	var err error
	if cfg.Port, err = strconv.Atoi(get("PORT", "8080")); err != nil || cfg.Port < 1 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT %q", get("PORT", ""))
	}
	if cfg.RateLimitRPS, err = strconv.ParseFloat(get("RATE_LIMIT_RPS", "20"), 64); err != nil || cfg.RateLimitRPS < 0 {
		return Config{}, fmt.Errorf("invalid RATE_LIMIT_RPS %q", get("RATE_LIMIT_RPS", ""))
	}
	if cfg.RateLimitBurst, err = strconv.Atoi(get("RATE_LIMIT_BURST", "40")); err != nil || cfg.RateLimitBurst < 0 {
		return Config{}, fmt.Errorf("invalid RATE_LIMIT_BURST %q", get("RATE_LIMIT_BURST", ""))
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errors.New("DB_PATH is required for the sqlite store")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	case DriverPostgREST:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return errors.New("SUPABASE_URL and SUPABASE_KEY are required for the postgrest store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want sqlite, postgres or postgrest)", c.StoreDriver)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid LOG_FORMAT %q (want text or json)", c.LogFormat)
	}

	if c.ReconcileSchedule != "" {
		if _, err := cron.ParseStandard(c.ReconcileSchedule); err != nil {
			return fmt.Errorf("invalid RECONCILE_SCHEDULE %q: %w", c.ReconcileSchedule, err)
		}
	}
	return nil
}

// NewLogger builds the process logger described by the config.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
