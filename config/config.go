// Package config provides runtime configuration values for the server.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds configuration knobs for the HTTP server, the store and
// telemetry.
type Config struct {
	HTTPAddr        string
	StoreDriver     string
	SQLitePath      string
	DatabaseURL     string
	DBMaxConns      int
	UnitTimeout     time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
	OTLPEndpoint    string // empty disables export
	ServiceName     string
	CORSOrigins     []string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

func listenv(key, def string) []string {
	var out []string
	for _, part := range strings.Split(getenv(key, def), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		StoreDriver:     strings.ToLower(getenv("STORE_DRIVER", DriverSQLite)),
		SQLitePath:      getenv("SQLITE_PATH", "retail.db"),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		DBMaxConns:      atoienv("DB_MAX_CONNS", 10),
		UnitTimeout:     durenvms("UNIT_TIMEOUT_MS", 5000),
		ShutdownTimeout: durenvs("SHUTDOWN_TIMEOUT", 30),
		LogLevel:        strings.ToLower(getenv("LOG_LEVEL", "info")),
		OTLPEndpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:     getenv("SERVICE_NAME", "retail-ledger"),
		CORSOrigins:     listenv("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080"),
	}
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite store needs SQLITE_PATH"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("postgres store needs DATABASE_URL"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}
	if c.DBMaxConns <= 0 || c.DBMaxConns > math.MaxInt32 {
		errs = append(errs, fmt.Errorf("DB_MAX_CONNS must be between 1 and %d, got %d", math.MaxInt32, c.DBMaxConns))
	}
	if c.UnitTimeout <= 0 {
		errs = append(errs, fmt.Errorf("UNIT_TIMEOUT_MS must be positive, got %s", c.UnitTimeout))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}
