// Package config provides configuration parsing and management for the
// scenarios command.
//
// It handles both command-line flags and environment variables, with flags
// taking precedence over environment variables. The Config struct contains
// all runtime configuration including:
//   - Flow source selection and adapter settings (SOURCE, SOURCE_*)
//   - Selection policy (stations, rank ceiling, retry rank, reuse, scope)
//   - Output directory and continuation length
//   - Storage backend (memory, redis, sqlite)
//   - Server addresses, loop interval and one-shot mode
//   - Logging configuration (level, format, rotating file)
//   - TLS configuration (cert, key, CA files)
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
//
// Example usage:
//
//	cfg := config.ParseFlags()
//	policy, err := cfg.Policy()
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/HatiCode/analogflow/pkg/analog"
	"github.com/HatiCode/analogflow/pkg/scenario"
	"github.com/HatiCode/analogflow/pkg/tls"
)

// Config holds all scenarios configuration.
type Config struct {
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string
	LogFile    string

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	SnapshotTTL   time.Duration
	TLS           tls.Config

	Source       string
	SourceConfig map[string]string
	OutputDir    string

	Stations       string
	RankCeiling    int
	RetryRank      int
	ForbidReuse    string
	AmplitudeScope string
	Months         int

	Interval time.Duration
	Once     bool
}

// ParseFlags parses command-line flags and environment variables into a
// Config. It exits the process when the configuration is invalid.
func ParseFlags() *Config {
	cfg, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	return cfg
}

// Parse registers flags on fs, parses args and validates the result.
// Environment variables are used as fallbacks when flags are not provided.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8082"), "HTTP listen address")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ""), "gRPC health listen address (empty disables)")

	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFile, "log-file", getEnv("LOG_FILE", ""), "Also write logs to this rotating file")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Storage backend: memory, redis, or sqlite")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	fs.DurationVar(&cfg.SnapshotTTL, "snapshot-ttl", getEnvDuration("SNAPSHOT_TTL", 0), "Snapshot TTL for memory and redis storage (0 keeps snapshots)")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", getEnv("SQLITE_PATH", "analogflow.db"), "SQLite database file")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable TLS for the HTTP and gRPC servers")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA certificate file for client verification")

	fs.StringVar(&cfg.Source, "source", getEnv("SOURCE", "file"), "Flow source: file or http")
	fs.StringVar(&cfg.OutputDir, "output-dir", getEnv("OUTPUT_DIR", "out"), "Directory for extended flow files")

	fs.StringVar(&cfg.Stations, "stations", getEnv("STATIONS", ""), "Principal stations as code:NAME pairs (default 6:FURNAS,74:GBM,169:SOBRADINHO,275:TUCURUI)")
	fs.IntVar(&cfg.RankCeiling, "rank-ceiling", getEnvInt("RANK_CEILING", analog.DefaultMaxRank), "Amplitude attempts per station")
	fs.IntVar(&cfg.RetryRank, "retry-rank", getEnvInt("RETRY_RANK", 0), "Retry exhausted stations once with this ceiling (0 disables)")
	fs.StringVar(&cfg.ForbidReuse, "forbid-reuse", getEnv("FORBID_REUSE", string(analog.ForbidAcrossBatch)), "Year reuse policy: within_file, across_batch, or never")
	fs.StringVar(&cfg.AmplitudeScope, "amplitude-scope", getEnv("AMPLITUDE_SCOPE", string(analog.ScopeReference)), "Stations checked for amplitude: reference or all")
	fs.IntVar(&cfg.Months, "months", getEnvInt("MONTHS", 0), "Continuation length in months (0 fills the forecast year)")

	fs.DurationVar(&cfg.Interval, "interval", getEnvDuration("INTERVAL", time.Hour), "Batch interval")
	fs.BoolVar(&cfg.Once, "once", getEnvBool("ONCE", false), "Run one batch and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.SourceConfig = parseSourceConfig(os.Environ())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Storage {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("invalid storage %q (must be memory, redis, or sqlite)", c.Storage)
	}
	if c.Storage == "sqlite" && c.SQLitePath == "" {
		return errors.New("sqlite-path is required when storage=sqlite")
	}

	switch c.Source {
	case "file", "http":
	default:
		return fmt.Errorf("invalid source %q (must be file or http)", c.Source)
	}
	if c.OutputDir == "" {
		return errors.New("output-dir cannot be empty")
	}

	if c.RankCeiling <= 0 {
		return fmt.Errorf("rank-ceiling must be > 0, got %d", c.RankCeiling)
	}
	if c.RetryRank < 0 {
		return fmt.Errorf("retry-rank cannot be negative, got %d", c.RetryRank)
	}
	if c.RetryRank > 0 && c.RetryRank <= c.RankCeiling {
		return fmt.Errorf("retry-rank (%d) must exceed rank-ceiling (%d)", c.RetryRank, c.RankCeiling)
	}
	if c.Months < 0 || c.Months > 12 {
		return fmt.Errorf("months must be 0-12, got %d", c.Months)
	}
	if !c.Once && c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0, got %v", c.Interval)
	}

	if _, err := c.Policy(); err != nil {
		return err
	}
	return c.TLS.Validate()
}

// Policy builds the selection policy described by the configuration.
func (c *Config) Policy() (scenario.Policy, error) {
	stations, err := scenario.ParseStations(c.Stations)
	if err != nil {
		return scenario.Policy{}, err
	}
	reuse, err := analog.ParseReusePolicy(c.ForbidReuse)
	if err != nil {
		return scenario.Policy{}, err
	}
	scope, err := analog.ParseScope(c.AmplitudeScope)
	if err != nil {
		return scenario.Policy{}, err
	}

	return scenario.Policy{
		Stations:  stations,
		MaxRank:   c.RankCeiling,
		RetryRank: c.RetryRank,
		Scope:     scope,
		Reuse:     reuse,
		Months:    c.Months,
	}, nil
}

// parseSourceConfig collects SOURCE_* environment variables into an adapter
// configuration map. Names are converted to camelCase for the map keys
// (SOURCE_RECORDS_PATH → recordsPath).
func parseSourceConfig(environ []string) map[string]string {
	config := make(map[string]string)

	for _, env := range environ {
		name, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		suffix, ok := strings.CutPrefix(name, "SOURCE_")
		if !ok || suffix == "" {
			continue
		}
		config[toLowerCamelCase(suffix)] = value
	}

	return config
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			p = strings.ToUpper(p[:1]) + p[1:]
		}
		b.WriteString(p)
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
