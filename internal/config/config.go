// Package config manages GeoTracker daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables. Two environment layers are
// recognized: GEOTRACKER_-prefixed dotted keys (GEOTRACKER_LISTEN_ADDR ->
// listen.addr) and the flat legacy names the Android deployment already uses
// (POSTGRES_HOST, DATA_RETENTION_HOURS, ...).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete geotrackerd configuration.
type Config struct {
	Listen    ListenConfig    `koanf:"listen"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
	DB        DBConfig        `koanf:"db"`
	Retention RetentionConfig `koanf:"retention"`
	Dedup     DedupConfig     `koanf:"dedup"`
}

// ListenConfig holds the WebSocket endpoint configuration.
type ListenConfig struct {
	// Addr is the WebSocket listen address (e.g., ":6789").
	Addr string `koanf:"addr"`
	// Path is the URL path clients connect to (e.g., "/").
	Path string `koanf:"path"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9102").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// DBConfig holds the PostgreSQL connection parameters.
type DBConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Name     string `koanf:"name"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// MinConns and MaxConns bound the pgx connection pool.
	MinConns int `koanf:"min_conns"`
	MaxConns int `koanf:"max_conns"`

	// StatementTimeout bounds each statement server-side.
	StatementTimeout time.Duration `koanf:"statement_timeout"`
}

// DSN returns the pgx keyword/value connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s",
		c.Host, c.Port, c.Name, c.User, c.Password)
}

// RetentionConfig controls the in-memory history sweeper. It is independent
// of any retention the database itself may apply.
type RetentionConfig struct {
	// DataRetentionHours is the in-memory retention cutoff.
	DataRetentionHours int `koanf:"data_retention_hours"`
	// CleanupIntervalSeconds is the sweeper period.
	CleanupIntervalSeconds int `koanf:"cleanup_interval_seconds"`
	// EnableAutomaticCleanup starts the background sweeper task.
	EnableAutomaticCleanup bool `koanf:"enable_automatic_cleanup"`
}

// Window returns the retention cutoff as a duration.
func (c RetentionConfig) Window() time.Duration {
	return time.Duration(c.DataRetentionHours) * time.Hour
}

// Interval returns the sweeper period as a duration.
func (c RetentionConfig) Interval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}

// DedupConfig controls the bulk-upload duplicate detector.
type DedupConfig struct {
	// Enabled runs the detector on bulk uploads.
	Enabled bool `koanf:"enabled"`
	// TimeToleranceSeconds is the temporal tolerance for start/end/duration.
	TimeToleranceSeconds int `koanf:"time_tolerance_seconds"`
	// CoordinateTolerance is the spatial tolerance in degrees (~11 m at 1e-4).
	CoordinateTolerance float64 `koanf:"coordinate_tolerance"`
	// SearchWindowDays bounds the candidate query around the upload start.
	SearchWindowDays int `koanf:"search_window_days"`
}

// TimeTolerance returns the temporal tolerance as a duration.
func (c DedupConfig) TimeTolerance() time.Duration {
	return time.Duration(c.TimeToleranceSeconds) * time.Second
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
//
// Port 6789 is the endpoint the Android client ships with; the retention and
// duplicate-detection defaults match the long-standing production values.
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			Addr: ":6789",
			Path: "/",
		},
		Metrics: MetricsConfig{
			Addr: ":9102",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		DB: DBConfig{
			Host:             "localhost",
			Port:             5432,
			Name:             "geotracker",
			User:             "geotracker",
			Password:         "password",
			MinConns:         2,
			MaxConns:         10,
			StatementTimeout: 60 * time.Second,
		},
		Retention: RetentionConfig{
			DataRetentionHours:     24,
			CleanupIntervalSeconds: 3600,
			EnableAutomaticCleanup: true,
		},
		Dedup: DedupConfig{
			Enabled:              true,
			TimeToleranceSeconds: 5,
			CoordinateTolerance:  0.0001,
			SearchWindowDays:     1,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for GeoTracker configuration.
// Variables are named GEOTRACKER_<section>_<key>, e.g., GEOTRACKER_LISTEN_ADDR.
const envPrefix = "GEOTRACKER_"

// legacyEnvKeys maps the flat environment names used by existing deployments
// to their koanf keys. Unknown names are ignored.
var legacyEnvKeys = map[string]string{
	"POSTGRES_HOST":     "db.host",
	"POSTGRES_PORT":     "db.port",
	"POSTGRES_DB":       "db.name",
	"POSTGRES_USER":     "db.user",
	"POSTGRES_PASSWORD": "db.password",

	"DATA_RETENTION_HOURS":     "retention.data_retention_hours",
	"CLEANUP_INTERVAL_SECONDS": "retention.cleanup_interval_seconds",
	"ENABLE_AUTOMATIC_CLEANUP": "retention.enable_automatic_cleanup",

	"DUPLICATE_CHECK_ENABLED":          "dedup.enabled",
	"DUPLICATE_TIME_TOLERANCE_SECONDS": "dedup.time_tolerance_seconds",
	"DUPLICATE_COORDINATE_TOLERANCE":   "dedup.coordinate_tolerance",
	"DUPLICATE_SEARCH_WINDOW_DAYS":     "dedup.search_window_days",
}

// Load reads configuration from a YAML file at path (optional, "" skips the
// file layer), overlays environment variable overrides, and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Layering order: defaults -> YAML -> legacy env names -> GEOTRACKER_ env.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	// Legacy flat names (POSTGRES_HOST -> db.host). An empty return from the
	// mapper makes the provider skip the variable.
	if err := k.Load(env.Provider("", ".", legacyEnvMapper), nil); err != nil {
		return nil, fmt.Errorf("load legacy env overrides: %w", err)
	}

	// GEOTRACKER_LISTEN_ADDR -> listen.addr (strip prefix, lowercase, _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// envKeyMapper transforms GEOTRACKER_LISTEN_ADDR -> listen.addr.
// Strips the GEOTRACKER_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// legacyEnvMapper resolves a flat legacy variable name to its koanf key, or
// "" for variables that are not part of the legacy vocabulary.
func legacyEnvMapper(s string) string {
	return legacyEnvKeys[s]
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"listen.addr":  defaults.Listen.Addr,
		"listen.path":  defaults.Listen.Path,
		"metrics.addr": defaults.Metrics.Addr,
		"metrics.path": defaults.Metrics.Path,
		"log.level":    defaults.Log.Level,
		"log.format":   defaults.Log.Format,

		"db.host":              defaults.DB.Host,
		"db.port":              defaults.DB.Port,
		"db.name":              defaults.DB.Name,
		"db.user":              defaults.DB.User,
		"db.password":          defaults.DB.Password,
		"db.min_conns":         defaults.DB.MinConns,
		"db.max_conns":         defaults.DB.MaxConns,
		"db.statement_timeout": defaults.DB.StatementTimeout.String(),

		"retention.data_retention_hours":     defaults.Retention.DataRetentionHours,
		"retention.cleanup_interval_seconds": defaults.Retention.CleanupIntervalSeconds,
		"retention.enable_automatic_cleanup": defaults.Retention.EnableAutomaticCleanup,

		"dedup.enabled":                defaults.Dedup.Enabled,
		"dedup.time_tolerance_seconds": defaults.Dedup.TimeToleranceSeconds,
		"dedup.coordinate_tolerance":   defaults.Dedup.CoordinateTolerance,
		"dedup.search_window_days":     defaults.Dedup.SearchWindowDays,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyListenAddr indicates the WebSocket listen address is empty.
	ErrEmptyListenAddr = errors.New("listen.addr must not be empty")

	// ErrInvalidPoolBounds indicates min_conns/max_conns are inconsistent.
	ErrInvalidPoolBounds = errors.New("db.min_conns must be >= 1 and <= db.max_conns")

	// ErrInvalidRetentionHours indicates the retention window is not positive.
	ErrInvalidRetentionHours = errors.New("retention.data_retention_hours must be >= 1")

	// ErrInvalidCleanupInterval indicates the sweeper period is not positive.
	ErrInvalidCleanupInterval = errors.New("retention.cleanup_interval_seconds must be >= 1")

	// ErrInvalidTimeTolerance indicates the duplicate temporal tolerance is negative.
	ErrInvalidTimeTolerance = errors.New("dedup.time_tolerance_seconds must be >= 0")

	// ErrInvalidCoordTolerance indicates the duplicate spatial tolerance is not positive.
	ErrInvalidCoordTolerance = errors.New("dedup.coordinate_tolerance must be > 0")

	// ErrInvalidSearchWindow indicates the candidate window is not positive.
	ErrInvalidSearchWindow = errors.New("dedup.search_window_days must be >= 1")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Listen.Addr == "" {
		return ErrEmptyListenAddr
	}

	if cfg.DB.MinConns < 1 || cfg.DB.MinConns > cfg.DB.MaxConns {
		return ErrInvalidPoolBounds
	}

	if cfg.Retention.DataRetentionHours < 1 {
		return ErrInvalidRetentionHours
	}

	if cfg.Retention.CleanupIntervalSeconds < 1 {
		return ErrInvalidCleanupInterval
	}

	if cfg.Dedup.TimeToleranceSeconds < 0 {
		return ErrInvalidTimeTolerance
	}

	if cfg.Dedup.CoordinateTolerance <= 0 {
		return ErrInvalidCoordTolerance
	}

	if cfg.Dedup.SearchWindowDays < 1 {
		return ErrInvalidSearchWindow
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
