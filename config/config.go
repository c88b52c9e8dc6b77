// Package config defines service configuration and its layered loader.
package config

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

// Config contains process configuration.
type Config struct {
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite history database file.
	DBPath string `koanf:"db_path"`

	// DefaultRatePaths are the single-rate workbooks, merged in order.
	DefaultRatePaths []string `koanf:"default_rate_paths"`

	// AlternateRatePaths are the base+overtime workbooks, merged in order.
	AlternateRatePaths []string `koanf:"alternate_rate_paths"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// MaxUploadMB caps one multipart upload request.
	MaxUploadMB int `koanf:"max_upload_mb"`

	// EnrichWorkers bounds concurrent pricing and extraction.
	EnrichWorkers int `koanf:"enrich_workers"`

	// HistoryLimit caps rows returned by history queries.
	HistoryLimit int `koanf:"history_limit"`

	// AllowedOrigins feeds CORS. Empty allows any origin.
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		Addr:               ":8080",
		DBPath:             "timesheets.db",
		DefaultRatePaths:   []string{"pay details.xlsx"},
		AlternateRatePaths: []string{"pay details ot.xlsx"},
		LogLevel:           "info",
		MaxUploadMB:        64,
		EnrichWorkers:      4,
		HistoryLimit:       1000,
	}
}

// MaxUploadBytes returns MaxUploadMB in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBPath == "":
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	case c.MaxUploadMB <= 0:
		return fmt.Errorf("%w: max_upload_mb must be positive", ErrInvalidConfig)
	case c.EnrichWorkers <= 0:
		return fmt.Errorf("%w: enrich_workers must be positive", ErrInvalidConfig)
	case c.HistoryLimit < 0:
		return fmt.Errorf("%w: history_limit must not be negative", ErrInvalidConfig)
	}
	return nil
}
