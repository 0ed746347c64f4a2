// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// DefaultOutputPath is where committed worklists are written.
const DefaultOutputPath = "updated_CT_doses.csv"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DatasetPath is a local .csv/.xlsx file or an http(s) URL.
	DatasetPath string `koanf:"dataset_path"`

	// OutputPath receives committed worklists (.csv or .xlsx).
	OutputPath string `koanf:"output_path"`

	// WatchDataset reloads a local dataset when the file changes.
	WatchDataset bool `koanf:"watch_dataset"`

	// MaxSessions bounds the number of open review sessions.
	MaxSessions int `koanf:"max_sessions"`

	// HistogramBins caps the number of dosage histogram bins.
	HistogramBins int `koanf:"histogram_bins"`

	// ChartWidth and ChartHeight size rendered PNG charts in pixels.
	ChartWidth  int `koanf:"chart_width"`
	ChartHeight int `koanf:"chart_height"`

	// FetchTimeoutMS bounds the download of a URL dataset.
	FetchTimeoutMS int `koanf:"fetch_timeout_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":9080",
		DatasetPath:    "CT_doses.csv",
		OutputPath:     DefaultOutputPath,
		WatchDataset:   false,
		MaxSessions:    64,
		HistogramBins:  50,
		ChartWidth:     900,
		ChartHeight:    420,
		FetchTimeoutMS: 15_000,
	}
}

// FetchTimeout returns FetchTimeoutMS as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DatasetPath == "":
		return fmt.Errorf("%w: dataset_path must not be empty", ErrInvalidConfig)
	case c.OutputPath == "":
		return fmt.Errorf("%w: output_path must not be empty", ErrInvalidConfig)
	case c.MaxSessions <= 0:
		return fmt.Errorf("%w: max_sessions must be positive, got %d", ErrInvalidConfig, c.MaxSessions)
	case c.HistogramBins <= 0 || c.HistogramBins > 50:
		return fmt.Errorf("%w: histogram_bins must be in 1..50, got %d", ErrInvalidConfig, c.HistogramBins)
	case c.ChartWidth <= 0 || c.ChartHeight <= 0:
		return fmt.Errorf("%w: chart size must be positive, got %dx%d", ErrInvalidConfig, c.ChartWidth, c.ChartHeight)
	case c.FetchTimeoutMS <= 0:
		return fmt.Errorf("%w: fetch_timeout_ms must be positive", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
