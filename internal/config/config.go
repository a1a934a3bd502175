//-------------------------------------------------------------------------
//
// barstore - incremental OHLCV warehouse
//
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for barstore.
// Configuration is loaded from config files and CLI flags (no environment
// variables); CLI flags take precedence over config file values. The
// loaded value is immutable: ingest and planning calls receive explicit
// option structs derived from it, and nothing ever writes parameters back
// into a shared file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/barstore/barstore/internal/ingest"
	"github.com/barstore/barstore/internal/ohlcv"
	"github.com/barstore/barstore/internal/schema"
)

// Config holds all configuration for barstore.
type Config struct {
	// Connection is the PostgreSQL connection string.
	Connection string `mapstructure:"connection"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// Datasets describes the instruments and timeframes under management.
	Datasets DatasetsConfig `mapstructure:"datasets"`

	// Ingest holds ingest pipeline policy.
	Ingest IngestConfig `mapstructure:"ingest"`

	// Watch holds spool-directory watcher configuration.
	Watch WatchConfig `mapstructure:"watch"`
}

// AssetConfig describes one instrument.
type AssetConfig struct {
	// Symbol is the instrument symbol, e.g. EURUSD or BTC/USDT.
	Symbol string `mapstructure:"symbol"`

	// Name is a human-readable label.
	Name string `mapstructure:"name"`

	// AssetClass is "tradfi" or "crypto".
	AssetClass string `mapstructure:"asset_class"`

	// Exchange is the source exchange, required for crypto assets.
	Exchange string `mapstructure:"exchange"`
}

// DatasetsConfig describes the managed series.
type DatasetsConfig struct {
	// Assets is the instrument registry.
	Assets []AssetConfig `mapstructure:"assets"`

	// Timeframes lists the active bar intervals.
	Timeframes []string `mapstructure:"timeframes"`

	// DefaultStart (YYYY-MM-DD) is where a full fetch begins when a
	// series has no coverage at all.
	DefaultStart string `mapstructure:"default_start"`
}

// IngestConfig holds ingest pipeline policy.
type IngestConfig struct {
	// BatchSize is the number of rows per batch transaction.
	BatchSize int `mapstructure:"batch_size"`

	// SkipInvalidRecords drops malformed rows instead of aborting.
	SkipInvalidRecords bool `mapstructure:"skip_invalid_records"`

	// ContinueOnBatchFailure tolerates failed batches up to the ceiling.
	ContinueOnBatchFailure bool `mapstructure:"continue_on_batch_failure"`

	// MaxFailedBatches aborts a lenient run past this many failures.
	MaxFailedBatches int `mapstructure:"max_failed_batches"`
}

// WatchConfig holds spool-directory watcher configuration.
type WatchConfig struct {
	// SpoolDir is scanned for fetcher CSV files.
	SpoolDir string `mapstructure:"spool_dir"`

	// Schedule is the cron expression for spool sweeps.
	Schedule string `mapstructure:"schedule"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Datasets: DatasetsConfig{
			Timeframes:   []string{"1m", "5m", "1h", "1d"},
			DefaultStart: "2017-01-01",
		},
		Ingest: IngestConfig{
			BatchSize:              ingest.DefaultBatchSize,
			SkipInvalidRecords:     true,
			ContinueOnBatchFailure: true,
			MaxFailedBatches:       ingest.DefaultMaxFailedBatches,
		},
		Watch: WatchConfig{
			Schedule: "@every 5m",
		},
	}
}

// Load reads configuration from config files.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./barstore.yaml
// 3. ~/.config/barstore/config.yaml
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("barstore")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "barstore"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Connection == "" {
		return fmt.Errorf("connection string is required")
	}
	return nil
}

// ValidateDatasets checks configuration required for plan and watch.
func (c *Config) ValidateDatasets() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Datasets.Assets) == 0 {
		return fmt.Errorf("at least one asset must be configured")
	}
	for _, a := range c.Datasets.Assets {
		if _, err := c.target(a, firstOr(c.Datasets.Timeframes, "1d")); err != nil {
			return err
		}
	}
	for _, tf := range c.Datasets.Timeframes {
		if _, err := ohlcv.TimeframeDuration(tf); err != nil {
			return err
		}
	}
	if _, err := c.DefaultStart(); err != nil {
		return err
	}
	return nil
}

// ValidateWatch checks configuration required for the watch command.
func (c *Config) ValidateWatch() error {
	if err := c.ValidateDatasets(); err != nil {
		return err
	}
	if c.Watch.SpoolDir == "" {
		return fmt.Errorf("watch spool_dir is required")
	}
	return nil
}

// DefaultStart returns the configured full-fetch start date.
func (c *Config) DefaultStart() (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", c.Datasets.DefaultStart, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid datasets.default_start %q: %w", c.Datasets.DefaultStart, err)
	}
	return t, nil
}

// IngestOptions converts the ingest section into pipeline options.
func (c *Config) IngestOptions() ingest.Options {
	return ingest.Options{
		BatchSize:              c.Ingest.BatchSize,
		SkipInvalidRecords:     c.Ingest.SkipInvalidRecords,
		ContinueOnBatchFailure: c.Ingest.ContinueOnBatchFailure,
		MaxFailedBatches:       c.Ingest.MaxFailedBatches,
	}
}

// AssetBySymbol finds a configured asset by its symbol.
func (c *Config) AssetBySymbol(symbol string) (AssetConfig, bool) {
	for _, a := range c.Datasets.Assets {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return AssetConfig{}, false
}

// Targets expands the asset registry across the active timeframes.
func (c *Config) Targets() ([]schema.Target, error) {
	var targets []schema.Target
	for _, a := range c.Datasets.Assets {
		for _, tf := range c.Datasets.Timeframes {
			t, err := c.target(a, tf)
			if err != nil {
				return nil, err
			}
			targets = append(targets, t)
		}
	}
	return targets, nil
}

// Target resolves one asset/timeframe pair into a logical target.
func (c *Config) Target(symbol, timeframe string) (schema.Target, error) {
	asset, ok := c.AssetBySymbol(symbol)
	if !ok {
		return schema.Target{}, fmt.Errorf("asset %q is not configured", symbol)
	}
	return c.target(asset, timeframe)
}

func (c *Config) target(a AssetConfig, timeframe string) (schema.Target, error) {
	t := schema.Target{
		AssetClass: schema.AssetClass(a.AssetClass),
		Symbol:     a.Symbol,
		Timeframe:  timeframe,
		Exchange:   a.Exchange,
	}
	if err := t.Validate(); err != nil {
		return schema.Target{}, fmt.Errorf("asset %q: %w", a.Symbol, err)
	}
	return t, nil
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}
