// Package config defines the staging service's configuration surface
// (spec §6) and its validation rules.
package config

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Config holds every tunable the core honors. Field names mirror the
// keys of spec §6 (and, before it, original_source/src/import/config.rs)
// so a YAML config file can bind to them directly via viper/mapstructure.
type Config struct {
	ImportDir     string        `mapstructure:"import-dir"`
	NumThreads    int           `mapstructure:"num-threads"`
	NumImportJobs int           `mapstructure:"num-import-jobs"`

	NumImportSSTJobs    int           `mapstructure:"num-import-sst-jobs"`
	MaxPrepareDuration  time.Duration `mapstructure:"max-prepare-duration"`
	RegionSplitSize     int64         `mapstructure:"region-split-size"`
	StreamChannelWindow int           `mapstructure:"stream-channel-window"`
	MaxOpenEngines      int           `mapstructure:"max-open-engines"`
	UploadSpeedLimit    int64         `mapstructure:"upload-speed-limit"`
	MinAvailableRatio   float64       `mapstructure:"min-available-ratio"`
}

// Default returns the configuration defaults, matching
// original_source/src/import/config.rs::Default.
func Default() Config {
	return Config{
		ImportDir:           "/tmp/tikv/import",
		NumThreads:          8,
		NumImportJobs:       8,
		NumImportSSTJobs:    2,
		MaxPrepareDuration:  5 * time.Minute,
		RegionSplitSize:     512 * humanize.MiByte,
		StreamChannelWindow: 128,
		MaxOpenEngines:      8,
		UploadSpeedLimit:    512 * humanize.MiByte,
		MinAvailableRatio:   0.05,
	}
}

// Load reads a YAML config file at path, overlaying it onto Default().
// An empty path is not an error; it simply returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every numeric is positive and min_available_ratio is
// in [0, 1). Unlike the original Rust validation (which checks < 0.0 but
// describes the bound as "can not be less than 0.02"), this enforces the
// documented bound exactly: see spec §9 Open Question.
func (c Config) Validate() error {
	switch {
	case c.NumThreads <= 0:
		return fmt.Errorf("num-threads must be > 0")
	case c.NumImportJobs <= 0:
		return fmt.Errorf("num-import-jobs must be > 0")
	case c.NumImportSSTJobs <= 0:
		return fmt.Errorf("num-import-sst-jobs must be > 0")
	case c.RegionSplitSize <= 0:
		return fmt.Errorf("region-split-size must be > 0")
	case c.StreamChannelWindow <= 0:
		return fmt.Errorf("stream-channel-window must be > 0")
	case c.MaxOpenEngines <= 0:
		return fmt.Errorf("max-open-engines must be > 0")
	case c.UploadSpeedLimit <= 0:
		return fmt.Errorf("upload-speed-limit must be > 0")
	case c.MaxPrepareDuration <= 0:
		return fmt.Errorf("max-prepare-duration must be > 0")
	case c.MinAvailableRatio < 0 || c.MinAvailableRatio >= 1:
		return fmt.Errorf("min-available-ratio must be in [0, 1), got %v", c.MinAvailableRatio)
	}
	return nil
}
