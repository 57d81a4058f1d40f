// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the tonefs configuration.
type Config struct {
	// Source is the directory holding the original audio files.
	Source string `yaml:"source"`

	// Mountpoint is where the translated view is mounted.
	Mountpoint string `yaml:"mountpoint"`

	// Encoding configures the MP3 output.
	Encoding EncodingConfig `yaml:"encoding"`

	// Cache configures pipeline and size caching.
	Cache CacheConfig `yaml:"cache"`

	// Mount configures FUSE mount behavior.
	Mount MountConfig `yaml:"mount"`

	// Log configures logging output.
	Log LogConfig `yaml:"log"`
}

// EncodingConfig configures the MP3 output stream.
type EncodingConfig struct {
	// Bitrate in kbps. For VBR this is the nominal maximum.
	// Default: 128.
	Bitrate int `yaml:"bitrate"`

	// VBR enables variable bitrate encoding.
	VBR bool `yaml:"vbr"`

	// Quality is the encoder quality knob, 0 (best) through 9.
	// Default: 5.
	Quality int `yaml:"quality"`

	// Gain adjusts output volume in decibels.
	Gain float64 `yaml:"gain"`

	// KeepExact truncates output to the exact encoded length instead
	// of padding to the published estimate.
	KeepExact bool `yaml:"keep_exact"`
}

// CacheConfig configures the pipeline cache and the persisted size
// cache.
type CacheConfig struct {
	// BudgetMB caps the buffer memory held by live pipelines, in
	// megabytes. Zero means unbounded. Default: 512.
	BudgetMB int64 `yaml:"budget_mb"`

	// SizeCachePath is the file persisting exact output sizes across
	// mounts. Empty disables persistence.
	SizeCachePath string `yaml:"size_cache_path"`

	// SizeCacheEntries bounds the persisted record count. Default:
	// 10000.
	SizeCacheEntries int `yaml:"size_cache_entries"`

	// Watch enables filesystem watching of the source tree so cached
	// pipelines are invalidated as soon as a source changes.
	Watch bool `yaml:"watch"`
}

// MountConfig configures FUSE mount behavior.
type MountConfig struct {
	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool `yaml:"allow_other"`

	// PassthroughOnError serves raw source bytes when a pipeline
	// fails instead of returning EIO.
	PassthroughOnError bool `yaml:"passthrough_on_error"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is debug, info, warn, or error. Default: info.
	Level string `yaml:"level"`

	// File redirects logs from stderr to a rotated file.
	File string `yaml:"file"`

	// MaxSizeMB is the rotation threshold for the log file.
	// Default: 50.
	MaxSizeMB int `yaml:"max_size_mb"`

	// MaxBackups is how many rotated files to keep. Default: 3.
	MaxBackups int `yaml:"max_backups"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Encoding: EncodingConfig{
			Bitrate: 128,
			Quality: 5,
		},
		Cache: CacheConfig{
			BudgetMB:         512,
			SizeCacheEntries: 10000,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// Load loads configuration from the TONEFS_CONFIG environment
// variable. Returns the defaults when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv("TONEFS_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merged over
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${HOME} and similar environment references
// in path values.
func (c *Config) expandVariables() {
	c.Source = os.ExpandEnv(c.Source)
	c.Mountpoint = os.ExpandEnv(c.Mountpoint)
	c.Cache.SizeCachePath = os.ExpandEnv(c.Cache.SizeCachePath)
	c.Log.File = os.ExpandEnv(c.Log.File)
}

// Validate checks the configuration for contradictions before the
// mount starts.
func (c *Config) Validate() error {
	var problems []string
	if c.Source == "" {
		problems = append(problems, "source directory is required")
	}
	if c.Mountpoint == "" {
		problems = append(problems, "mountpoint is required")
	}
	if c.Source != "" && c.Source == c.Mountpoint {
		problems = append(problems, "source and mountpoint must differ")
	}
	if c.Encoding.Bitrate < 8 || c.Encoding.Bitrate > 320 {
		problems = append(problems, fmt.Sprintf("bitrate %d outside 8..320 kbps", c.Encoding.Bitrate))
	}
	if c.Encoding.Quality < 0 || c.Encoding.Quality > 9 {
		problems = append(problems, fmt.Sprintf("quality %d outside 0..9", c.Encoding.Quality))
	}
	if c.Cache.BudgetMB < 0 {
		problems = append(problems, "cache budget must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
