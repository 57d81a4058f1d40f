// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Encoding.Bitrate != 128 {
		t.Errorf("default bitrate = %d, want 128", cfg.Encoding.Bitrate)
	}
	if cfg.Cache.BudgetMB != 512 {
		t.Errorf("default budget = %d, want 512", cfg.Cache.BudgetMB)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default log level = %q, want info", cfg.Log.Level)
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tonefs.yaml")
	content := `
source: /music
mountpoint: /mnt/music
encoding:
  bitrate: 192
  vbr: true
cache:
  watch: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Encoding.Bitrate != 192 || !cfg.Encoding.VBR {
		t.Errorf("encoding = %+v, want bitrate 192 vbr", cfg.Encoding)
	}
	if !cfg.Cache.Watch {
		t.Error("watch not set")
	}
	// Untouched values keep their defaults.
	if cfg.Encoding.Quality != 5 {
		t.Errorf("quality = %d, want default 5", cfg.Encoding.Quality)
	}
	if cfg.Cache.SizeCacheEntries != 10000 {
		t.Errorf("size cache entries = %d, want default 10000", cfg.Cache.SizeCacheEntries)
	}
}

func TestLoadFileExpandsHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	path := filepath.Join(t.TempDir(), "tonefs.yaml")
	content := `
source: ${HOME}/music
mountpoint: ${HOME}/mp3
cache:
  size_cache_path: ${HOME}/.cache/tonefs/sizes
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Source != "/home/tester/music" {
		t.Errorf("source = %q", cfg.Source)
	}
	if cfg.Cache.SizeCachePath != "/home/tester/.cache/tonefs/sizes" {
		t.Errorf("size cache path = %q", cfg.Cache.SizeCachePath)
	}
}

func TestLoadWithoutEnvUsesDefaults(t *testing.T) {
	t.Setenv("TONEFS_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Encoding.Bitrate != 128 {
		t.Errorf("bitrate = %d, want default", cfg.Encoding.Bitrate)
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Source = "/music"
	valid.Mountpoint = "/mnt/music"
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		detail string
	}{
		{"missing source", func(c *Config) { c.Source = "" }, "source"},
		{"missing mountpoint", func(c *Config) { c.Mountpoint = "" }, "mountpoint"},
		{"same directories", func(c *Config) { c.Mountpoint = c.Source }, "differ"},
		{"bitrate too low", func(c *Config) { c.Encoding.Bitrate = 4 }, "bitrate"},
		{"bitrate too high", func(c *Config) { c.Encoding.Bitrate = 640 }, "bitrate"},
		{"bad quality", func(c *Config) { c.Encoding.Quality = 11 }, "quality"},
		{"negative budget", func(c *Config) { c.Cache.BudgetMB = -1 }, "budget"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Source = "/music"
			cfg.Mountpoint = "/mnt/music"
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.detail) {
				t.Errorf("error %q does not mention %q", err, tt.detail)
			}
		})
	}
}
