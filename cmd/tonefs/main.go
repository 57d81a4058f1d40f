// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

// Command tonefs mounts a read-only view of a music directory in
// which FLAC and WAV files appear as MP3s, encoded on demand as they
// are read.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tonefs/tonefs/lib/config"
	"github.com/tonefs/tonefs/lib/fusefs"
	"github.com/tonefs/tonefs/lib/mp3"
	"github.com/tonefs/tonefs/lib/transcode"
	"github.com/tonefs/tonefs/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool

		source      string
		mountpoint  string
		bitrate     int
		vbr         bool
		quality     int
		gain        float64
		cacheBudget int64
		sizeCache   string
		logFile     string
		logLevel    string
		allowOther  bool
	)
	flags := pflag.CommandLine
	flags.StringVar(&configPath, "config", "", "path to tonefs.yaml (defaults to $TONEFS_CONFIG)")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	flags.StringVar(&source, "source", "", "directory holding the original audio files")
	flags.StringVar(&mountpoint, "mountpoint", "", "directory where the translated view is mounted")
	flags.IntVar(&bitrate, "bitrate", 0, "output bitrate in kbps")
	flags.BoolVar(&vbr, "vbr", false, "variable bitrate encoding")
	flags.IntVar(&quality, "quality", -1, "encoder quality, 0 (best) through 9")
	flags.Float64Var(&gain, "gain", 0, "output gain in decibels")
	flags.Int64Var(&cacheBudget, "cache-budget", -1, "pipeline memory budget in megabytes, 0 for unbounded")
	flags.StringVar(&sizeCache, "size-cache", "", "file persisting exact output sizes across mounts")
	flags.StringVar(&logFile, "log-file", "", "log to a rotated file instead of stderr")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn, or error")
	flags.BoolVar(&allowOther, "allow-other", false, "permit other users to access the mount")
	pflag.Parse()

	if showVersion {
		fmt.Printf("tonefs %s\n", version.Info())
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	// Flags override file values only when actually passed.
	if flags.Changed("source") {
		cfg.Source = source
	}
	if flags.Changed("mountpoint") {
		cfg.Mountpoint = mountpoint
	}
	if flags.Changed("bitrate") {
		cfg.Encoding.Bitrate = bitrate
	}
	if flags.Changed("vbr") {
		cfg.Encoding.VBR = vbr
	}
	if flags.Changed("quality") {
		cfg.Encoding.Quality = quality
	}
	if flags.Changed("gain") {
		cfg.Encoding.Gain = gain
	}
	if flags.Changed("cache-budget") {
		cfg.Cache.BudgetMB = cacheBudget
	}
	if flags.Changed("size-cache") {
		cfg.Cache.SizeCachePath = sizeCache
	}
	if flags.Changed("log-file") {
		cfg.Log.File = logFile
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("allow-other") {
		cfg.Mount.AllowOther = allowOther
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Encoding.VBR {
		return fmt.Errorf("the lame pipe backend cannot produce VBR output; use a constant bitrate")
	}

	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Info("starting tonefs",
		"version", version.Short(),
		"source", cfg.Source,
		"mountpoint", cfg.Mountpoint,
		"bitrate", cfg.Encoding.Bitrate)

	var sizes *transcode.SizeCache
	if cfg.Cache.SizeCachePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Cache.SizeCachePath), 0o755); err != nil {
			return fmt.Errorf("creating size cache directory: %w", err)
		}
		sizes, err = transcode.OpenSizeCache(transcode.SizeCacheOptions{
			Path:       cfg.Cache.SizeCachePath,
			MaxEntries: cfg.Cache.SizeCacheEntries,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		logger.Info("size cache loaded",
			"path", cfg.Cache.SizeCachePath, "records", sizes.Len())
	}

	cache := transcode.NewCache(transcode.CacheOptions{
		Params: mp3.Params{
			Bitrate:   cfg.Encoding.Bitrate,
			VBR:       cfg.Encoding.VBR,
			Quality:   cfg.Encoding.Quality,
			GainDB:    cfg.Encoding.Gain,
			KeepExact: cfg.Encoding.KeepExact,
		},
		NewBackend: func() mp3.FrameEncoder { return &mp3.LamePipe{Logger: logger} },
		Budget:     cfg.Cache.BudgetMB << 20,
		Sizes:      sizes,
		Logger:     logger,
	})
	defer cache.Close()

	if cfg.Cache.Watch {
		watcher, err := transcode.NewWatcher(cache, logger)
		if err != nil {
			return err
		}
		defer watcher.Close()
		if err := watcher.WatchTree(cfg.Source); err != nil {
			return fmt.Errorf("watching source tree: %w", err)
		}
		logger.Info("source tree watched", "root", cfg.Source)
	}

	server, err := fusefs.Mount(fusefs.Options{
		Source:             cfg.Source,
		Mountpoint:         cfg.Mountpoint,
		Cache:              cache,
		AllowOther:         cfg.Mount.AllowOther,
		PassthroughOnError: cfg.Mount.PassthroughOnError,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var group errgroup.Group
	group.Go(func() error {
		// Returns when the filesystem is unmounted, whether by the
		// signal handler below or externally via fusermount -u.
		server.Wait()
		stop()
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("unmounting", "mountpoint", cfg.Mountpoint)
		if err := server.Unmount(); err != nil {
			// Already gone when the unmount was external.
			logger.Debug("unmount", "error", err)
		}
		return nil
	})
	return group.Wait()
}

// newLogger builds the process logger: text on stderr, or a rotated
// file when configured.
func newLogger(cfg config.LogConfig) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	var out io.Writer = os.Stderr
	closeLog := func() {}
	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		out = rotated
		closeLog = func() { rotated.Close() }
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), closeLog, nil
}
