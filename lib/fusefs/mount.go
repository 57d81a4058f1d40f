// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package fusefs

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/tonefs/tonefs/lib/transcode"
)

// Options configures the FUSE mount.
type Options struct {
	// Source is the directory holding the original audio files.
	Source string

	// Mountpoint is the directory where the translated view is
	// mounted. Created if it does not exist.
	Mountpoint string

	// Cache shares encoding pipelines across openers and bounds
	// their memory.
	Cache *transcode.Cache

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// PassthroughOnError serves the source file's raw bytes when its
	// pipeline cannot be built or has failed, instead of returning
	// EIO.
	PassthroughOnError bool

	// Logger receives diagnostic messages. If nil, an error-level
	// stderr logger is used.
	Logger *slog.Logger
}

// Mount mounts the translated filesystem at the configured
// mountpoint. The caller must call Unmount on the returned Server
// when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Source == "" {
		return nil, fmt.Errorf("source directory is required")
	}
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Cache == nil {
		return nil, fmt.Errorf("transcode cache is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	info, err := os.Stat(options.Source)
	if err != nil {
		return nil, fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", options.Source)
	}
	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &dirNode{options: &options, path: options.Source}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "tonefs",
			Name:       "tonefs",
			AllowOther: options.AllowOther,
			Options:    []string{"ro"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("filesystem mounted",
		"source", options.Source,
		"mountpoint", options.Mountpoint)
	return server, nil
}
