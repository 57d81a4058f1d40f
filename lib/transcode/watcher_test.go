// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package transcode

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tonefs/tonefs/lib/testutil"
)

func TestWatcherInvalidatesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeSourceWAV(t, dir, "a.wav", 200000)
	c := newTestCache(t, CacheOptions{})

	w, err := NewWatcher(c, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()
	if err := w.WatchTree(dir); err != nil {
		t.Fatalf("WatchTree: %v", err)
	}

	h, err := c.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	first := h.Transcoder()
	h.Release()

	// Rewriting the source must tear the idle pipeline down without
	// waiting for the next open.
	writeSourceWAV(t, dir, "a.wav", 100000)
	testutil.WaitFor(t, 5*time.Second, func() bool {
		return first.State() == StateError
	}, "watcher should invalidate the pipeline for a rewritten source")
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	dir := t.TempDir()
	c := newTestCache(t, CacheOptions{})

	w, err := NewWatcher(c, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()
	if err := w.WatchTree(dir); err != nil {
		t.Fatalf("WatchTree: %v", err)
	}

	sub := filepath.Join(dir, "album")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a beat to register the new directory before
	// writing into it.
	var path string
	var first *Transcoder
	testutil.WaitFor(t, 5*time.Second, func() bool {
		if path == "" {
			path = writeSourceWAV(t, sub, "b.wav", 200000)
			h, err := c.Acquire(path)
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			first = h.Transcoder()
			h.Release()
		}
		writeSourceWAV(t, sub, "b.wav", 100000)
		return first.State() == StateError
	}, "watcher should cover directories created after WatchTree")
}
