// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tonefs/tonefs/lib/clock"
	"github.com/tonefs/tonefs/lib/mp3"
)

// CacheOptions configures a Cache.
type CacheOptions struct {
	// Params selects the output stream configuration shared by every
	// pipeline the cache builds.
	Params mp3.Params

	// NewBackend constructs a frame encoder backend per pipeline.
	NewBackend func() mp3.FrameEncoder

	// Budget caps the total buffer memory held by cached pipelines,
	// in bytes. Zero means unbounded. The budget is a target, not a
	// hard limit: entries still in use are never evicted, so the
	// total can exceed it while readers are active.
	Budget int64

	// Sizes, when set, persists final output sizes so a pipeline
	// opened after a restart starts from the exact size.
	Sizes *SizeCache

	// Clock supplies access timestamps. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives cache events. Defaults to slog.Default.
	Logger *slog.Logger
}

// Cache shares live transcoder pipelines across openers of the same
// source path and bounds their total buffer memory.
type Cache struct {
	params     mp3.Params
	newBackend func() mp3.FrameEncoder
	budget     int64
	sizes      *SizeCache
	clk        clock.Clock
	logger     *slog.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
	closed  bool
}

type cacheEntry struct {
	transcoder *Transcoder
	atime      time.Time
	refs       int
}

// NewCache returns an empty cache.
func NewCache(opts CacheOptions) *Cache {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		params:     opts.Params,
		newBackend: opts.NewBackend,
		budget:     opts.Budget,
		sizes:      opts.Sizes,
		clk:        clk,
		logger:     logger,
		entries:    make(map[string]*cacheEntry),
	}
}

// Handle is one opener's reference to a cached pipeline. Release it
// when done; the pipeline itself stays cached for later openers.
type Handle struct {
	cache *Cache
	path  string
	t     *Transcoder

	once sync.Once
}

// Acquire returns a handle on the pipeline for path, building it if
// no live entry exists. A cached entry whose source file has since
// been modified is torn down and rebuilt.
func (c *Cache) Acquire(path string) (*Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	mtime := info.ModTime()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("cache closed")
	}
	if e, ok := c.entries[path]; ok {
		if e.transcoder.ModTime().Equal(mtime) {
			e.refs++
			e.atime = c.clk.Now()
			c.mu.Unlock()
			return &Handle{cache: c, path: path, t: e.transcoder}, nil
		}
		// Source changed under us. Readers of the stale pipeline wake
		// with an invalidation error.
		delete(c.entries, path)
		c.mu.Unlock()
		c.logger.Info("source modified, rebuilding", "path", path)
		e.transcoder.Stop()
		c.mu.Lock()
	}
	c.mu.Unlock()

	var cached int64
	if c.sizes != nil {
		if size, ok := c.sizes.Lookup(path, mtime); ok {
			cached = size
		}
	}

	t, err := Open(Options{
		Path:       path,
		Params:     c.params,
		NewBackend: c.newBackend,
		CachedSize: cached,
		Logger:     c.logger,
		OnComplete: func(size int64) {
			if c.sizes != nil {
				c.sizes.Put(path, mtime, size)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		t.Stop()
		return nil, fmt.Errorf("cache closed")
	}
	if e, ok := c.entries[path]; ok && e.transcoder.ModTime().Equal(mtime) {
		// Lost a race with another opener; keep theirs.
		e.refs++
		e.atime = c.clk.Now()
		c.mu.Unlock()
		t.Stop()
		return &Handle{cache: c, path: path, t: e.transcoder}, nil
	}
	c.entries[path] = &cacheEntry{transcoder: t, atime: c.clk.Now(), refs: 1}
	c.evictLocked()
	c.mu.Unlock()
	return &Handle{cache: c, path: path, t: t}, nil
}

// Invalidate tears down the cached pipeline for path, if any. Blocked
// readers wake with an error; the next Acquire rebuilds.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	e, ok := c.entries[path]
	if ok {
		delete(c.entries, path)
	}
	c.mu.Unlock()
	if ok {
		e.transcoder.Stop()
	}
	if c.sizes != nil {
		c.sizes.Delete(path)
	}
}

// Close tears down every cached pipeline and flushes the size cache.
func (c *Cache) Close() error {
	c.mu.Lock()
	c.closed = true
	stale := make([]*cacheEntry, 0, len(c.entries))
	for path, e := range c.entries {
		delete(c.entries, path)
		stale = append(stale, e)
	}
	c.mu.Unlock()
	for _, e := range stale {
		e.transcoder.Stop()
	}
	if c.sizes != nil {
		return c.sizes.Flush()
	}
	return nil
}

// Usage returns the total buffer memory held by cached pipelines.
func (c *Cache) Usage() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usageLocked()
}

func (c *Cache) usageLocked() int64 {
	var total int64
	for _, e := range c.entries {
		total += e.transcoder.Capacity()
	}
	return total
}

// evictLocked drops least-recently-used entries until usage fits the
// budget. Entries with open handles or an actively producing worker
// are never evicted, so usage can remain above budget.
func (c *Cache) evictLocked() {
	if c.budget <= 0 {
		return
	}
	for c.usageLocked() > c.budget {
		var (
			oldestPath string
			oldest     *cacheEntry
		)
		for path, e := range c.entries {
			if e.refs > 0 || !e.transcoder.Idle() {
				continue
			}
			if oldest == nil || e.atime.Before(oldest.atime) {
				oldestPath, oldest = path, e
			}
		}
		if oldest == nil {
			return
		}
		delete(c.entries, oldestPath)
		c.logger.Debug("evicting idle pipeline",
			"path", oldestPath,
			"bytes", oldest.transcoder.Capacity())
		// Idle and unreferenced: Stop returns promptly.
		oldest.transcoder.Stop()
	}
}

// ReadAt reads through the handle's pipeline and refreshes the
// entry's access time.
func (h *Handle) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	h.cache.mu.Lock()
	if e, ok := h.cache.entries[h.path]; ok && e.transcoder == h.t {
		e.atime = h.cache.clk.Now()
	}
	h.cache.mu.Unlock()
	return h.t.ReadAt(ctx, p, off)
}

// Size returns the pipeline's current output size.
func (h *Handle) Size() int64 {
	return h.t.Size()
}

// Transcoder exposes the underlying pipeline.
func (h *Handle) Transcoder() *Transcoder {
	return h.t
}

// Release drops this opener's reference. The pipeline stays cached,
// worker intact, until evicted or invalidated. Release is idempotent.
func (h *Handle) Release() {
	h.once.Do(func() {
		c := h.cache
		c.mu.Lock()
		if e, ok := c.entries[h.path]; ok && e.transcoder == h.t {
			e.refs--
			c.evictLocked()
		}
		c.mu.Unlock()
	})
}
